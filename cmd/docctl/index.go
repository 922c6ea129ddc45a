package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Lllllllleong/documentverification/internal/services"
	"github.com/spf13/cobra"
)

var (
	indexFile string
	searchTop int
)

var errNoIndexer = errors.New("statement indexing requires OPENAI_API_KEY")

var indexCmd = &cobra.Command{
	Use:   "index [user-id]",
	Short: "Chunk, embed and store a user's bank statement",
	Long: `Rebuild the statement chunks of a user. The stored statement is read from
the statements bucket unless --file points at a local PDF.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := args[0]
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			if rt.Indexer == nil {
				return errNoIndexer
			}
			var (
				data []byte
				err  error
			)
			if indexFile != "" {
				data, err = os.ReadFile(indexFile)
			} else {
				data, err = rt.Pipeline.ReadStatement(cmd.Context(), userID)
			}
			if err != nil {
				return err
			}
			n, err := rt.Indexer.Index(cmd.Context(), userID, data)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d chunks for %s\n", n, userID)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [user-id] [query]",
	Short: "Find the statement chunks nearest to a query",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			if rt.Indexer == nil {
				return errNoIndexer
			}
			hits, err := rt.Indexer.Search(cmd.Context(), args[0], args[1], searchTop)
			if err != nil {
				return err
			}
			return printJSON(hits)
		})
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	indexCmd.Flags().StringVarP(&indexFile, "file", "f", "", "Index a local PDF instead of the stored statement")
	searchCmd.Flags().IntVarP(&searchTop, "top", "k", 0, "Number of chunks to return (0 uses the default)")
}
