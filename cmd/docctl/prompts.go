package main

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/documentverification/internal/prompts"
	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts [tag]",
	Short: "List the extraction prompt tags, or print one prompt",
	Long: `Reads the catalog named by PROMPT_CATALOG_PATH, or the built-in catalog
when the variable is unset.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := prompts.Load(os.Getenv("PROMPT_CATALOG_PATH"))
		if err != nil {
			return err
		}
		if len(args) == 1 {
			text, err := catalog.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		}
		for _, tag := range catalog.Tags() {
			fmt.Println(tag)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}
