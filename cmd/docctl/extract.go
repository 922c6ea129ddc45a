package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/services"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [doc-type] [file]",
	Short: "Extract the fields of a single document",
	Long: `Upload one document, run the extraction model on it and print the coerced
fields. Nothing is written to the user store.

Document types: pan, aadhar, bankstatement, itr, form16.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		docType, err := models.ParseDocType(args[0])
		if err != nil {
			return err
		}
		file, err := readUpload(args[1])
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			fields, warnings, err := rt.Pipeline.ExtractDocument(cmd.Context(), file, docType)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
			return printJSON(fields)
		})
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func readUpload(path string) (models.UploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return models.UploadedFile{Filename: filepath.Base(path), Data: data}, nil
}
