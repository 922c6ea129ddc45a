package main

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/services"
	"github.com/spf13/cobra"
)

var (
	submitUser  string
	submitStage string
)

var submitCmd = &cobra.Command{
	Use:   "submit [doc-type=file]...",
	Short: "Submit the documents of one stage for a user",
	Long: `Extract every document of a stage and store the results on the user record.

Example:
  docctl submit --user u1 --stage identity pan=pan.jpg aadhar=aadhar.png bankstatement=stmt.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := models.ParseProfile(submitStage)
		if err != nil {
			return err
		}
		files, err := readFileArgs(args)
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			res, err := rt.Pipeline.SubmitStage(cmd.Context(), submitUser, stage, files)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVarP(&submitUser, "user", "u", "", "User ID")
	submitCmd.Flags().StringVarP(&submitStage, "stage", "s", "identity", "Stage: identity or income")
	_ = submitCmd.MarkFlagRequired("user")
}

// readFileArgs loads doc-type=file arguments.
func readFileArgs(args []string) (map[models.DocType]models.UploadedFile, error) {
	files := make(map[models.DocType]models.UploadedFile, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("argument %q is not doc-type=file", arg)
		}
		docType, err := models.ParseDocType(name)
		if err != nil {
			return nil, err
		}
		if _, dup := files[docType]; dup {
			return nil, fmt.Errorf("%s given more than once", docType)
		}
		file, err := readUpload(path)
		if err != nil {
			return nil, err
		}
		files[docType] = file
	}
	return files, nil
}
