package main

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/documentverification/internal/services"
	"github.com/spf13/cobra"
)

var userFields string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect or remove user records",
}

var userGetCmd = &cobra.Command{
	Use:   "get [user-id]",
	Short: "Print a user record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields []string
		if userFields != "" {
			fields = strings.Split(userFields, ",")
		}
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			rec, err := rt.Pipeline.Store().Get(cmd.Context(), args[0], fields...)
			if err != nil {
				return err
			}
			return printJSON(rec)
		})
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete [user-id]",
	Short: "Delete a user record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			n, err := rt.Pipeline.Store().Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("user %s not found", args[0])
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userGetCmd)
	userCmd.AddCommand(userDeleteCmd)
	userGetCmd.Flags().StringVar(&userFields, "fields", "", "Comma-separated sections to project, e.g. pan,aadhar")
}
