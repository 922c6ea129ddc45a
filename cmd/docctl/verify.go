package main

import (
	"github.com/Lllllllleong/documentverification/internal/models"
	"github.com/Lllllllleong/documentverification/internal/services"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [user-id] [profile]",
	Short: "Reconcile a user's stored documents for a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := models.ParseProfile(args[1])
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			res, err := rt.Pipeline.Verify(cmd.Context(), args[0], profile)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [user-id]",
	Short: "Scan a user's stored bank statement for salary credits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *services.Runtime) error {
			res, err := rt.Pipeline.ScanSalary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(scanCmd)
}
