package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userdelCmd = &cobra.Command{
	Use:   "userdel <username>",
	Short: "Delete a sync account and all its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := admin()
		if err != nil {
			return err
		}
		username := args[0]

		if err := a.DeleteUser(cmd.Context(), username); err != nil {
			return err
		}
		fmt.Printf("Account %q and its records removed\n", username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userdelCmd)
}
