package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var alertCmd = &cobra.Command{
	Use:   "alert <username> [message]",
	Short: "Set or clear the alert relayed to an account's clients",
	Long: `With a message, every sync response for the account will carry it in
the X-Weave-Alert header. Without one, the alert is cleared.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := admin()
		if err != nil {
			return err
		}
		username := args[0]
		message := ""
		if len(args) == 2 {
			message = args[1]
		}

		if err := a.SetAlert(cmd.Context(), username, message); err != nil {
			return err
		}
		if message == "" {
			fmt.Printf("Alert cleared for %q\n", username)
		} else {
			fmt.Printf("Alert set for %q\n", username)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertCmd)
}
