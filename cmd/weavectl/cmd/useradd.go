package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var useraddCmd = &cobra.Command{
	Use:   "useradd <username>",
	Short: "Create a sync account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := admin()
		if err != nil {
			return err
		}
		username := args[0]

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		fmt.Println()

		fmt.Print("Repeat password: ")
		confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		fmt.Println()

		if string(password) != string(confirm) {
			return fmt.Errorf("passwords do not match")
		}
		if len(password) == 0 {
			return fmt.Errorf("empty password")
		}

		if err := a.CreateUser(cmd.Context(), username, string(password)); err != nil {
			return err
		}
		fmt.Printf("Account %q created\n", username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(useraddCmd)
}
