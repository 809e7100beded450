package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [username...]",
	Short: "Check backend health and report per-account storage usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.Heartbeat(cmd.Context()); err != nil {
			color.Red("backend: unreachable (%v)", err)
			return fmt.Errorf("heartbeat failed")
		}
		color.Green("backend: ok (%s)", cfg.DB.Engine)

		for _, username := range args {
			sess, err := engine.Session(cmd.Context(), username)
			if err != nil {
				color.Red("%s: %v", username, err)
				continue
			}
			kb, err := sess.StorageTotal(cmd.Context())
			sess.Close()
			if err != nil {
				color.Red("%s: %v", username, err)
				continue
			}
			if cfg.Limits.QuotaKB > 0 && kb > cfg.Limits.QuotaKB {
				color.Yellow("%s: %d KB (over %d KB quota)", username, kb, cfg.Limits.QuotaKB)
			} else {
				fmt.Printf("%s: %d KB\n", username, kb)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
