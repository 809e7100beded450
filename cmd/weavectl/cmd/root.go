// Package cmd holds the weavectl operator commands: account
// provisioning and service status checks against the same backends the
// server uses.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"weavesync/internal/app/server"
	"weavesync/internal/app/server/config"
	"weavesync/internal/auth"
	"weavesync/internal/storage"
	"weavesync/internal/utils/logger"
)

var (
	cfg      *config.Config
	log      *slog.Logger
	engine   storage.Engine
	provider auth.Provider
)

var rootCmd = &cobra.Command{
	Use:   "weavectl",
	Short: "Operator tooling for the Weave sync server",
	Long: `weavectl manages sync accounts and inspects the storage backend.
It reads the same environment configuration as the server binary.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	defer func() {
		if engine != nil {
			_ = engine.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg = config.MustLoad()
	log = logger.New(cfg.Env)

	var err error
	engine, provider, err = server.Backends(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("connect backends: %w", err)
	}
	return nil
}

// admin returns the provisioning interface, which the none auth engine
// does not offer.
func admin() (auth.Admin, error) {
	a, ok := provider.(auth.Admin)
	if !ok {
		return nil, fmt.Errorf("auth engine %q cannot manage accounts", cfg.DB.AuthEngine)
	}
	return a, nil
}
