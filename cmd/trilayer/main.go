// Trilayer: isolation-keyed conversation history for AI feedback sessions.
//
// Every feedback exchange between an AI coding assistant and its
// operator is stored under a three-layer isolation key derived from the
// client application, the worker label, and the project directory. The
// CLI exposes the write entry point, the four browsing modes, search,
// export, and the per-isolation preference store.
//
// Usage:
//
//	trilayer save --client cursor --worker w1 --prompt "..."   # record an exchange
//	trilayer list --mode global                                # browse history
//	trilayer export --mode global --format json --out h.json   # export
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trilayer/trilayer/internal/history"
)

var version = "0.1.0"

// Shared handles, opened once per invocation in PersistentPreRunE.
var (
	store   *history.Store
	manager *history.Manager
	dataDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "trilayer",
		Short:   "Isolation-keyed conversation history for AI feedback sessions",
		Version: version,
		Long: `Trilayer stores feedback exchanges from AI coding assistants under a
three-layer isolation key (client + worker + project) and lets you
browse them at four widening scopes: the exact isolation, the project
level, the environment level, or globally.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := history.DefaultConfig()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			var err error
			store, err = history.New(cfg)
			if err != nil {
				return fmt.Errorf("opening history store: %w", err)
			}
			manager = history.NewManager(store)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if store != nil {
				store.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"Data directory (default ~/.trilayer)")

	rootCmd.AddCommand(
		saveCmd(),
		listCmd(),
		searchCmd(),
		exportCmd(),
		deleteCmd(),
		keysCmd(),
		clientsCmd(),
		workersCmd(),
		projectsCmd(),
		configCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
