// cmd/tools/dataset-tool/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"loan-club/internal/common/config"
	"loan-club/internal/common/logger"
	"loan-club/internal/lifecycle"
	"loan-club/internal/store"
)

var (
	configPath string
	timeout    time.Duration
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dataset-tool",
	Short: "Export, import and copy the loan club Dataset",
	Long: `Maintenance commands for the single Dataset document.

The backend is taken from the server configuration (configs/config.yaml,
APP_ENVIRONMENT overlay, STORE_BACKEND and friends), or from --config.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (defaults to configs/config.yaml lookup)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "overall command timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(exportCmd, importCmd, copyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// Wiring shared by the subcommands
// =============================================================================

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func newLogger() logger.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logger.NewStructured(level, "console")
}

// openStore returns the Store for cfg plus a func releasing its connection.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*store.Store, func(), error) {
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", cfg.Store.Backend, err)
	}
	st := store.New(backend.Gateway, store.Options{
		CreateIfMissing: cfg.Store.CreateIfMissing,
		Timeout:         config.GetDuration(cfg.Store.Timeout),
	}, log, nil)
	return st, func() { backend.Close() }, nil
}

func newService(st *store.Store, adminSecret string, log logger.Logger) *lifecycle.Service {
	return lifecycle.NewService(lifecycle.ServiceDependencies{
		Store:  st,
		Logger: log,
	}, &lifecycle.Config{AdminSecret: adminSecret})
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
