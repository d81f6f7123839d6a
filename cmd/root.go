package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"stealthcompany.com/complaints/internal/config"
	"stealthcompany.com/complaints/internal/store"
)

var (
	flagDatabase  string
	flagStateFile string
)

var rootCmd = &cobra.Command{
	Use:   "complaints-pipeline",
	Short: "Incremental CFPB consumer-complaints extract-and-load pipeline",
	Long: `complaints-pipeline pulls consumer complaint records from the CFPB
search API for a configured set of companies, appends new records to the
analytical store, and triggers the downstream dbt transformations.

Each run loads only the date range not yet covered by the persisted state,
and state advances only when every company loaded successfully.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Any error exits non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "database", "", "override the analytical database path")
	rootCmd.PersistentFlags().StringVar(&flagStateFile, "state-file", "", "override the state file path")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagDatabase != "" {
		cfg.DatabasePath = flagDatabase
	}
	if flagStateFile != "" {
		cfg.StatePath = flagStateFile
	}
	return cfg, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "", "sqlite":
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return store.OpenSQLite(cfg.DatabasePath)
	case "couchbase":
		return store.OpenCouchbase(store.CouchbaseOptions{
			URL:      cfg.Couchbase.URL,
			Username: cfg.Couchbase.Username,
			Password: cfg.Couchbase.Password,
			Bucket:   cfg.Couchbase.Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
