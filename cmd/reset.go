package cmd

import (
	"github.com/spf13/cobra"
	"stealthcompany.com/complaints/internal/state"
	"stealthcompany.com/complaints/pkg/zerolog_config"
)

var resetStateCmd = &cobra.Command{
	Use:   "reset-state",
	Short: "Delete the persisted pipeline state",
	Long: `Deletes the state file so the next run performs the full backfill
from the configured start date. Loaded data is left in place; re-loading is
safe because the store ignores complaint ids it already holds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		zerolog_config.Setup("complaints-pipeline", cfg.ElasticsearchURL)

		return state.NewTracker(cfg.StatePath).Reset()
	},
}

func init() {
	rootCmd.AddCommand(resetStateCmd)
}
