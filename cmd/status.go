package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"stealthcompany.com/complaints/internal/state"
	"stealthcompany.com/complaints/pkg/zerolog_config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted state and per-company row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		zerolog_config.Setup("complaints-pipeline", cfg.ElasticsearchURL)

		tracker := state.NewTracker(cfg.StatePath)
		last, ok, err := tracker.Read()
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("last loaded date: %s\n", last.Format("2006-01-02"))
		} else {
			fmt.Println("last loaded date: never run")
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, company := range cfg.Companies {
			count, err := st.CountComplaints(cmd.Context(), company)
			if err != nil {
				return fmt.Errorf("failed to count complaints for %q: %w", company, err)
			}
			fmt.Printf("%-20s %d\n", company, count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
