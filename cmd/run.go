package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"stealthcompany.com/complaints/internal/cfpb"
	"stealthcompany.com/complaints/internal/loader"
	"stealthcompany.com/complaints/internal/metrics"
	"stealthcompany.com/complaints/internal/pipeline"
	"stealthcompany.com/complaints/internal/retry"
	"stealthcompany.com/complaints/internal/state"
	"stealthcompany.com/complaints/internal/transform"
	"stealthcompany.com/complaints/pkg/zerolog_config"
)

var (
	flagResetState    bool
	flagSkipTransform bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one incremental extract-and-load pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		zerolog_config.Setup("complaints-pipeline", cfg.ElasticsearchURL)
		log.Info().Msg("Starting complaints pipeline run")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.MetricsAddr != "" {
			server := metrics.Serve(cfg.MetricsAddr)
			defer server.Close()
			metrics.StartSystemMetrics(ctx, 15*time.Second)
		}

		tracker := state.NewTracker(cfg.StatePath)
		if flagResetState {
			if err := tracker.Reset(); err != nil {
				return err
			}
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		client := cfpb.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, cfpb.WithPageSize(cfg.PageSize))
		defer client.Close()

		var invoker transform.Invoker
		if !flagSkipTransform {
			invoker = transform.NewDbtRunner(cfg.DbtProjectDir, retry.Policy{
				MaxAttempts:    3,
				InitialBackoff: 10 * time.Second,
				MaxBackoff:     10 * time.Second,
				Multiplier:     1,
			})
		}

		coordinator := &pipeline.Coordinator{
			Entities:  cfg.Companies,
			StartDate: cfg.StartDate,
			Tracker:   tracker,
			Executor:  loader.NewExecutor(client, st),
			Transform: invoker,
		}

		summary := coordinator.Run(ctx)
		logSummary(summary)

		if !summary.Ok() {
			return fmt.Errorf("pipeline run finished with status %s", summary.Status)
		}
		return nil
	},
}

func logSummary(summary pipeline.Summary) {
	for _, res := range summary.Results {
		event := log.Info()
		if res.Status != loader.StatusSuccess {
			event = log.Error()
		}
		event.
			Str("entity", res.Entity).
			Str("status", res.Status).
			Str("detail", res.Detail).
			Msg("Entity result")
	}
	if summary.Transform != nil {
		log.Info().
			Str("status", summary.Transform.Status).
			Str("detail", summary.Transform.Detail).
			Msg("Transform result")
	}
	log.Info().
		Str("status", summary.Status).
		Str("range", summary.DateRange.String()).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Int("total", summary.TotalEntities).
		Msg("Pipeline summary")
}

func init() {
	runCmd.Flags().BoolVar(&flagResetState, "reset-state", false, "delete persisted state before running")
	runCmd.Flags().BoolVar(&flagSkipTransform, "skip-transform", false, "skip the dbt transform step")
	rootCmd.AddCommand(runCmd)
}
