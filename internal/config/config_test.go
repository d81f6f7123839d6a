package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, DefaultCompanies, cfg.Companies)
	require.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	require.Equal(t, "sqlite", cfg.StoreBackend)
	require.Equal(t, "database/cfpb_complaints.db", cfg.DatabasePath)
	require.Equal(t, "pipeline_state.json", cfg.StatePath)
	require.Equal(t, "duckdb_dbt", cfg.DbtProjectDir)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 100, cfg.PageSize)
	require.Empty(t, cfg.MetricsAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("COMPANIES", "acme bank, big credit , ")
	t.Setenv("START_DATE", "2024-06-01")
	t.Setenv("STORE_BACKEND", "couchbase")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("PAGE_SIZE", "250")
	t.Setenv("METRICS_ADDR", ":9091")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []string{"acme bank", "big credit"}, cfg.Companies)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	require.Equal(t, "couchbase", cfg.StoreBackend)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 250, cfg.PageSize)
	require.Equal(t, ":9091", cfg.MetricsAddr)
}

func TestLoadRejectsInvalidStartDate(t *testing.T) {
	t.Setenv("START_DATE", "January 1st")

	_, err := Load()
	require.ErrorContains(t, err, "invalid START_DATE")
}

func TestLoadFallsBackOnBadTunables(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "fast")
	t.Setenv("PAGE_SIZE", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 100, cfg.PageSize)
}
