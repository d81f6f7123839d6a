package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DefaultStartDate is where the initial backfill begins when no state exists.
const DefaultStartDate = "2023-01-01"

// DefaultCompanies is the tracked entity list used when COMPANIES is unset.
var DefaultCompanies = []string{
	"jpmorgan",
	"bank of america",
	"wells fargo",
	"citibank",
	"u.s. bank",
	"goldman sachs",
	"pnc",
	"truist",
	"capital one",
	"state street",
}

// Couchbase carries the optional shared-cluster store settings.
type Couchbase struct {
	URL      string
	Username string
	Password string
	Bucket   string
}

type Config struct {
	StartDate time.Time
	Companies []string

	APIBaseURL  string
	HTTPTimeout time.Duration
	PageSize    int

	// StoreBackend selects "sqlite" (default) or "couchbase".
	StoreBackend string
	DatabasePath string
	Couchbase    Couchbase

	StatePath string

	DbtProjectDir string

	// MetricsAddr enables the /metrics endpoint when non-empty.
	MetricsAddr      string
	ElasticsearchURL string
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using process environment")
	}

	cfg := Config{
		Companies:        splitList(os.Getenv("COMPANIES")),
		APIBaseURL:       os.Getenv("CFPB_API_URL"),
		StoreBackend:     getEnvOrDefault("STORE_BACKEND", "sqlite"),
		DatabasePath:     getEnvOrDefault("DATABASE_PATH", "database/cfpb_complaints.db"),
		StatePath:        getEnvOrDefault("STATE_PATH", "pipeline_state.json"),
		DbtProjectDir:    getEnvOrDefault("DBT_PROJECT_DIR", "duckdb_dbt"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		ElasticsearchURL: os.Getenv("ELASTICSEARCH_URL"),
		Couchbase: Couchbase{
			URL:      getEnvOrDefault("COUCHBASE_URL", "couchbase://localhost"),
			Username: getEnvOrDefault("COUCHBASE_USERNAME", "complaints_user"),
			Password: getEnvOrDefault("COUCHBASE_PASSWORD", "password"),
			Bucket:   getEnvOrDefault("COUCHBASE_BUCKET", "complaints"),
		},
	}
	if len(cfg.Companies) == 0 {
		cfg.Companies = append([]string(nil), DefaultCompanies...)
	}

	start, err := time.Parse("2006-01-02", getEnvOrDefault("START_DATE", DefaultStartDate))
	if err != nil {
		return Config{}, fmt.Errorf("invalid START_DATE: %w", err)
	}
	cfg.StartDate = start

	timeout, err := time.ParseDuration(getEnvOrDefault("HTTP_TIMEOUT", "30s"))
	if err != nil {
		timeout = 30 * time.Second
	}
	cfg.HTTPTimeout = timeout

	pageSize, err := strconv.Atoi(getEnvOrDefault("PAGE_SIZE", "100"))
	if err != nil || pageSize < 1 {
		pageSize = 100
	}
	cfg.PageSize = pageSize

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
