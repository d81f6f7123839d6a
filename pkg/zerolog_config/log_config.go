package zerolog_config

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.elastic.co/ecszerolog"
)

var setupOnce sync.Once

// elasticsearchWriter ships each log line to an Elasticsearch index.
type elasticsearchWriter struct {
	url string
}

func (w elasticsearchWriter) Write(p []byte) (int, error) {
	resp, err := http.Post(w.url+"/_doc", "application/json", bytes.NewReader(p))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("elasticsearch returned %d", resp.StatusCode)
	}
	return len(p), nil
}

// Setup configures the global logger: pretty console output always, plus an
// ECS-formatted Elasticsearch sink when elasticsearchURL is non-empty. The
// level comes from LOG_LEVEL (default info). Subsequent calls are no-ops.
func Setup(service, elasticsearchURL string) {
	setupOnce.Do(func() {
		level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
		if err != nil || level == zerolog.NoLevel {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)

		console := zerolog.ConsoleWriter{Out: os.Stdout}
		if elasticsearchURL == "" {
			log.Logger = zerolog.New(console).With().
				Str("app", service).Timestamp().Logger()
			return
		}

		ecs := ecszerolog.New(elasticsearchWriter{url: elasticsearchURL + "/" + service})
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(ecs, console)).With().
			Str("app", service).Timestamp().Logger()
	})
}
