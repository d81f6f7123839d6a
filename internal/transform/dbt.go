package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/complaints/internal/metrics"
	"stealthcompany.com/complaints/internal/retry"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusWarning = "warning"
)

// Result is the outcome of a downstream transform invocation.
type Result struct {
	Status string
	Detail string
}

// Invoker runs the downstream SQL transformations after a successful load.
type Invoker interface {
	Run(ctx context.Context) Result
}

// DbtRunner shells out to dbt in the configured project directory: `dbt run`
// to build the models, then `dbt test` once they built cleanly. Failing data
// tests degrade the result to a warning instead of failing the pipeline.
type DbtRunner struct {
	ProjectDir string
	Command    string
	Policy     retry.Policy
}

func NewDbtRunner(projectDir string, policy retry.Policy) *DbtRunner {
	return &DbtRunner{
		ProjectDir: projectDir,
		Command:    "dbt",
		Policy:     policy,
	}
}

func (r *DbtRunner) Run(ctx context.Context) Result {
	if _, err := os.Stat(r.ProjectDir); err != nil {
		log.Error().Err(err).Str("dir", r.ProjectDir).Msg("dbt project directory not found")
		metrics.RecordTransformRun(StatusFailed)
		return Result{
			Status: StatusFailed,
			Detail: fmt.Sprintf("dbt project directory not found: %s", r.ProjectDir),
		}
	}

	if err := r.invoke(ctx, "run"); err != nil {
		log.Error().Err(err).Msg("dbt run failed")
		metrics.RecordTransformRun(StatusFailed)
		return Result{Status: StatusFailed, Detail: err.Error()}
	}
	log.Info().Msg("dbt run completed successfully")

	if err := r.invoke(ctx, "test"); err != nil {
		// Failing tests flag quality issues in the loaded data but do not
		// invalidate the load itself.
		log.Warn().Err(err).Msg("dbt tests reported failures")
		metrics.RecordTransformRun(StatusWarning)
		return Result{Status: StatusWarning, Detail: err.Error()}
	}
	log.Info().Msg("dbt tests completed successfully")

	metrics.RecordTransformRun(StatusSuccess)
	return Result{Status: StatusSuccess, Detail: "models built and tested"}
}

func (r *DbtRunner) invoke(ctx context.Context, subcommand string) error {
	command := r.Command
	if command == "" {
		command = "dbt"
	}

	return r.Policy.Do(ctx, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, command, subcommand)
		cmd.Dir = r.ProjectDir

		out, err := cmd.CombinedOutput()
		if err != nil {
			return retry.Transient(fmt.Errorf("%s %s failed: %v: %s",
				command, subcommand, err, tailOf(out)))
		}
		return nil
	})
}

// tailOf keeps the end of the command output, where dbt prints its summary.
func tailOf(out []byte) string {
	const limit = 2000
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > limit {
		trimmed = trimmed[len(trimmed)-limit:]
	}
	return string(trimmed)
}
