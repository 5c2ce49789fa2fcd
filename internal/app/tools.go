package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/your-org/decision-pipeline/internal/audit"
	"github.com/your-org/decision-pipeline/internal/config"
	"github.com/your-org/decision-pipeline/internal/metrics"
	"github.com/your-org/decision-pipeline/internal/pipeline"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

// DecisionReport is the terminal outcome of one decision from a run file.
type DecisionReport struct {
	ID     string
	Result decision.Result
	Err    error
}

// RunReport captures the outputs of one decision file run.
type RunReport struct {
	Decisions []DecisionReport
	Metrics   metrics.Snapshot
	Recorded  metrics.MemorySnapshot
}

// RunFile pushes every decision in a JSONL file through a fresh pipeline,
// waits for all of them and prints a summary to out. Backpressured
// submissions are retried after one batch interval.
func RunFile(ctx context.Context, s config.Settings, path string, out io.Writer, logger logr.Logger) (RunReport, error) {
	decisions, err := ReadDecisions(path)
	if err != nil {
		return RunReport{}, err
	}

	rt, err := Build(ctx, s, logger)
	if err != nil {
		return RunReport{}, err
	}

	futures := make([]*pipeline.Future, 0, len(decisions))
	for _, d := range decisions {
		f, err := submitWithBackoff(ctx, rt.Pipeline, d)
		if err != nil {
			_ = rt.Close(context.Background())
			return RunReport{}, fmt.Errorf("submit %q: %w", d.ID, err)
		}
		futures = append(futures, f)
	}

	report := RunReport{Decisions: make([]DecisionReport, 0, len(futures))}
	failed := 0
	for _, f := range futures {
		res, err := f.Wait(ctx)
		if err != nil {
			failed++
		}
		report.Decisions = append(report.Decisions, DecisionReport{ID: f.ID(), Result: res, Err: err})
	}

	closeErr := rt.Close(ctx)
	report.Metrics = rt.Pipeline.GetMetrics()
	report.Recorded = rt.Metrics.Snapshot()

	_, _ = fmt.Fprintf(out, "pipeline processed %d decision(s) from %s\n", len(report.Decisions), path)
	for _, d := range report.Decisions {
		if d.Err != nil {
			_, _ = fmt.Fprintf(out, "- %s: error=%v\n", d.ID, d.Err)
			continue
		}
		_, _ = fmt.Fprintf(out, "- %s: %s confidence=%.2f attempts=%d duration=%s\n",
			d.ID, d.Result.Outcome, d.Result.Confidence, d.Result.Attempts, d.Result.ProcessingTime)
	}
	_, _ = fmt.Fprintf(out, "metrics processed=%d errors=%d error_rate=%.3f avg_ms=%.1f retries=%d\n",
		report.Metrics.TotalProcessed,
		report.Metrics.TotalErrors,
		report.Metrics.ErrorRate,
		report.Metrics.AvgProcessingTimeMs,
		report.Recorded.RetryAttempts,
	)

	if closeErr != nil {
		return report, fmt.Errorf("shutdown: %w", closeErr)
	}
	if failed > 0 {
		return report, fmt.Errorf("run completed with %d failed decision(s)", failed)
	}
	return report, nil
}

func submitWithBackoff(ctx context.Context, p *pipeline.Pipeline, d decision.Decision) (*pipeline.Future, error) {
	wait := p.Config().BatchInterval
	for {
		f, err := p.Submit(d)
		if !errors.Is(err, pipeline.ErrBackpressure) {
			return f, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ReadDecisions parses one JSON decision per line. Blank lines and lines
// starting with '#' are skipped.
func ReadDecisions(path string) ([]decision.Decision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decisions %q: %w", path, err)
	}
	defer f.Close()

	var out []decision.Decision
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxDecisionBody)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var d decision.Decision
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read decisions %q: %w", path, err)
	}
	return out, nil
}

// ValidateConfig loads a settings file with the environment applied.
func ValidateConfig(path string, out io.Writer) error {
	s, err := config.Load(path)
	if err != nil {
		return err
	}
	p := s.Pipeline
	_, _ = fmt.Fprintf(out, "config is valid: %s (admission_limit=%.0f batch_size=%d workers=%d retry=%d/%s dead_letter=%s)\n",
		path, p.AdmissionLimit(), p.BatchSize, p.WorkerPoolSize, p.Retry.MaxAttempts, p.Retry.Backoff, s.DeadLetter.Backend)
	return nil
}

// ExportAudit converts a JSONL audit log to CSV.
func ExportAudit(inputPath, outputPath string, out io.Writer) error {
	n, err := audit.ExportJSONLToCSV(inputPath, outputPath)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "audit export complete: %d record(s) %s -> %s\n", n, inputPath, outputPath)
	return nil
}
