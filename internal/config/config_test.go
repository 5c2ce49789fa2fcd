package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

func TestFromEnvDefaults(t *testing.T) {
	s := FromEnv()
	if s.Pipeline.MaxConcurrentDecisions != 10000 || s.Pipeline.BatchSize != 1000 {
		t.Fatalf("unexpected pipeline defaults: %+v", s.Pipeline)
	}
	if s.Pipeline.Retry.MaxAttempts != 3 || s.Pipeline.Retry.Backoff != decision.BackoffLinear {
		t.Fatalf("unexpected retry defaults: %+v", s.Pipeline.Retry)
	}
	if s.DeadLetter.Backend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", s.DeadLetter.Backend)
	}
	if err := Validate(s); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PIPELINE_MAX_CONCURRENT", "50")
	t.Setenv("PIPELINE_BATCH_SIZE", "5")
	t.Setenv("PIPELINE_PROCESSING_TIMEOUT", "2s")
	t.Setenv("PIPELINE_RETRY_ATTEMPTS", "4")
	t.Setenv("PIPELINE_RETRY_BACKOFF", "exponential")
	t.Setenv("PIPELINE_BACKPRESSURE_THRESHOLD", "0.5")
	t.Setenv("PIPELINE_REQUIRED_MARKERS", "kyc, aml")
	t.Setenv("DLQ_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRACE_ENABLED", "yes")
	t.Setenv("LOG_VERBOSITY", "4")

	s := FromEnv()
	p := s.Pipeline
	if p.MaxConcurrentDecisions != 50 || p.BatchSize != 5 || p.ProcessingTimeout != 2*time.Second {
		t.Fatalf("overrides not applied: %+v", p)
	}
	if p.Retry.MaxAttempts != 4 || p.Retry.Backoff != decision.BackoffExponential {
		t.Fatalf("retry overrides not applied: %+v", p.Retry)
	}
	if p.BackpressureThreshold != 0.5 || p.AdmissionLimit() != 25 {
		t.Fatalf("threshold not applied: %v", p.BackpressureThreshold)
	}
	if strings.Join(p.RequiredMarkers, ",") != "kyc,aml" {
		t.Fatalf("markers = %v", p.RequiredMarkers)
	}
	if s.DeadLetter.Backend != BackendRedis || s.DeadLetter.RedisURL == "" {
		t.Fatalf("dead letter settings = %+v", s.DeadLetter)
	}
	if !s.Trace.Enabled || s.Log.Verbosity != 4 {
		t.Fatalf("trace/log settings = %+v %+v", s.Trace, s.Log)
	}
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("PIPELINE_BATCH_SIZE", "-3")
	t.Setenv("PIPELINE_BATCH_INTERVAL", "soon")
	t.Setenv("PIPELINE_RETRY_BACKOFF", "fibonacci")

	s := FromEnv()
	if s.Pipeline.BatchSize != 1000 || s.Pipeline.BatchInterval != 100*time.Millisecond {
		t.Fatalf("invalid values should be ignored: %+v", s.Pipeline)
	}
	if s.Pipeline.Retry.Backoff != decision.BackoffLinear {
		t.Fatalf("invalid backoff should be ignored, got %q", s.Pipeline.Retry.Backoff)
	}
}

func TestParseYAML(t *testing.T) {
	raw := []byte(`
pipeline:
  max_concurrent_decisions: 200
  batch_size: 20
  batch_interval: 50ms
  processing_timeout: 5s
  backpressure_threshold: 0.75
  retry:
    max_attempts: 5
    backoff: exponential_jitter
    base_delay: 200ms
  circuit_breaker:
    failure_threshold: 10
    reset_timeout: 30s
dead_letter:
  backend: dynamo
  dynamo_table: deadletters
  kafka_brokers: localhost:9092
log:
  verbosity: 0
http_addr: ":9090"
`)
	s, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := s.Pipeline
	if p.MaxConcurrentDecisions != 200 || p.BatchSize != 20 || p.BatchInterval != 50*time.Millisecond {
		t.Fatalf("pipeline = %+v", p)
	}
	if p.Retry.MaxAttempts != 5 || p.Retry.Backoff != decision.BackoffExponentialJitter || p.Retry.BaseDelay != 200*time.Millisecond {
		t.Fatalf("retry = %+v", p.Retry)
	}
	if p.CircuitBreaker.FailureThreshold != 10 || p.CircuitBreaker.ResetTimeout != 30*time.Second {
		t.Fatalf("breaker = %+v", p.CircuitBreaker)
	}
	if p.MetricsInterval != 5*time.Second {
		t.Fatalf("unset fields keep defaults, got metrics interval %s", p.MetricsInterval)
	}
	if s.DeadLetter.Backend != BackendDynamo || s.DeadLetter.KafkaTopic != "decision-deadletters" {
		t.Fatalf("dead letter = %+v", s.DeadLetter)
	}
	if s.Log.Verbosity != 0 || s.HTTPAddr != ":9090" {
		t.Fatalf("log/http = %+v %q", s.Log, s.HTTPAddr)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":  "pipeline:\n  batch_interval: often\n",
		"bad backoff":   "pipeline:\n  retry:\n    backoff: random\n",
		"threshold":     "pipeline:\n  backpressure_threshold: 1.5\n",
		"backend":       "dead_letter:\n  backend: s3\n",
		"redis no url":  "dead_letter:\n  backend: redis\n",
		"dynamo table":  "dead_letter:\n  backend: dynamo\n",
		"failure rate":  "executor:\n  failure_rate: 2\n",
		"negative size": "pipeline:\n  batch_size: -1\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadOverlaysEnvOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  batch_size: 20\n  worker_pool_size: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIPELINE_BATCH_SIZE", "40")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Pipeline.BatchSize != 40 || s.Pipeline.WorkerPoolSize != 2 {
		t.Fatalf("env should win over file: %+v", s.Pipeline)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
