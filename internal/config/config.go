// Package config assembles service settings from defaults, an optional YAML
// file and PIPELINE_* environment variables, in that order.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/internal/security"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

// Dead-letter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendDynamo = "dynamo"
)

// Settings is everything the service binary needs to build a pipeline.
type Settings struct {
	Pipeline   decision.Config
	DeadLetter DeadLetterSettings
	Executor   ExecutorSettings
	Log        logging.Options
	Trace      TraceSettings
	// TLS applies to both the HTTP and the metrics listener.
	TLS security.TLSOptions

	HTTPAddr     string
	MetricsAddr  string
	AuditLogPath string
}

type DeadLetterSettings struct {
	Backend        string
	RedisURL       string
	RedisKey       string
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
	// KafkaBrokers mirrors every dead-lettered decision to KafkaTopic when set.
	KafkaBrokers string
	KafkaTopic   string
}

// ExecutorSettings selects the default executor. An empty URL uses the simulated one.
type ExecutorSettings struct {
	URL            string
	SimulatedScale float64
	FailureRate    float64
}

type TraceSettings struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Defaults returns the baseline settings.
func Defaults() Settings {
	return Settings{
		Pipeline: decision.DefaultConfig(),
		DeadLetter: DeadLetterSettings{
			Backend:    BackendMemory,
			RedisKey:   "decision-pipeline:deadletters",
			KafkaTopic: "decision-deadletters",
		},
		Executor: ExecutorSettings{SimulatedScale: 1},
		Log:      logging.Options{Format: "json", Verbosity: logging.DEFAULT},
		Trace:    TraceSettings{ServiceName: "decision-pipeline"},
		HTTPAddr: ":8080",
	}
}

// FromEnv overlays the environment on Defaults. Invalid values are ignored.
func FromEnv() Settings {
	s := Defaults()
	ApplyEnv(&s)
	return s
}

// ApplyEnv overlays set environment variables on s.
func ApplyEnv(s *Settings) {
	p := &s.Pipeline
	envInt("PIPELINE_MAX_CONCURRENT", &p.MaxConcurrentDecisions)
	envInt("PIPELINE_BATCH_SIZE", &p.BatchSize)
	envInt("PIPELINE_WORKERS", &p.WorkerPoolSize)
	envInt("PIPELINE_RETRY_ATTEMPTS", &p.Retry.MaxAttempts)
	envInt("PIPELINE_RESULT_CACHE_SIZE", &p.ResultCacheSize)
	envInt("PIPELINE_CIRCUIT_FAILURE_THRESHOLD", &p.CircuitBreaker.FailureThreshold)
	envDuration("PIPELINE_PROCESSING_TIMEOUT", &p.ProcessingTimeout)
	envDuration("PIPELINE_BATCH_INTERVAL", &p.BatchInterval)
	envDuration("PIPELINE_METRICS_INTERVAL", &p.MetricsInterval)
	envDuration("PIPELINE_RETRY_BASE_DELAY", &p.Retry.BaseDelay)
	envDuration("PIPELINE_SHUTDOWN_TIMEOUT", &p.ShutdownTimeout)
	envDuration("PIPELINE_RESULT_CACHE_TTL", &p.ResultCacheTTL)
	envDuration("PIPELINE_CIRCUIT_RESET_TIMEOUT", &p.CircuitBreaker.ResetTimeout)
	envFloat("PIPELINE_BACKPRESSURE_THRESHOLD", &p.BackpressureThreshold)
	envFloat("PIPELINE_HEALTH_MAX_ERROR_RATE", &p.Health.MaxErrorRate)
	envFloat("PIPELINE_HEALTH_MAX_QUEUE_RATIO", &p.Health.MaxQueueRatio)
	if v := strings.TrimSpace(os.Getenv("PIPELINE_RETRY_BACKOFF")); v != "" {
		if b, err := decision.ParseBackoff(v); err == nil {
			p.Retry.Backoff = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("PIPELINE_REQUIRED_MARKERS")); v != "" {
		p.RequiredMarkers = splitList(v)
	}

	envString("DLQ_BACKEND", &s.DeadLetter.Backend)
	envString("REDIS_URL", &s.DeadLetter.RedisURL)
	envString("DLQ_REDIS_KEY", &s.DeadLetter.RedisKey)
	envString("DLQ_DYNAMO_TABLE", &s.DeadLetter.DynamoTable)
	envString("AWS_REGION", &s.DeadLetter.DynamoRegion)
	envString("DYNAMO_ENDPOINT", &s.DeadLetter.DynamoEndpoint)
	envString("KAFKA_BROKERS", &s.DeadLetter.KafkaBrokers)
	envString("DLQ_KAFKA_TOPIC", &s.DeadLetter.KafkaTopic)

	envString("EXECUTOR_URL", &s.Executor.URL)
	envFloat("EXECUTOR_SIMULATED_SCALE", &s.Executor.SimulatedScale)
	envFloat("EXECUTOR_FAILURE_RATE", &s.Executor.FailureRate)

	envString("LOG_FORMAT", &s.Log.Format)
	if v := strings.TrimSpace(os.Getenv("LOG_VERBOSITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			s.Log.Verbosity = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("TRACE_ENABLED")); v != "" {
		s.Trace.Enabled = parseBool(v)
	}
	envString("TRACE_ENDPOINT", &s.Trace.Endpoint)
	envString("TRACE_SERVICE_NAME", &s.Trace.ServiceName)

	envString("TLS_CERT_FILE", &s.TLS.CertFile)
	envString("TLS_KEY_FILE", &s.TLS.KeyFile)
	envString("TLS_CLIENT_CA_FILE", &s.TLS.ClientCAFile)
	if v := strings.TrimSpace(os.Getenv("TLS_REQUIRE_CLIENT_CERT")); v != "" {
		s.TLS.RequireClientCert = parseBool(v)
	}

	envString("HTTP_ADDR", &s.HTTPAddr)
	envString("METRICS_ADDR", &s.MetricsAddr)
	envString("AUDIT_LOG_PATH", &s.AuditLogPath)
}

// Load reads path (when non-empty), overlays the environment and validates.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		var err error
		if s, err = LoadFile(path); err != nil {
			return Settings{}, err
		}
	}
	ApplyEnv(&s)
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			*dst = d
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
