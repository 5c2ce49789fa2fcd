package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

var ErrInvalid = errors.New("config: invalid")

// File is the YAML layout. Durations are Go duration strings ("250ms").
type File struct {
	Pipeline struct {
		MaxConcurrentDecisions int      `yaml:"max_concurrent_decisions"`
		BatchSize              int      `yaml:"batch_size"`
		ProcessingTimeout      string   `yaml:"processing_timeout"`
		BackpressureThreshold  float64  `yaml:"backpressure_threshold"`
		BatchInterval          string   `yaml:"batch_interval"`
		MetricsInterval        string   `yaml:"metrics_interval"`
		WorkerPoolSize         int      `yaml:"worker_pool_size"`
		ShutdownTimeout        string   `yaml:"shutdown_timeout"`
		ResultCacheSize        int      `yaml:"result_cache_size"`
		ResultCacheTTL         string   `yaml:"result_cache_ttl"`
		RequiredMarkers        []string `yaml:"required_markers"`
		Retry                  struct {
			MaxAttempts int    `yaml:"max_attempts"`
			Backoff     string `yaml:"backoff"`
			BaseDelay   string `yaml:"base_delay"`
		} `yaml:"retry"`
		CircuitBreaker struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			ResetTimeout     string `yaml:"reset_timeout"`
		} `yaml:"circuit_breaker"`
		Health struct {
			MaxErrorRate  float64 `yaml:"max_error_rate"`
			MaxQueueRatio float64 `yaml:"max_queue_ratio"`
		} `yaml:"health"`
	} `yaml:"pipeline"`

	DeadLetter struct {
		Backend        string `yaml:"backend"`
		RedisURL       string `yaml:"redis_url"`
		RedisKey       string `yaml:"redis_key"`
		DynamoTable    string `yaml:"dynamo_table"`
		DynamoRegion   string `yaml:"dynamo_region"`
		DynamoEndpoint string `yaml:"dynamo_endpoint"`
		KafkaBrokers   string `yaml:"kafka_brokers"`
		KafkaTopic     string `yaml:"kafka_topic"`
	} `yaml:"dead_letter"`

	Executor struct {
		URL            string  `yaml:"url"`
		SimulatedScale float64 `yaml:"simulated_scale"`
		FailureRate    float64 `yaml:"failure_rate"`
	} `yaml:"executor"`

	Log struct {
		Format    string `yaml:"format"`
		Verbosity *int   `yaml:"verbosity"`
	} `yaml:"log"`

	Trace struct {
		Enabled     bool   `yaml:"enabled"`
		Endpoint    string `yaml:"endpoint"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"trace"`

	TLS struct {
		CertFile          string `yaml:"cert_file"`
		KeyFile           string `yaml:"key_file"`
		ClientCAFile      string `yaml:"client_ca_file"`
		RequireClientCert bool   `yaml:"require_client_cert"`
	} `yaml:"tls"`

	HTTPAddr     string `yaml:"http_addr"`
	MetricsAddr  string `yaml:"metrics_addr"`
	AuditLogPath string `yaml:"audit_log_path"`
}

// LoadFile parses a YAML settings file over Defaults and validates the result.
func LoadFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	s, err := Parse(b)
	if err != nil {
		return Settings{}, fmt.Errorf("config: %q: %w", path, err)
	}
	return s, nil
}

// Parse decodes YAML bytes over Defaults and validates the result.
func Parse(b []byte) (Settings, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Settings{}, fmt.Errorf("unmarshal: %w", err)
	}
	s, err := f.apply(Defaults())
	if err != nil {
		return Settings{}, err
	}
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (f File) apply(s Settings) (Settings, error) {
	fp := f.Pipeline
	p := &s.Pipeline
	setInt(&p.MaxConcurrentDecisions, fp.MaxConcurrentDecisions)
	setInt(&p.BatchSize, fp.BatchSize)
	setInt(&p.WorkerPoolSize, fp.WorkerPoolSize)
	setInt(&p.ResultCacheSize, fp.ResultCacheSize)
	setInt(&p.Retry.MaxAttempts, fp.Retry.MaxAttempts)
	setInt(&p.CircuitBreaker.FailureThreshold, fp.CircuitBreaker.FailureThreshold)
	if fp.BackpressureThreshold != 0 {
		p.BackpressureThreshold = fp.BackpressureThreshold
	}
	if fp.Health.MaxErrorRate != 0 {
		p.Health.MaxErrorRate = fp.Health.MaxErrorRate
	}
	if fp.Health.MaxQueueRatio != 0 {
		p.Health.MaxQueueRatio = fp.Health.MaxQueueRatio
	}
	if len(fp.RequiredMarkers) > 0 {
		p.RequiredMarkers = append([]string(nil), fp.RequiredMarkers...)
	}
	if fp.Retry.Backoff != "" {
		b, err := decision.ParseBackoff(fp.Retry.Backoff)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: pipeline.retry.backoff: %v", ErrInvalid, err)
		}
		p.Retry.Backoff = b
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"pipeline.processing_timeout", fp.ProcessingTimeout, &p.ProcessingTimeout},
		{"pipeline.batch_interval", fp.BatchInterval, &p.BatchInterval},
		{"pipeline.metrics_interval", fp.MetricsInterval, &p.MetricsInterval},
		{"pipeline.shutdown_timeout", fp.ShutdownTimeout, &p.ShutdownTimeout},
		{"pipeline.result_cache_ttl", fp.ResultCacheTTL, &p.ResultCacheTTL},
		{"pipeline.retry.base_delay", fp.Retry.BaseDelay, &p.Retry.BaseDelay},
		{"pipeline.circuit_breaker.reset_timeout", fp.CircuitBreaker.ResetTimeout, &p.CircuitBreaker.ResetTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: %s: %v", ErrInvalid, d.field, err)
		}
		*d.dst = v
	}

	dl := f.DeadLetter
	setString(&s.DeadLetter.Backend, dl.Backend)
	setString(&s.DeadLetter.RedisURL, dl.RedisURL)
	setString(&s.DeadLetter.RedisKey, dl.RedisKey)
	setString(&s.DeadLetter.DynamoTable, dl.DynamoTable)
	setString(&s.DeadLetter.DynamoRegion, dl.DynamoRegion)
	setString(&s.DeadLetter.DynamoEndpoint, dl.DynamoEndpoint)
	setString(&s.DeadLetter.KafkaBrokers, dl.KafkaBrokers)
	setString(&s.DeadLetter.KafkaTopic, dl.KafkaTopic)

	setString(&s.Executor.URL, f.Executor.URL)
	if f.Executor.SimulatedScale > 0 {
		s.Executor.SimulatedScale = f.Executor.SimulatedScale
	}
	if f.Executor.FailureRate > 0 {
		s.Executor.FailureRate = f.Executor.FailureRate
	}

	setString(&s.Log.Format, f.Log.Format)
	if f.Log.Verbosity != nil {
		s.Log.Verbosity = *f.Log.Verbosity
	}
	s.Trace.Enabled = f.Trace.Enabled
	setString(&s.Trace.Endpoint, f.Trace.Endpoint)
	setString(&s.Trace.ServiceName, f.Trace.ServiceName)

	setString(&s.TLS.CertFile, f.TLS.CertFile)
	setString(&s.TLS.KeyFile, f.TLS.KeyFile)
	setString(&s.TLS.ClientCAFile, f.TLS.ClientCAFile)
	s.TLS.RequireClientCert = f.TLS.RequireClientCert

	setString(&s.HTTPAddr, f.HTTPAddr)
	setString(&s.MetricsAddr, f.MetricsAddr)
	setString(&s.AuditLogPath, f.AuditLogPath)
	return s, nil
}

// Validate rejects settings the pipeline cannot run with.
func Validate(s Settings) error {
	p := s.Pipeline
	var problems []string
	if p.MaxConcurrentDecisions <= 0 {
		problems = append(problems, "max_concurrent_decisions must be positive")
	}
	if p.BatchSize <= 0 {
		problems = append(problems, "batch_size must be positive")
	}
	if p.WorkerPoolSize <= 0 {
		problems = append(problems, "worker_pool_size must be positive")
	}
	if p.BackpressureThreshold <= 0 || p.BackpressureThreshold > 1 {
		problems = append(problems, "backpressure_threshold must be in (0, 1]")
	}
	if p.ProcessingTimeout <= 0 || p.BatchInterval <= 0 || p.MetricsInterval <= 0 {
		problems = append(problems, "timeouts and intervals must be positive")
	}
	if p.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	if _, err := decision.ParseBackoff(string(p.Retry.Backoff)); err != nil {
		problems = append(problems, err.Error())
	}
	if p.CircuitBreaker.FailureThreshold < 0 {
		problems = append(problems, "circuit_breaker.failure_threshold must not be negative")
	}
	if p.Health.MaxErrorRate < 0 || p.Health.MaxErrorRate > 1 {
		problems = append(problems, "health.max_error_rate must be in [0, 1]")
	}

	switch s.DeadLetter.Backend {
	case BackendMemory:
	case BackendRedis:
		if s.DeadLetter.RedisURL == "" {
			problems = append(problems, "dead_letter.redis_url is required for the redis backend")
		}
	case BackendDynamo:
		if s.DeadLetter.DynamoTable == "" {
			problems = append(problems, "dead_letter.dynamo_table is required for the dynamo backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown dead_letter.backend %q", s.DeadLetter.Backend))
	}
	if s.DeadLetter.KafkaBrokers != "" && s.DeadLetter.KafkaTopic == "" {
		problems = append(problems, "dead_letter.kafka_topic is required with kafka_brokers")
	}
	if (s.TLS.CertFile == "") != (s.TLS.KeyFile == "") {
		problems = append(problems, "tls.cert_file and tls.key_file must be set together")
	}
	if s.TLS.RequireClientCert && s.TLS.ClientCAFile == "" {
		problems = append(problems, "tls.client_ca_file is required with require_client_cert")
	}
	if s.Executor.FailureRate < 0 || s.Executor.FailureRate > 1 {
		problems = append(problems, "executor.failure_rate must be in [0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
