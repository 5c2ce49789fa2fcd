package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/decision-pipeline/internal/cache"
	"github.com/your-org/decision-pipeline/internal/config"
	"github.com/your-org/decision-pipeline/internal/pipeline"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

func testPipeline(t *testing.T, mutate func(*decision.Config), fn decision.ExecuteFunc) *pipeline.Pipeline {
	t.Helper()
	cfg := decision.Config{
		MaxConcurrentDecisions: 100,
		BatchSize:              10,
		BatchInterval:          5 * time.Millisecond,
		MetricsInterval:        20 * time.Millisecond,
		ProcessingTimeout:      time.Second,
		ShutdownTimeout:        50 * time.Millisecond,
		Retry:                  decision.RetryPolicy{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if fn == nil {
		fn = func(context.Context, decision.Decision) (decision.Result, error) {
			return decision.Result{Outcome: "approve", Confidence: 0.9}, nil
		}
	}
	p, err := pipeline.New(cfg, pipeline.WithLogger(testr.New(t)), pipeline.WithExecutor(fn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

const validBody = `{"id":"%s","type":"credit","priority":"high","customerId":"cust_9","complexity":"simple"}`

func body(id string) *strings.Reader {
	return strings.NewReader(strings.Replace(validBody, "%s", id, 1))
}

func TestSubmitAndWait(t *testing.T) {
	p := testPipeline(t, nil, nil)
	srv := httptest.NewServer(Handler(p, nil, testr.New(t)))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/decisions?wait=true", "application/json", body("d-1"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "d-1", got.ID)
	assert.Equal(t, "resolved", got.Status)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Success)

	lookup, err := http.Get(srv.URL + "/decisions/d-1")
	require.NoError(t, err)
	defer lookup.Body.Close()
	require.Equal(t, http.StatusOK, lookup.StatusCode)
	var rec cache.Record
	require.NoError(t, json.NewDecoder(lookup.Body).Decode(&rec))
	assert.Equal(t, cache.StatusResolved, rec.Status)
}

func TestSubmitAsyncAndUnknownLookup(t *testing.T) {
	p := testPipeline(t, nil, nil)
	h := Handler(p, nil, testr.New(t))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/decisions", body("")))
	require.Equal(t, http.StatusAccepted, rr.Code)
	var got submitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "queued", got.Status)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/decisions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/decisions", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitRejectionStatuses(t *testing.T) {
	p := testPipeline(t, func(c *decision.Config) {
		c.MaxConcurrentDecisions = 2
		c.BackpressureThreshold = 0.5
		c.BatchInterval = time.Hour
	}, nil)
	h := Handler(p, nil, testr.New(t))

	post := func(id string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/decisions", body(id)))
		return rr
	}

	require.Equal(t, http.StatusAccepted, post("a").Code)
	assert.Equal(t, http.StatusConflict, post("a").Code)
	require.Equal(t, http.StatusAccepted, post("b").Code)

	rr := post("c")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), "backpressure")

	_ = p.Shutdown(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, post("d").Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestWaitReportsDeadLetter(t *testing.T) {
	p := testPipeline(t, nil, func(context.Context, decision.Decision) (decision.Result, error) {
		return decision.Result{}, errors.New("engine down")
	})
	h := Handler(p, nil, testr.New(t))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/decisions?wait=true", body("dl-1")))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var got submitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, string(cache.StatusDeadLettered), got.Status)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/deadletters?limit=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dl-1")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/deadletters?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReadOnlyEndpoints(t *testing.T) {
	p := testPipeline(t, nil, nil)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "decision_pipeline_probe_total"}))
	h := Handler(p, reg, testr.New(t))

	for path, want := range map[string]string{
		"/healthz":          `"ok":true`,
		"/readyz":           `"ready":true`,
		"/status":           `"accepting":true`,
		"/metrics/snapshot": `"errorRate"`,
		"/metrics":          "decision_pipeline_probe_total",
		"/version":          `"name":"decision-pipeline"`,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Body.String(), want, path)
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")
	lines := []string{
		`# sample batch`,
		`{"id":"r-1","type":"credit","priority":"normal","customerId":"c1","complexity":"simple"}`,
		``,
		`{"id":"r-2","type":"fraud","priority":"high","customerId":"c2","complexity":"complex"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))

	s := config.Defaults()
	s.Pipeline.BatchInterval = 5 * time.Millisecond
	s.Pipeline.MetricsInterval = 20 * time.Millisecond
	s.Executor.SimulatedScale = 0.01
	s.AuditLogPath = filepath.Join(dir, "audit.jsonl")

	var out bytes.Buffer
	report, err := RunFile(context.Background(), s, path, &out, testr.New(t))
	require.NoError(t, err)
	require.Len(t, report.Decisions, 2)
	assert.Equal(t, int64(2), report.Metrics.TotalProcessed)
	assert.Contains(t, out.String(), "pipeline processed 2 decision(s)")

	csvPath := filepath.Join(dir, "audit.csv")
	out.Reset()
	require.NoError(t, ExportAudit(s.AuditLogPath, csvPath, &out))
	assert.Contains(t, out.String(), "2 record(s)")
}

func TestReadDecisionsReportsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"ok\"}\nnot json\n"), 0o600))
	_, err := ReadDecisions(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}

func TestValidateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  batch_size: 25\n"), 0o600))
	var out bytes.Buffer
	require.NoError(t, ValidateConfig(path, &out))
	assert.Contains(t, out.String(), "batch_size=25")

	require.NoError(t, os.WriteFile(path, []byte("dead_letter:\n  backend: tape\n"), 0o600))
	assert.ErrorIs(t, ValidateConfig(path, &out), config.ErrInvalid)
}

func TestBuildRejectsUnreachableRedis(t *testing.T) {
	s := config.Defaults()
	s.DeadLetter.Backend = config.BackendRedis
	s.DeadLetter.RedisURL = "redis://127.0.0.1:1/0"
	_, err := Build(context.Background(), s, testr.New(t))
	require.Error(t, err)
}

func TestCloseReleasesResourcesAfterExpiredDrain(t *testing.T) {
	rt, err := Build(context.Background(), config.Defaults(), testr.New(t))
	require.NoError(t, err)

	var releaseErr error
	released := false
	rt.closers = append(rt.closers, func(ctx context.Context) error {
		released = true
		releaseErr = ctx.Err()
		return nil
	})

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	_ = rt.Close(expired)

	require.True(t, released)
	assert.NoError(t, releaseErr, "resources must be released on a live context")
}
