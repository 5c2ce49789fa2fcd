package app

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/internal/pipeline"
	"github.com/your-org/decision-pipeline/internal/version"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

const maxDecisionBody = 1 << 20

type api struct {
	p      *pipeline.Pipeline
	logger logr.Logger
}

// Handler serves the pipeline over HTTP. prom may be nil.
func Handler(p *pipeline.Pipeline, prom *prometheus.Registry, logger logr.Logger) http.Handler {
	a := &api{p: p, logger: logger.WithName("http")}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
	}))

	r.Get("/healthz", healthHandler)
	r.Get("/readyz", a.readyHandler)
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, version.Current())
	})
	r.Post("/decisions", a.submitHandler)
	r.Get("/decisions/{id}", a.lookupHandler)
	r.Get("/status", a.statusHandler)
	r.Get("/metrics/snapshot", a.metricsHandler)
	r.Get("/deadletters", a.deadLettersHandler)
	if prom != nil {
		r.Handle("/metrics", promhttp.HandlerFor(prom, promhttp.HandlerOpts{}))
	}
	return r
}

type submitResponse struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Result *decision.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *api) readyHandler(w http.ResponseWriter, _ *http.Request) {
	st := a.p.GetQueueStatus()
	healthy := a.p.IsHealthy()
	status := http.StatusOK
	if !st.Accepting || !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "healthy": healthy, "accepting": st.Accepting})
}

// submitHandler admits one decision. With ?wait=true it holds the request
// until the decision is terminal or the client goes away.
func (a *api) submitHandler(w http.ResponseWriter, r *http.Request) {
	var d decision.Decision
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDecisionBody)).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	f, err := a.p.Submit(d)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrBackpressure):
			w.Header().Set("Retry-After", strconv.Itoa(a.retryAfterSeconds()))
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, pipeline.ErrPipelineClosed):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, pipeline.ErrDuplicateID):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	a.logger.V(logging.TRACE).Info("decision admitted", "id", f.ID())

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, submitResponse{ID: f.ID(), Status: "queued"})
		return
	}

	res, err := f.Wait(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, submitResponse{ID: f.ID(), Status: "resolved", Result: &res})
	case r.Context().Err() != nil:
		writeJSON(w, http.StatusAccepted, submitResponse{ID: f.ID(), Status: "queued"})
	default:
		status := "rejected"
		if rec, ok := a.p.Lookup(f.ID()); ok {
			status = string(rec.Status)
		}
		writeJSON(w, http.StatusUnprocessableEntity, submitResponse{ID: f.ID(), Status: status, Error: err.Error()})
	}
}

// retryAfterSeconds estimates how long the queue needs to drain below the
// admission limit, rounded up to whole seconds.
func (a *api) retryAfterSeconds() int {
	cfg := a.p.Config()
	batches := math.Ceil(float64(a.p.GetQueueStatus().Depth) / float64(cfg.BatchSize))
	secs := int(math.Ceil(batches * cfg.BatchInterval.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (a *api) lookupHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.p.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no terminal outcome for %q", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.p.GetQueueStatus())
}

func (a *api) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.p.GetMetrics())
}

func (a *api) deadLettersHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := a.p.DeadLetters(r.Context(), limit)
	if err != nil {
		a.logger.Error(err, "list dead letters")
		writeError(w, http.StatusInternalServerError, "failed to load dead letters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// Serve runs the HTTP surface until ctx is cancelled. A nil tlsCfg serves plain HTTP.
func Serve(ctx context.Context, addr string, h http.Handler, tlsCfg *tls.Config) error {
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	s := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
