package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/decision-pipeline/internal/retry"
	"github.com/your-org/decision-pipeline/pkg/decision"
)

var ErrStatus = errors.New("decision endpoint returned error status")

// HTTP posts each decision as JSON to an endpoint and decodes the Result.
type HTTP struct {
	url    string
	client *http.Client
	header http.Header
}

func NewHTTP(url string, client *http.Client) (*HTTP, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("executor url is empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTP{url: url, client: client, header: http.Header{}}, nil
}

// SetHeader adds a header sent with every request.
func (h *HTTP) SetHeader(key, value string) {
	h.header.Set(key, value)
}

// Execute returns retryable errors for transport failures and 5xx/429, and
// non-retryable errors for other 4xx responses.
func (h *HTTP) Execute(ctx context.Context, d decision.Decision) (decision.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, nil)
	if err != nil {
		return decision.Result{}, retry.NonRetryable(fmt.Errorf("build request: %w", err))
	}
	for k, vs := range h.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	body, status, err := doJSON(h.client, req, d)
	if err != nil {
		return decision.Result{}, err
	}
	if status >= 300 {
		err := fmt.Errorf("%w %d: %s", ErrStatus, status, truncate(string(body), 256))
		if status >= 500 || status == http.StatusTooManyRequests {
			return decision.Result{}, retry.Retryable(err)
		}
		return decision.Result{}, retry.NonRetryable(err)
	}

	var res decision.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return decision.Result{}, retry.NonRetryable(fmt.Errorf("decode response: %w", err))
	}
	return res, nil
}

// doJSON sends payload as the JSON request body and returns the response body and status.
func doJSON(client *http.Client, req *http.Request, payload any) ([]byte, int, error) {
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, retry.NonRetryable(fmt.Errorf("marshal request: %w", err))
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.ContentLength = int64(len(b))
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, retry.Retryable(fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, retry.Retryable(fmt.Errorf("read response: %w", err))
	}
	return body, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
