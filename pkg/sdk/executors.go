package sdk

import (
	"net/http"

	"github.com/your-org/decision-pipeline/internal/executor"
)

// HTTPExecutor posts decisions as JSON to url. headers are sent with every request.
func HTTPExecutor(url string, client *http.Client, headers map[string]string) (ExecuteFunc, error) {
	h, err := executor.NewHTTP(url, client)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		h.SetHeader(k, v)
	}
	return h.Execute, nil
}

// SimulatedExecutor sleeps for the complexity tier's duration times scale and
// returns a synthetic result. failureRate in [0, 1] injects transient errors.
func SimulatedExecutor(scale, failureRate float64) ExecuteFunc {
	return executor.NewSimulated(executor.SimulatedOptions{Scale: scale, FailureRate: failureRate}).Execute
}
