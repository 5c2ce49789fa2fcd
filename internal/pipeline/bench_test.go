package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/your-org/decision-pipeline/pkg/decision"
)

func BenchmarkSubmitAndResolve_Batch100(b *testing.B) {
	benchmarkPipeline(b, 100, 8)
}

func BenchmarkSubmitAndResolve_Batch1000(b *testing.B) {
	benchmarkPipeline(b, 1000, 32)
}

func benchmarkPipeline(b *testing.B, batch int, workers int) {
	cfg := decision.Config{
		MaxConcurrentDecisions: batch * 4,
		BatchSize:              batch,
		BatchInterval:          time.Millisecond,
		WorkerPoolSize:         workers,
		ProcessingTimeout:      time.Second,
	}
	p, err := New(cfg, WithExecutor(func(_ context.Context, d decision.Decision) (decision.Result, error) {
		return decision.Result{Outcome: "approve"}, nil
	}))
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	futures := make([]*Future, 0, batch)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		futures = futures[:0]
		for j := 0; j < batch; j++ {
			f, err := p.Submit(decision.Decision{
				ID:         fmt.Sprintf("b%d-%d", i, j),
				Type:       "bench",
				Priority:   decision.PriorityNormal,
				CustomerID: "bench",
			})
			if err != nil {
				b.Fatalf("submit: %v", err)
			}
			futures = append(futures, f)
		}
		for _, f := range futures {
			if _, err := f.Wait(context.Background()); err != nil {
				b.Fatalf("wait: %v", err)
			}
		}
	}
}
