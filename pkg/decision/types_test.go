package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComplexityAliases(t *testing.T) {
	cases := map[string]Complexity{
		"simple":   ComplexityLow,
		"LOW":      ComplexityLow,
		"moderate": ComplexityMedium,
		"":         ComplexityMedium,
		"complex":  ComplexityHigh,
		" high ":   ComplexityHigh,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseComplexity(in), "input %q", in)
	}
}

func TestParseBackoff(t *testing.T) {
	b, err := ParseBackoff("")
	require.NoError(t, err)
	assert.Equal(t, BackoffLinear, b)

	b, err = ParseBackoff("Exponential")
	require.NoError(t, err)
	assert.Equal(t, BackoffExponential, b)

	_, err = ParseBackoff("fibonacci")
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	d := Decision{ID: "d1", Attributes: map[string]string{"k": "v"}, Compliance: map[string]bool{"kyc": true}}
	c := d.Clone()
	c.Attributes["k"] = "changed"
	c.Compliance["kyc"] = false

	assert.Equal(t, "v", d.Attributes["k"])
	assert.True(t, d.Compliance["kyc"])
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{BatchSize: 5, BackpressureThreshold: 1.7}.WithDefaults()

	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 10000, cfg.MaxConcurrentDecisions)
	assert.Equal(t, 0.8, cfg.BackpressureThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.BatchInterval)
	assert.Equal(t, 0.05, cfg.Health.MaxErrorRate)
	assert.InDelta(t, 8000.0, cfg.AdmissionLimit(), 1e-9)
}
