// Package logging builds the logr.Logger shared by every pipeline component.
package logging

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V(...).
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// Options selects encoder and verbosity.
type Options struct {
	// Format is "json" (default) or "console".
	Format    string
	Verbosity int
}

// New returns a zap-backed logr.Logger. The returned sync func flushes buffered entries.
func New(opts Options) (logr.Logger, func() error, error) {
	level := zap.NewAtomicLevelAt(zapcore.Level(-opts.Verbosity))

	var cfg zap.Config
	if strings.EqualFold(opts.Format, "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = level

	zl, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard(), func() error { return nil }, fmt.Errorf("build zap logger: %w", err)
	}
	return zapr.NewLogger(zl), zl.Sync, nil
}

// FromEnv reads LOG_FORMAT and LOG_VERBOSITY.
func FromEnv() Options {
	opts := Options{Format: strings.TrimSpace(os.Getenv("LOG_FORMAT")), Verbosity: DEFAULT}
	if v := strings.TrimSpace(os.Getenv("LOG_VERBOSITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Verbosity = n
		}
	}
	return opts
}
