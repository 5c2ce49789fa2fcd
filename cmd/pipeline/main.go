package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/your-org/decision-pipeline/internal/app"
	"github.com/your-org/decision-pipeline/internal/config"
	"github.com/your-org/decision-pipeline/internal/logging"
	"github.com/your-org/decision-pipeline/internal/security"
	"github.com/your-org/decision-pipeline/internal/version"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup, log sync included,
// happens before exit.
func run() int {
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Println(version.String())
		return 0
	}
	_ = godotenv.Load()

	configPath := os.Getenv("PIPELINE_CONFIG")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	settings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline config: %v\n", err)
		return 1
	}

	logger, syncLog, err := logging.New(settings.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline logging: %v\n", err)
		return 1
	}
	defer func() { _ = syncLog() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Build(ctx, settings, logger)
	if err != nil {
		logger.Error(err, "build pipeline")
		return 1
	}

	tlsCfg, err := security.ServerConfig(settings.TLS)
	if err != nil {
		logger.Error(err, "http tls")
		_ = rt.Close(context.Background())
		return 1
	}

	logger.V(logging.DEFAULT).Info("decision pipeline listening", "addr", settings.HTTPAddr, "version", version.Version)
	serveErr := app.Serve(ctx, settings.HTTPAddr, app.Handler(rt.Pipeline, rt.Prom, logger), tlsCfg)
	if serveErr != nil {
		logger.Error(serveErr, "http server")
	}

	// Admission stops here; the pipeline drains within its shutdown timeout.
	// Close releases resources on its own budget afterwards.
	shutdownCtx, stop := context.WithTimeout(context.Background(), settings.Pipeline.ShutdownTimeout)
	defer stop()
	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error(err, "shutdown")
		return 1
	}
	if serveErr != nil {
		return 1
	}
	logger.V(logging.DEFAULT).Info("decision pipeline stopped")
	return 0
}
