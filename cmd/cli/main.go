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
	"github.com/your-org/decision-pipeline/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "-v" || command == "--version" || command == "version" {
		fmt.Println(version.String())
		return
	}
	_ = godotenv.Load()

	path := ""
	if len(os.Args) > 2 {
		path = os.Args[2]
	}

	switch command {
	case "run":
		if path == "" {
			usage()
			os.Exit(1)
		}
		settings, err := config.Load(os.Getenv("PIPELINE_CONFIG"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "cli run failed: %v\n", err)
			os.Exit(1)
		}
		logger, syncLog, err := logging.New(settings.Log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cli run failed: %v\n", err)
			os.Exit(1)
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		_, err = app.RunFile(ctx, settings, path, os.Stdout, logger)
		cancel()
		_ = syncLog()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cli run failed: %v\n", err)
			os.Exit(1)
		}
	case "validate":
		if err := app.ValidateConfig(path, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "cli validate failed: %v\n", err)
			os.Exit(1)
		}
	case "audit-export":
		inputPath := path
		if inputPath == "" {
			inputPath = os.Getenv("AUDIT_LOG_PATH")
		}
		outputPath := "audit.csv"
		if len(os.Args) > 3 {
			outputPath = os.Args[3]
		}
		if err := app.ExportAudit(inputPath, outputPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "cli audit-export failed: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: decision-pipeline-cli <run|validate|audit-export|version> [path] [output_csv]")
}
