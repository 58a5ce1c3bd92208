package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/app"
	"github.com/noah-isme/course-feedback-api/pkg/config"
	"github.com/noah-isme/course-feedback-api/pkg/logger"
)

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	application, err := app.New(cfg, logr)
	if err != nil {
		logr.Error("failed to start", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli := commandLine{
		transitions: application.Transitions,
		reports:     application.Reports,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	err = cli.run(ctx, opts)
	stop()
	application.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", app.DescribeError(err))
		_ = logr.Sync()
		os.Exit(1)
	}
}
