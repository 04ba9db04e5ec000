package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"TenderWatch/internal/app"
	"TenderWatch/internal/config"
	"TenderWatch/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single poll and exit instead of serving")
	force := flag.Bool("force", false, "skip the randomized pacing delay")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if *once {
		err := application.RunOnce(ctx, *force)
		if closeErr := application.Close(); closeErr != nil {
			logger.Warn("database close failed", "error", closeErr)
		}
		if err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
