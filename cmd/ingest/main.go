package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/okian/nudge/internal/app"
	"github.com/okian/nudge/internal/config"
	"github.com/okian/nudge/internal/ingest"
	"github.com/okian/nudge/pkg/logger"
)

const (
	defaultTimeout = 30 * time.Second
	runTimeout     = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		file    = flag.String("file", "", "Local CSV to upload")
		master  = flag.Bool("master", false, "Treat the file as the roster")
		first   = flag.String("first", "", "First-name column")
		last    = flag.String("last", "", "Last-name column")
		full    = flag.String("full", "", "Full-name column (roster only)")
		baseURL = flag.String("url", "", "Base URL of a running server")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		ingest.ShowHelp(os.Stdout)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if err := ingest.SetupLogging(cfg.LogFormat); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return 1
	}
	_ = logger.SetLevelString(cfg.LogLevel)
	log := logger.Named("ingest")

	opts := &ingest.Config{
		File:    *file,
		Master:  *master,
		First:   *first,
		Last:    *last,
		Full:    *full,
		BaseURL: *baseURL,
		Timeout: *timeout,
	}

	var backend ingest.Backend
	if opts.BaseURL != "" {
		client := ingest.NewHTTPClient(opts.BaseURL, opts.Timeout)
		if err := client.CheckHealth(ctx); err != nil {
			log.Error(ctx, "service health check failed", logger.Error(err))
			return 1
		}
		backend = client
	} else {
		svc, err := app.NewFromConfig(ctx, cfg, log)
		if err != nil {
			log.Error(ctx, "failed to build service", logger.Error(err))
			return 1
		}
		if err := svc.Start(ctx); err != nil {
			log.Error(ctx, "failed to start service", logger.Error(err))
			return 1
		}
		defer svc.Stop()
		backend = svc
	}

	summary, err := ingest.Run(ctx, opts, backend)
	if err != nil {
		log.Error(ctx, "ingest failed", logger.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return 1
	}
	return 0
}
