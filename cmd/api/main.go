/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexushq/nexus/internal/adapters/aigateway"
	"github.com/nexushq/nexus/internal/adapters/mail"
	"github.com/nexushq/nexus/internal/ai"
	"github.com/nexushq/nexus/internal/bus"
	"github.com/nexushq/nexus/internal/config"
	nexushttp "github.com/nexushq/nexus/internal/http"
	"github.com/nexushq/nexus/internal/jobs"
	"github.com/nexushq/nexus/internal/logger"
	"github.com/nexushq/nexus/internal/provision"
	"github.com/nexushq/nexus/internal/repo"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()
	repository := repo.NewRepository(db, log)

	// Message bus
	b, err := bus.Connect(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect failed")
	}
	defer b.Close()

	// Adapters
	gw := aigateway.NewClient(cfg, log)
	mailer := mail.NewClient(cfg, log)

	// Services
	router := ai.NewRouter(cfg, log, gw)
	triage := ai.NewTriageEngine(cfg, log)
	orchestrator := provision.NewOrchestrator(cfg, log, repository, mailer, b)

	// HTTP server (Gin)
	engine := nexushttp.NewRouter(cfg, log, router, triage, orchestrator, mailer)

	// Cron
	cr := jobs.NewCron(cfg, log, repository)
	cr.Start()
	defer cr.Stop()

	// graceful shutdown
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	time.Sleep(500 * time.Millisecond)
}
