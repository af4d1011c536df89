/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/toantran292/datn-sub001/internal/adapters/openai"
    "github.com/toantran292/datn-sub001/internal/adapters/rag"
    "github.com/toantran292/datn-sub001/internal/config"
    httpx "github.com/toantran292/datn-sub001/internal/http"
    "github.com/toantran292/datn-sub001/internal/jobs"
    "github.com/toantran292/datn-sub001/internal/logger"
    "github.com/toantran292/datn-sub001/internal/repo"
    "github.com/toantran292/datn-sub001/internal/risk"
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

    // Adapters
    llm := openai.NewClient(cfg, log)
    sim := rag.NewClient(cfg, log)

    // Risk services
    builder := risk.NewBuilder(repository, sim, log, cfg.HistoryDepth, cfg.RAGLimit, cfg.RAGThreshold, cfg.TeamCapacity)
    engine := risk.NewEngine(builder, repository, log,
        risk.NewOvercommitmentRule(llm, log, cfg.RecMaxTokens),
        risk.BlockedIssuesRule{},
        risk.StaleIssuesRule{},
        risk.MissingEstimatesRule{},
        risk.WorkloadImbalanceRule{},
    )
    analyzer := risk.NewAnalyzer(builder, engine, llm, log, cfg.AnalysisMaxTokens)
    lifecycle := risk.NewLifecycle(repository, repository, log)

    // HTTP server (Gin)
    handlers := httpx.NewHandlers(cfg, log, engine, analyzer, lifecycle, repository)
    router := httpx.NewRouter(cfg, log, handlers)

    // Cron
    cr := jobs.NewCron(cfg, log, engine, repository)
    cr.Start()
    defer cr.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
