/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "time"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/config"
    "github.com/toantran292/datn-sub001/internal/repo"
    "github.com/toantran292/datn-sub001/internal/risk"
)

type detector interface {
    Detect(ctx context.Context, sprintID string) (*risk.DetectionReport, error)
}

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    det  detector
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, det detector, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, det: det, repo: r, c: c}
    _, _ = c.AddFunc(cfg.DetectCron, cr.sweep)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

// sweep runs detection over every active sprint. The advisory lock keeps the
// sweep single-flight across replicas; a sprint that fails is logged and the
// sweep moves on.
func (cr *Cron) sweep() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute); defer cancel()
    const lockKey int64 = 731946
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
    defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()

    sprints, err := cr.repo.ListActiveSprints(ctx)
    if err != nil { cr.log.Error().Err(err).Msg("cron: list active sprints failed"); return }
    cr.log.Info().Int("sprints", len(sprints)).Msg("cron: risk detection sweep")

    for _, s := range sprints {
        report, err := cr.det.Detect(ctx, s.ID)
        if err != nil {
            cr.log.Error().Err(err).Str("sprint", s.ID).Msg("cron: detection failed")
            continue
        }
        if report.RisksFound > 0 {
            cr.log.Warn().Str("sprint", s.ID).Int("risks", report.RisksFound).Msg("cron: risks detected")
        }
    }
}
