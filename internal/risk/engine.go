/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package risk

import (
    "context"
    "errors"
    "math"
    "sync"
    "time"

    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/domain"
)

// AlertStore is the persistence surface the engine needs. The alert plus its
// recommendations are created in one transaction.
type AlertStore interface {
    FindOpenAlert(ctx context.Context, sprintID string, riskType domain.RiskType) (*domain.RiskAlert, error)
    CreateAlertWithRecommendations(ctx context.Context, alert *domain.RiskAlert, recs []domain.RecommendationDraft) (*domain.RiskAlert, error)
}

// DetectionReport summarizes one detection run over a sprint.
type DetectionReport struct {
    SprintID     string             `json:"sprintId"`
    RisksFound   int                `json:"risksDetected"`
    TotalChecked int                `json:"totalChecked"`
    Alerts       []domain.RiskAlert `json:"alerts"`
    Metadata     map[string]any     `json:"metadata"`
}

// Engine runs every registered rule against a sprint snapshot and persists
// new findings as alerts, deduplicating against open ones.
type Engine struct {
    builder *Builder
    store   AlertStore
    rules   []Rule
    log     zerolog.Logger

    mu     sync.Mutex
    locks  map[string]*sync.Mutex
}

func NewEngine(builder *Builder, store AlertStore, log zerolog.Logger, rules ...Rule) *Engine {
    return &Engine{builder: builder, store: store, rules: rules, log: log, locks: map[string]*sync.Mutex{}}
}

// sprintLock returns the mutex guarding one sprint's detection runs.
// Concurrent runs for different sprints proceed in parallel.
func (e *Engine) sprintLock(sprintID string) *sync.Mutex {
    e.mu.Lock()
    defer e.mu.Unlock()
    l, ok := e.locks[sprintID]
    if !ok {
        l = &sync.Mutex{}
        e.locks[sprintID] = l
    }
    return l
}

// Detect evaluates all rules against the sprint. A failing rule is logged
// and skipped; it never aborts the run.
func (e *Engine) Detect(ctx context.Context, sprintID string) (*DetectionReport, error) {
    lock := e.sprintLock(sprintID)
    lock.Lock()
    defer lock.Unlock()

    start := time.Now()

    sc, err := e.builder.Build(ctx, sprintID)
    if err != nil { return nil, err }

    var findings []domain.RiskFinding
    for _, rule := range e.rules {
        f, err := rule.Evaluate(ctx, sc)
        if err != nil {
            e.log.Error().Err(err).Str("sprint", sprintID).Str("rule", string(rule.ID())).Msg("rule evaluation failed")
            continue
        }
        if f != nil { findings = append(findings, *f) }
    }

    alerts, err := e.persistFindings(ctx, sc.Sprint, findings)
    if err != nil { return nil, err }

    report := &DetectionReport{
        SprintID:     sprintID,
        RisksFound:   len(alerts),
        TotalChecked: len(e.rules),
        Alerts:       alerts,
        Metadata:     e.buildMetadata(sc, time.Since(start)),
    }
    e.log.Info().Str("sprint", sprintID).Int("rules", len(e.rules)).Int("created", len(alerts)).Dur("took", time.Since(start)).Msg("detection run complete")
    return report, nil
}

// persistFindings creates one alert per finding that has no open alert of the
// same type on the sprint. Shared by the rule path and the AI analysis path
// so both honour the same dedup invariant. A failed lookup or insert only
// drops that finding; the rest still get persisted.
func (e *Engine) persistFindings(ctx context.Context, sprint domain.Sprint, findings []domain.RiskFinding) ([]domain.RiskAlert, error) {
    var created []domain.RiskAlert
    for _, f := range findings {
        existing, err := e.store.FindOpenAlert(ctx, sprint.ID, f.Type)
        if err != nil {
            e.log.Error().Err(err).Str("sprint", sprint.ID).Str("type", string(f.Type)).Msg("open alert lookup failed, skipping finding")
            continue
        }
        if existing != nil {
            e.log.Debug().Str("sprint", sprint.ID).Str("type", string(f.Type)).Msg("open alert exists, skipping")
            continue
        }
        alert := &domain.RiskAlert{
            SprintID:       sprint.ID,
            ProjectID:      sprint.ProjectID,
            RiskType:       f.Type,
            Severity:       f.Severity,
            Status:         domain.AlertActive,
            Title:          f.Title,
            Description:    f.Description,
            ImpactScore:    f.ImpactScore,
            AffectedIssues: f.AffectedIssues,
            Metadata:       f.Metadata,
        }
        saved, err := e.store.CreateAlertWithRecommendations(ctx, alert, f.Recommendations)
        if errors.Is(err, domain.ErrDuplicateAlert) {
            e.log.Debug().Str("sprint", sprint.ID).Str("type", string(f.Type)).Msg("lost create race to another instance, skipping")
            continue
        }
        if err != nil {
            e.log.Error().Err(err).Str("sprint", sprint.ID).Str("type", string(f.Type)).Msg("alert create failed, skipping finding")
            continue
        }
        created = append(created, *saved)
    }
    return created, nil
}

func (e *Engine) buildMetadata(sc *Context, took time.Duration) map[string]any {
    committed := sc.CommittedPoints()
    avgVelocity := sc.AvgVelocity(3)

    var total, blocked, missing int
    dist := map[string]float64{}
    for _, i := range sc.Issues {
        if i.SprintID == nil || *i.SprintID != sc.Sprint.ID { continue }
        total++
        if i.StatusName == "BLOCKED" { blocked++ }
        if i.Point == nil {
            missing++
            continue
        }
        for _, a := range i.Assignees { dist[a] += *i.Point }
    }

    return map[string]any{
        "committedPoints":      committed,
        "avgVelocity":          math.Round(avgVelocity),
        "capacityStatus":       capacityStatus(committed, avgVelocity),
        "totalIssues":          total,
        "blockedIssues":        blocked,
        "missingEstimates":     missing,
        "workloadDistribution": dist,
        "processingTimeMs":     took.Milliseconds(),
    }
}

// capacityStatus classifies committed load against velocity with a 10% band.
func capacityStatus(committed, avgVelocity float64) string {
    if avgVelocity == 0 { return "UNKNOWN" }
    ratio := committed / avgVelocity
    switch {
    case ratio < 0.9:
        return "UNDER"
    case ratio > 1.1:
        return "OVER"
    }
    return "OPTIMAL"
}
