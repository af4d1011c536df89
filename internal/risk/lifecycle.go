/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package risk

import (
    "context"
    "fmt"
    "time"

    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/domain"
)

// LifecycleStore is the persistence surface for alert state transitions.
type LifecycleStore interface {
    GetAlert(ctx context.Context, id string) (*domain.RiskAlert, error)
    UpdateAlertStatus(ctx context.Context, alert *domain.RiskAlert) error
    GetRecommendation(ctx context.Context, id string) (*domain.Recommendation, error)
    MarkRecommendationApplied(ctx context.Context, id string, appliedAt time.Time) error
}

// IssueMutator moves issues back to the backlog when a recommendation is
// applied.
type IssueMutator interface {
    GetIssue(ctx context.Context, id string) (*domain.Issue, error)
    ClearSprintAssignment(ctx context.Context, issueID string) error
}

// ApplyResult reports what actually happened when a recommendation was
// applied. IssuesMoved counts successes only.
type ApplyResult struct {
    RecommendationID string   `json:"recommendationId"`
    IssuesMoved      int      `json:"issuesMoved"`
    MovedIssueIDs    []string `json:"movedIssueIds"`
}

// Lifecycle drives alert status transitions and recommendation application.
type Lifecycle struct {
    store  LifecycleStore
    issues IssueMutator
    log    zerolog.Logger
}

func NewLifecycle(store LifecycleStore, issues IssueMutator, log zerolog.Logger) *Lifecycle {
    return &Lifecycle{store: store, issues: issues, log: log}
}

// Acknowledge marks an open alert as seen by a user. Re-acknowledging an
// already-acknowledged alert overwrites the actor and timestamp. An optional
// note is kept in the alert metadata.
func (l *Lifecycle) Acknowledge(ctx context.Context, alertID, by, note string) (*domain.RiskAlert, error) {
    alert, err := l.store.GetAlert(ctx, alertID)
    if err != nil { return nil, err }
    if alert.Status.Terminal() {
        return nil, fmt.Errorf("%w: alert %s is %s", domain.ErrInvalidTransition, alertID, alert.Status)
    }

    now := time.Now()
    alert.Status = domain.AlertAcknowledged
    alert.AcknowledgedBy = by
    alert.AcknowledgedAt = &now
    if note != "" { mergeMetadata(alert, map[string]any{"acknowledgeNote": note}) }
    if err := l.store.UpdateAlertStatus(ctx, alert); err != nil { return nil, err }

    l.log.Info().Str("alert", alertID).Str("by", by).Msg("alert acknowledged")
    return alert, nil
}

// Resolve closes an alert as addressed, recording the resolution and any
// actions taken in the alert metadata.
func (l *Lifecycle) Resolve(ctx context.Context, alertID, resolution string, actionsTaken []string) (*domain.RiskAlert, error) {
    extra := map[string]any{"resolution": resolution}
    if len(actionsTaken) > 0 { extra["actionsTaken"] = actionsTaken }
    return l.close(ctx, alertID, domain.AlertResolved, extra)
}

// Dismiss closes an alert as not actionable, recording why.
func (l *Lifecycle) Dismiss(ctx context.Context, alertID, reason string) (*domain.RiskAlert, error) {
    return l.close(ctx, alertID, domain.AlertDismissed, map[string]any{"dismissReason": reason})
}

func (l *Lifecycle) close(ctx context.Context, alertID string, to domain.AlertStatus, extra map[string]any) (*domain.RiskAlert, error) {
    alert, err := l.store.GetAlert(ctx, alertID)
    if err != nil { return nil, err }
    if alert.Status.Terminal() {
        return nil, fmt.Errorf("%w: alert %s is already %s", domain.ErrInvalidTransition, alertID, alert.Status)
    }

    now := time.Now()
    alert.Status = to
    alert.ResolvedAt = &now
    mergeMetadata(alert, extra)
    if err := l.store.UpdateAlertStatus(ctx, alert); err != nil { return nil, err }

    l.log.Info().Str("alert", alertID).Str("status", string(to)).Msg("alert closed")
    return alert, nil
}

// mergeMetadata folds extra keys into the alert metadata, keeping whatever
// detection already recorded there.
func mergeMetadata(alert *domain.RiskAlert, extra map[string]any) {
    if alert.Metadata == nil { alert.Metadata = map[string]any{} }
    for k, v := range extra { alert.Metadata[k] = v }
}

// ApplyRecommendation moves every suggested issue back to the backlog. Issues
// are handled independently: one failure never blocks the rest, and the
// recommendation is marked APPLIED even when only part of the moves
// succeeded, so a retry never repeats completed moves against a stale plan.
func (l *Lifecycle) ApplyRecommendation(ctx context.Context, recommendationID string) (*ApplyResult, error) {
    rec, err := l.store.GetRecommendation(ctx, recommendationID)
    if err != nil { return nil, err }

    result := &ApplyResult{RecommendationID: rec.ID, MovedIssueIDs: []string{}}

    for _, issueID := range rec.SuggestedIssues {
        issue, err := l.issues.GetIssue(ctx, issueID)
        if err != nil {
            l.log.Warn().Err(err).Str("issue", issueID).Msg("skipping unknown suggested issue")
            continue
        }
        if issue.SprintID == nil {
            l.log.Debug().Str("issue", issueID).Msg("issue already in backlog")
            continue
        }
        if err := l.issues.ClearSprintAssignment(ctx, issueID); err != nil {
            l.log.Error().Err(err).Str("issue", issueID).Msg("failed to move issue to backlog")
            continue
        }
        result.IssuesMoved++
        result.MovedIssueIDs = append(result.MovedIssueIDs, issueID)
    }

    if err := l.store.MarkRecommendationApplied(ctx, rec.ID, time.Now()); err != nil { return nil, err }

    l.log.Info().Str("recommendation", rec.ID).Int("moved", result.IssuesMoved).Int("suggested", len(rec.SuggestedIssues)).Msg("recommendation applied")
    return result, nil
}
