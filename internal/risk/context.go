/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package risk

import (
    "context"
    "fmt"

    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/domain"
)

// SprintReader is the read-only slice of the project store the engine needs.
type SprintReader interface {
    GetSprint(ctx context.Context, id string) (*domain.Sprint, error)
    ListSprintIssues(ctx context.Context, sprintID string) ([]domain.Issue, error)
    ListSprintHistory(ctx context.Context, projectID string, limit int) ([]domain.SprintHistoryEntry, error)
}

// SimilaritySearcher finds semantically similar past issues. Results are
// advisory; failures degrade to an empty list.
type SimilaritySearcher interface {
    FindSimilar(ctx context.Context, query string, limit int, projectID string, threshold float64) ([]domain.SimilarIssue, error)
}

// Context is the snapshot every rule and the AI analyzer evaluate against.
type Context struct {
    Sprint            domain.Sprint
    Issues            []domain.Issue
    History           []domain.SprintHistoryEntry
    SimilarPastIssues []domain.SimilarIssue
    // TeamCapacity is the externally configured fallback when no sprint
    // history exists; zero means unknown.
    TeamCapacity float64
}

// CommittedPoints sums the point estimates of issues assigned to the sprint.
func (c *Context) CommittedPoints() float64 {
    total := 0.0
    for _, i := range c.Issues {
        if i.SprintID != nil && *i.SprintID == c.Sprint.ID && i.Point != nil {
            total += *i.Point
        }
    }
    return total
}

// AvgVelocity averages the velocity of the most recent window sprints,
// falling back to the configured team capacity when there is no history.
func (c *Context) AvgVelocity(window int) float64 {
    if len(c.History) == 0 { return c.TeamCapacity }
    if window <= 0 { window = 3 }
    n := window
    if len(c.History) < n { n = len(c.History) }
    total := 0.0
    for _, h := range c.History[:n] { total += h.Velocity }
    return total / float64(n)
}

// KnownIssueIDs returns the set of issue ids present in the snapshot, used to
// cross-check ids the reasoning service emits.
func (c *Context) KnownIssueIDs() map[string]struct{} {
    ids := make(map[string]struct{}, len(c.Issues))
    for _, i := range c.Issues { ids[i.ID] = struct{}{} }
    return ids
}

type Builder struct {
    store        SprintReader
    sim          SimilaritySearcher
    log          zerolog.Logger
    historyDepth int
    simLimit     int
    simThreshold float64
    teamCapacity float64
}

func NewBuilder(store SprintReader, sim SimilaritySearcher, log zerolog.Logger, historyDepth, simLimit int, simThreshold, teamCapacity float64) *Builder {
    if historyDepth <= 0 { historyDepth = 6 }
    if simLimit <= 0 { simLimit = 10 }
    if simThreshold <= 0 { simThreshold = 0.75 }
    return &Builder{store: store, sim: sim, log: log, historyDepth: historyDepth, simLimit: simLimit, simThreshold: simThreshold, teamCapacity: teamCapacity}
}

// Build assembles the evaluation context for a sprint. It fails only when the
// sprint itself cannot be loaded; the similarity lookup is best-effort.
func (b *Builder) Build(ctx context.Context, sprintID string) (*Context, error) {
    sprint, err := b.store.GetSprint(ctx, sprintID)
    if err != nil { return nil, fmt.Errorf("load sprint %s: %w", sprintID, err) }

    issues, err := b.store.ListSprintIssues(ctx, sprintID)
    if err != nil { return nil, fmt.Errorf("load issues for sprint %s: %w", sprintID, err) }

    history, err := b.store.ListSprintHistory(ctx, sprint.ProjectID, b.historyDepth)
    if err != nil { return nil, fmt.Errorf("load history for project %s: %w", sprint.ProjectID, err) }

    sc := &Context{Sprint: *sprint, Issues: issues, History: history, TeamCapacity: b.teamCapacity}

    if b.sim != nil {
        query := fmt.Sprintf("Sprint planning with %.0f story points, %d tasks in sprint. Project: %s", sc.CommittedPoints(), len(issues), sprint.Name)
        similar, err := b.sim.FindSimilar(ctx, query, b.simLimit, sprint.ProjectID, b.simThreshold)
        if err != nil {
            b.log.Warn().Err(err).Str("sprint", sprintID).Msg("similarity search failed; continuing without historical context")
        } else {
            sc.SimilarPastIssues = similar
        }
    }
    return sc, nil
}
