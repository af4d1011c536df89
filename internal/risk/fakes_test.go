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

func strptr(s string) *string   { return &s }
func fptr(f float64) *float64   { return &f }

func activeSprint() domain.Sprint {
    return domain.Sprint{
        ID:        "sprint-1",
        ProjectID: "proj-1",
        Name:      "Sprint 42",
        Status:    domain.SprintActive,
        StartDate: time.Now().AddDate(0, 0, -3),
        EndDate:   time.Now().AddDate(0, 0, 11),
    }
}

// issueIn builds an issue assigned to the given sprint.
func issueIn(id, sprintID, priority, status string, point *float64) domain.Issue {
    return domain.Issue{
        ID: id, ProjectID: "proj-1", SprintID: strptr(sprintID),
        Name: "Issue " + id, Type: "TASK", Priority: priority,
        Point: point, StatusName: status, Assignees: []string{"user-1"},
        CreatedAt: time.Now().AddDate(0, 0, -4), UpdatedAt: time.Now().AddDate(0, 0, -1),
    }
}

func historyWithVelocity(vs ...float64) []domain.SprintHistoryEntry {
    out := make([]domain.SprintHistoryEntry, 0, len(vs))
    for i, v := range vs {
        out = append(out, domain.SprintHistoryEntry{
            ID: fmt.Sprintf("h-%d", i), SprintID: fmt.Sprintf("old-%d", i), Velocity: v,
        })
    }
    return out
}

type fakeReader struct {
    sprint  *domain.Sprint
    issues  []domain.Issue
    history []domain.SprintHistoryEntry
    err     error
}

func (f *fakeReader) GetSprint(_ context.Context, id string) (*domain.Sprint, error) {
    if f.err != nil { return nil, f.err }
    if f.sprint == nil || f.sprint.ID != id { return nil, domain.ErrNotFound }
    s := *f.sprint
    return &s, nil
}

func (f *fakeReader) ListSprintIssues(context.Context, string) ([]domain.Issue, error) {
    return f.issues, nil
}

func (f *fakeReader) ListSprintHistory(context.Context, string, int) ([]domain.SprintHistoryEntry, error) {
    return f.history, nil
}

type fakeSearcher struct {
    results   []domain.SimilarIssue
    err       error
    lastQuery string
}

func (f *fakeSearcher) FindSimilar(_ context.Context, query string, _ int, _ string, _ float64) ([]domain.SimilarIssue, error) {
    f.lastQuery = query
    if f.err != nil { return nil, f.err }
    return f.results, nil
}

type fakeAlertStore struct {
    alerts        []*domain.RiskAlert
    nextID        int
    findErr       error
    createErr     error
    createErrOnce error
}

func (f *fakeAlertStore) FindOpenAlert(_ context.Context, sprintID string, riskType domain.RiskType) (*domain.RiskAlert, error) {
    if f.findErr != nil { return nil, f.findErr }
    for _, a := range f.alerts {
        if a.SprintID == sprintID && a.RiskType == riskType && !a.Status.Terminal() { return a, nil }
    }
    return nil, nil
}

func (f *fakeAlertStore) CreateAlertWithRecommendations(_ context.Context, alert *domain.RiskAlert, recs []domain.RecommendationDraft) (*domain.RiskAlert, error) {
    if f.createErr != nil { return nil, f.createErr }
    if f.createErrOnce != nil {
        err := f.createErrOnce
        f.createErrOnce = nil
        return nil, err
    }
    f.nextID++
    alert.ID = fmt.Sprintf("alert-%d", f.nextID)
    alert.DetectedAt = time.Now()
    for i, d := range recs {
        alert.Recommendations = append(alert.Recommendations, domain.Recommendation{
            ID: fmt.Sprintf("rec-%d-%d", f.nextID, i+1), AlertID: alert.ID,
            Priority: d.Priority, Action: d.Action, ExpectedImpact: d.ExpectedImpact,
            EffortEstimate: d.EffortEstimate, SuggestedIssues: d.SuggestedIssues,
            Status: domain.RecommendationPending,
        })
    }
    f.alerts = append(f.alerts, alert)
    return alert, nil
}

type fakeReasoner struct {
    text     string
    err      error
    calls    int
    lastSys  string
    lastUser string
}

func (f *fakeReasoner) Complete(_ context.Context, systemPrompt, userPrompt string, _ float64, _ int) (*Completion, error) {
    f.calls++
    f.lastSys = systemPrompt
    f.lastUser = userPrompt
    if f.err != nil { return nil, f.err }
    return &Completion{Text: f.text, TokensUsed: 100, Model: "test-model"}, nil
}

type failingRule struct{ typ domain.RiskType }

func (r failingRule) ID() domain.RiskType           { return r.typ }
func (r failingRule) Category() Category            { return CategoryFlow }
func (r failingRule) Severity() domain.RiskSeverity { return domain.SeverityMedium }
func (r failingRule) Evaluate(context.Context, *Context) (*domain.RiskFinding, error) {
    return nil, fmt.Errorf("rule exploded")
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
