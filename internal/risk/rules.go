/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package risk

import (
    "context"
    "fmt"
    "math"

    "github.com/toantran292/datn-sub001/internal/domain"
)

// BlockedIssuesRule fires when more than 20% of sprint issues are blocked.
type BlockedIssuesRule struct{}

func (BlockedIssuesRule) ID() domain.RiskType           { return domain.RiskBlockedIssues }
func (BlockedIssuesRule) Category() Category            { return CategoryFlow }
func (BlockedIssuesRule) Severity() domain.RiskSeverity { return domain.SeverityMedium }

func (BlockedIssuesRule) Evaluate(_ context.Context, sc *Context) (*domain.RiskFinding, error) {
    if sc.Sprint.Status != domain.SprintActive { return nil, nil }

    var total int
    var blocked []domain.Issue
    for _, i := range sc.Issues {
        if i.SprintID == nil || *i.SprintID != sc.Sprint.ID { continue }
        total++
        if i.StatusName == "BLOCKED" { blocked = append(blocked, i) }
    }
    if total == 0 || float64(len(blocked))/float64(total) <= 0.2 { return nil, nil }

    pct := int(math.Round(float64(len(blocked)) / float64(total) * 100))
    ids := make([]string, 0, len(blocked))
    for _, i := range blocked { ids = append(ids, i.ID) }

    return &domain.RiskFinding{
        Type:        domain.RiskBlockedIssues,
        Severity:    domain.SeverityMedium,
        Title:       "Nhiều Issues Bị Block",
        Description: fmt.Sprintf("%d/%d issues (%d%%) trong sprint đang bị block. Flow của team đang bị cản trở.", len(blocked), total, pct),
        ImpactScore: clampScore(pct / 10),
        AffectedIssues: ids,
        Metadata: map[string]any{
            "blockedCount":      len(blocked),
            "totalIssues":       total,
            "blockedPercentage": pct,
        },
        Recommendations: []domain.RecommendationDraft{
            {
                Priority:        1,
                Action:          "Tổ chức blocker review session để xác định và gỡ bỏ các impediments",
                ExpectedImpact:  fmt.Sprintf("Unblock %d issues, khôi phục flow của sprint", len(blocked)),
                EffortEstimate:  "30-60 phút",
                SuggestedIssues: ids,
            },
            {
                Priority:       2,
                Action:         "Escalate các blockers phụ thuộc external team lên management",
                ExpectedImpact: "Rút ngắn thời gian chờ dependencies",
                EffortEstimate: "15 phút",
            },
        },
    }, nil
}

// MissingEstimatesRule fires when more than 20% of sprint issues lack a
// story point estimate.
type MissingEstimatesRule struct{}

func (MissingEstimatesRule) ID() domain.RiskType           { return domain.RiskMissingEstimates }
func (MissingEstimatesRule) Category() Category            { return CategoryEstimation }
func (MissingEstimatesRule) Severity() domain.RiskSeverity { return domain.SeverityLow }

func (MissingEstimatesRule) Evaluate(_ context.Context, sc *Context) (*domain.RiskFinding, error) {
    if sc.Sprint.Status != domain.SprintActive { return nil, nil }

    var total int
    var missing []string
    for _, i := range sc.Issues {
        if i.SprintID == nil || *i.SprintID != sc.Sprint.ID { continue }
        total++
        if i.Point == nil { missing = append(missing, i.ID) }
    }
    if total == 0 || float64(len(missing))/float64(total) <= 0.2 { return nil, nil }

    pct := int(math.Round(float64(len(missing)) / float64(total) * 100))

    return &domain.RiskFinding{
        Type:        domain.RiskMissingEstimates,
        Severity:    domain.SeverityLow,
        Title:       "Thiếu Story Point Estimates",
        Description: fmt.Sprintf("%d/%d issues (%d%%) chưa có story point estimate. Velocity tracking sẽ không chính xác.", len(missing), total, pct),
        ImpactScore: clampScore(pct / 15),
        AffectedIssues: missing,
        Metadata: map[string]any{
            "missingCount":      len(missing),
            "totalIssues":       total,
            "missingPercentage": pct,
        },
        Recommendations: []domain.RecommendationDraft{
            {
                Priority:        1,
                Action:          "Tổ chức estimation session ngắn cho các issues chưa có điểm",
                ExpectedImpact:  "Velocity và capacity tracking chính xác hơn",
                EffortEstimate:  "15-30 phút",
                SuggestedIssues: missing,
            },
        },
    }, nil
}

// StaleIssuesRule is registered for coverage reporting but not yet active:
// detecting staleness needs per-issue status transition timestamps which the
// snapshot does not carry yet.
type StaleIssuesRule struct{}

func (StaleIssuesRule) ID() domain.RiskType           { return domain.RiskZeroProgress }
func (StaleIssuesRule) Category() Category            { return CategoryFlow }
func (StaleIssuesRule) Severity() domain.RiskSeverity { return domain.SeverityMedium }

func (StaleIssuesRule) Evaluate(context.Context, *Context) (*domain.RiskFinding, error) {
    return nil, nil
}

// WorkloadImbalanceRule is registered for coverage reporting but not yet
// active: per-assignee capacity data is not available in the snapshot.
type WorkloadImbalanceRule struct{}

func (WorkloadImbalanceRule) ID() domain.RiskType           { return domain.RiskWorkloadImbalance }
func (WorkloadImbalanceRule) Category() Category            { return CategoryTeam }
func (WorkloadImbalanceRule) Severity() domain.RiskSeverity { return domain.SeverityMedium }

func (WorkloadImbalanceRule) Evaluate(context.Context, *Context) (*domain.RiskFinding, error) {
    return nil, nil
}

func clampScore(s int) int {
    if s < 1 { return 1 }
    if s > 10 { return 10 }
    return s
}
