/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package risk

import (
    "context"
    "encoding/json"
    "fmt"
    "math"
    "sort"
    "strings"

    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/domain"
)

// OvercommitmentRule flags active sprints whose committed points exceed the
// team's recent average velocity.
//
// Thresholds: ratio > 1.3 CRITICAL (nghiêm trọng), > 1.2 CRITICAL (cao),
// > 1.1 MEDIUM (vừa phải), otherwise no finding.
type OvercommitmentRule struct {
    llm       Reasoner
    log       zerolog.Logger
    maxTokens int
}

func NewOvercommitmentRule(llm Reasoner, log zerolog.Logger, maxTokens int) *OvercommitmentRule {
    if maxTokens <= 0 { maxTokens = 1000 }
    return &OvercommitmentRule{llm: llm, log: log, maxTokens: maxTokens}
}

func (r *OvercommitmentRule) ID() domain.RiskType            { return domain.RiskOvercommitment }
func (r *OvercommitmentRule) Category() Category             { return CategoryCapacity }
func (r *OvercommitmentRule) Severity() domain.RiskSeverity  { return domain.SeverityCritical }

func (r *OvercommitmentRule) Evaluate(ctx context.Context, sc *Context) (*domain.RiskFinding, error) {
    if sc.Sprint.Status != domain.SprintActive { return nil, nil }

    committed := sc.CommittedPoints()
    if committed == 0 { return nil, nil } // nothing committed, no risk

    avgVelocity := sc.AvgVelocity(3)
    if avgVelocity == 0 { return nil, nil } // cannot judge without velocity data

    ratio := committed / avgVelocity

    var severity domain.RiskSeverity
    var tier string
    switch {
    case ratio > 1.3:
        severity, tier = domain.SeverityCritical, "nghiêm trọng"
    case ratio > 1.2:
        severity, tier = domain.SeverityCritical, "cao"
    case ratio > 1.1:
        severity, tier = domain.SeverityMedium, "vừa phải"
    default:
        return nil, nil
    }

    overPct := int(math.Round((ratio - 1) * 100))
    recommendedPoints := int(math.Round(avgVelocity * 1.1))
    excessPoints := committed - float64(recommendedPoints)

    candidates := removalCandidates(sc, 3)
    suggested := make([]string, 0, len(candidates))
    for _, c := range candidates { suggested = append(suggested, c.ID) }

    r.log.Warn().Str("sprint", sc.Sprint.ID).Float64("committed", committed).Int("over_pct", overPct).Msg("overcommitment detected")

    recs := r.generateRecommendations(ctx, sc, committed, avgVelocity, ratio, overPct, recommendedPoints, excessPoints, candidates, suggested)

    return &domain.RiskFinding{
        Type:        r.ID(),
        Severity:    severity,
        Title:       fmt.Sprintf("Sprint Overcommitment %s", severityLabel(severity)),
        Description: fmt.Sprintf("Sprint đang bị overcommit %d%%. Team cam kết %.0f điểm nhưng velocity trung bình chỉ %.0f điểm. Mức độ overcommitment: %s.", overPct, committed, avgVelocity, tier),
        ImpactScore: impactScore(ratio),
        AffectedIssues: suggested,
        Metadata: map[string]any{
            "committedPoints":          committed,
            "avgVelocity":              math.Round(avgVelocity),
            "overcommitmentRatio":      ratio,
            "overcommitmentPercentage": overPct,
            "recommendedPoints":        recommendedPoints,
            "excessPoints":             excessPoints,
        },
        Recommendations: recs,
    }, nil
}

func impactScore(ratio float64) int {
    score := int(math.Floor(ratio * 5))
    if score > 10 { score = 10 }
    return score
}

func severityLabel(s domain.RiskSeverity) string {
    switch s {
    case domain.SeverityCritical:
        return "Nghiêm Trọng"
    case domain.SeverityMedium:
        return "Trung Bình"
    case domain.SeverityLow:
        return "Thấp"
    }
    return ""
}

// removalCandidates picks up to max low-priority issues in the sprint,
// largest estimates first, as the cheapest scope to cut.
func removalCandidates(sc *Context, max int) []domain.Issue {
    var out []domain.Issue
    for _, i := range sc.Issues {
        if i.SprintID != nil && *i.SprintID == sc.Sprint.ID && i.Priority == "LOW" && i.Point != nil {
            out = append(out, i)
        }
    }
    sort.SliceStable(out, func(a, b int) bool { return *out[a].Point > *out[b].Point })
    if len(out) > max { out = out[:max] }
    return out
}

// generateRecommendations asks the reasoning service for three tailored
// recommendations and falls back to fixed, locally computed ones on any
// failure. The fallback path cannot fail.
func (r *OvercommitmentRule) generateRecommendations(ctx context.Context, sc *Context, committed, avgVelocity, ratio float64, overPct, recommendedPoints int, excessPoints float64, candidates []domain.Issue, suggested []string) []domain.RecommendationDraft {
    if r.llm != nil {
        recs, err := r.askReasoner(ctx, sc, committed, avgVelocity, ratio, overPct, recommendedPoints, excessPoints, candidates, suggested)
        if err == nil { return recs }
        r.log.Error().Err(err).Str("sprint", sc.Sprint.ID).Msg("ai recommendation generation failed; using fallback")
    }
    return fallbackRecommendations(avgVelocity, recommendedPoints, len(candidates), suggested)
}

func (r *OvercommitmentRule) askReasoner(ctx context.Context, sc *Context, committed, avgVelocity, ratio float64, overPct, recommendedPoints int, excessPoints float64, candidates []domain.Issue, suggested []string) ([]domain.RecommendationDraft, error) {
    prompt := buildRecommendationPrompt(sc, committed, avgVelocity, ratio, overPct, recommendedPoints, excessPoints, candidates)

    resp, err := r.llm.Complete(ctx,
        "You are an expert Scrum Master. Always respond in Vietnamese language (tiếng Việt) with valid JSON only, no markdown formatting.",
        prompt, 0.7, r.maxTokens)
    if err != nil { return nil, err }

    var recs []domain.RecommendationDraft
    if err := json.Unmarshal([]byte(stripCodeFences(resp.Text)), &recs); err != nil {
        return nil, fmt.Errorf("parse recommendations: %w", err)
    }
    if len(recs) != 3 {
        return nil, fmt.Errorf("expected 3 recommendations, got %d", len(recs))
    }

    known := sc.KnownIssueIDs()
    for i := range recs {
        recs[i].SuggestedIssues = filterKnownIDs(recs[i].SuggestedIssues, known, r.log)
        if recs[i].Action == "" { return nil, fmt.Errorf("recommendation %d has empty action", i+1) }
    }
    // Seed the primary recommendation with the local candidates if the model
    // returned none.
    if len(recs[0].SuggestedIssues) == 0 { recs[0].SuggestedIssues = suggested }

    r.log.Info().Str("sprint", sc.Sprint.ID).Int("count", len(recs)).Msg("ai recommendations generated")
    return recs, nil
}

func buildRecommendationPrompt(sc *Context, committed, avgVelocity, ratio float64, overPct, recommendedPoints int, excessPoints float64, candidates []domain.Issue) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "You are an experienced Scrum Master and Agile Coach. Analyze this sprint overcommitment situation and provide 3 specific, actionable recommendations.\n\n")
    fmt.Fprintf(b, "**Sprint Context:**\n")
    fmt.Fprintf(b, "- Sprint Name: %s\n", sc.Sprint.Name)
    fmt.Fprintf(b, "- Committed Points: %.0f\n", committed)
    fmt.Fprintf(b, "- Team Average Velocity: %.0f points (from last 3 sprints)\n", avgVelocity)
    fmt.Fprintf(b, "- Overcommitment Ratio: %.2f (%d%% over capacity)\n", ratio, overPct)
    fmt.Fprintf(b, "- Recommended Commitment: %d points (with 10%% buffer)\n", recommendedPoints)
    fmt.Fprintf(b, "- Excess Points: %.0f points need to be removed\n\n", excessPoints)

    var inSprint []domain.Issue
    for _, i := range sc.Issues {
        if i.SprintID != nil && *i.SprintID == sc.Sprint.ID { inSprint = append(inSprint, i) }
    }
    fmt.Fprintf(b, "**Sprint Issues (%d total):**\n", len(inSprint))
    for idx, i := range inSprint {
        if idx >= 10 {
            fmt.Fprintf(b, "... and %d more issues\n", len(inSprint)-10)
            break
        }
        fmt.Fprintf(b, "%d. [%s] %s - %s points (%d assignees)\n", idx+1, i.Priority, i.Name, pointLabel(i.Point), len(i.Assignees))
    }

    fmt.Fprintf(b, "\n**Low-Priority Issues Available to Remove:**\n")
    if len(candidates) == 0 {
        fmt.Fprintf(b, "None found\n")
    } else {
        for _, i := range candidates {
            fmt.Fprintf(b, "- ID: %s | %s (%s points)\n", i.ID, i.Name, pointLabel(i.Point))
        }
    }

    fmt.Fprintf(b, `
**Task:**
Generate exactly 3 recommendations in JSON format. Each recommendation should be:
1. Specific and actionable (not generic advice)
2. Consider the actual issues and team capacity
3. Include realistic effort estimates
4. Provide measurable expected impact

IMPORTANT RULES for "suggestedIssues" field:
- For priority 1 recommendation: Include the ACTUAL UUID strings from the low-priority issues list
- NEVER include issue names or descriptions in suggestedIssues - ONLY UUIDs
- UUIDs are in format: "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
- If no specific issues to suggest, use empty array []

Return ONLY a valid JSON array of 3 objects with keys priority (1-3), action, expectedImpact, effortEstimate, suggestedIssues (no markdown, no explanation).

IMPORTANT: All text must be in Vietnamese language (tiếng Việt).`)
    return b.String()
}

func fallbackRecommendations(avgVelocity float64, recommendedPoints, candidateCount int, suggested []string) []domain.RecommendationDraft {
    moveCount := "2-3"
    if candidateCount > 0 { moveCount = fmt.Sprintf("%d", candidateCount) }
    return []domain.RecommendationDraft{
        {
            Priority:        1,
            Action:          fmt.Sprintf("Di chuyển %s stories có priority thấp về backlog", moveCount),
            ExpectedImpact:  fmt.Sprintf("Giảm commitment xuống %d điểm (optimal range)", recommendedPoints),
            EffortEstimate:  "5-10 phút",
            SuggestedIssues: suggested,
        },
        {
            Priority:       2,
            Action:         "Extend sprint duration thêm 1-2 ngày nếu không thể giảm scope",
            ExpectedImpact: fmt.Sprintf("Tăng capacity lên ~%.0f điểm", math.Round(avgVelocity*1.15)),
            EffortEstimate: "Requires PO approval",
        },
        {
            Priority:       3,
            Action:         "Review sprint goal và đảm bảo team hiểu rõ priorities",
            ExpectedImpact: "Team có thể tự identify những tasks ít critical để defer",
            EffortEstimate: "15-30 phút (daily standup)",
        },
    }
}

func pointLabel(p *float64) string {
    if p == nil { return "N/A" }
    return fmt.Sprintf("%.0f", *p)
}

// filterKnownIDs drops any issue reference that is not an exact id from the
// snapshot. The reasoning service is explicitly warned against truncated or
// ordinal ids, but the output is never trusted.
func filterKnownIDs(ids []string, known map[string]struct{}, log zerolog.Logger) []string {
    if len(ids) == 0 { return ids }
    out := make([]string, 0, len(ids))
    for _, id := range ids {
        if _, ok := known[id]; ok {
            out = append(out, id)
            continue
        }
        log.Warn().Str("id", id).Msg("dropped unknown issue reference from model output")
    }
    return out
}

// stripCodeFences removes a surrounding markdown code block if the model
// wrapped its JSON despite instructions.
func stripCodeFences(s string) string {
    s = strings.TrimSpace(s)
    if strings.HasPrefix(s, "```json") {
        s = strings.TrimPrefix(s, "```json")
    } else if strings.HasPrefix(s, "```") {
        s = strings.TrimPrefix(s, "```")
    }
    s = strings.TrimSuffix(strings.TrimSpace(s), "```")
    return strings.TrimSpace(s)
}
