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
    "time"

    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/domain"
)

// AIRisk is one risk the reasoning service reports for a sprint.
type AIRisk struct {
    Type           domain.RiskType              `json:"type"`
    Severity       domain.RiskSeverity          `json:"severity"`
    Title          string                       `json:"title"`
    Description    string                       `json:"description"`
    ImpactScore    int                          `json:"impactScore"`
    AffectedIssues []string                     `json:"affectedIssues"`
    Suggestions    []domain.RecommendationDraft `json:"suggestions"`
}

// Insight is one qualitative observation from the assessment.
type Insight struct {
    Type    string `json:"type"` // POSITIVE, CONCERN or TREND
    Message string `json:"message"`
}

// AnalysisResult is the full AI assessment of a sprint.
type AnalysisResult struct {
    SprintID           string             `json:"sprintId"`
    OverallHealthScore int                `json:"overallHealthScore"`
    HealthGrade        string             `json:"healthGrade"`
    HealthStatus       string             `json:"healthStatus"`
    Summary            string             `json:"summary"`
    Risks              []AIRisk           `json:"risks"`
    Insights           []Insight          `json:"insights"`
    Alerts             []domain.RiskAlert `json:"alerts"`
    Metadata           map[string]any     `json:"metadata"`
}

// aiResponse mirrors the JSON contract with the model. Pointer fields let
// validation distinguish a missing key from a zero value.
type aiResponse struct {
    OverallHealthScore *int      `json:"overallHealthScore"`
    HealthGrade        *string   `json:"healthGrade"`
    HealthStatus       *string   `json:"healthStatus"`
    Summary            *string   `json:"summary"`
    Risks              *[]AIRisk `json:"risks"`
    Insights           []Insight `json:"insights"`
}

// Analyzer asks the reasoning service for a holistic sprint assessment and
// persists the reported risks through the engine's dedup path.
type Analyzer struct {
    builder   *Builder
    engine    *Engine
    llm       Reasoner
    log       zerolog.Logger
    maxTokens int
}

func NewAnalyzer(builder *Builder, engine *Engine, llm Reasoner, log zerolog.Logger, maxTokens int) *Analyzer {
    if maxTokens <= 0 { maxTokens = 3000 }
    return &Analyzer{builder: builder, engine: engine, llm: llm, log: log, maxTokens: maxTokens}
}

func (a *Analyzer) Analyze(ctx context.Context, sprintID string) (*AnalysisResult, error) {
    start := time.Now()

    sc, err := a.builder.Build(ctx, sprintID)
    if err != nil { return nil, err }

    prompt := a.buildPrompt(sc)
    resp, err := a.llm.Complete(ctx,
        "You are an expert Agile Coach and Scrum Master analyzing sprint health. Always respond in Vietnamese language (tiếng Việt) with valid JSON only.",
        prompt, 0.3, a.maxTokens)
    if err != nil { return nil, fmt.Errorf("sprint analysis: %w", err) }

    parsed, err := a.parseResponse(resp.Text)
    if err != nil { return nil, err }

    known := sc.KnownIssueIDs()
    risks := *parsed.Risks
    for i := range risks {
        risks[i].AffectedIssues = filterKnownIDs(risks[i].AffectedIssues, known, a.log)
        if !risks[i].Severity.Valid() { risks[i].Severity = domain.SeverityMedium }
        risks[i].ImpactScore = clampScore(risks[i].ImpactScore)
        for j := range risks[i].Suggestions {
            risks[i].Suggestions[j].SuggestedIssues = filterKnownIDs(risks[i].Suggestions[j].SuggestedIssues, known, a.log)
        }
    }

    findings := make([]domain.RiskFinding, 0, len(risks))
    for _, r := range risks {
        findings = append(findings, domain.RiskFinding{
            Type:            r.Type,
            Severity:        r.Severity,
            Title:           r.Title,
            Description:     r.Description,
            ImpactScore:     r.ImpactScore,
            AffectedIssues:  r.AffectedIssues,
            Recommendations: r.Suggestions,
        })
    }
    alerts, err := a.engine.persistFindings(ctx, sc.Sprint, findings)
    if err != nil { return nil, err }

    health := *parsed.OverallHealthScore
    if health < 0 { health = 0 }
    if health > 100 { health = 100 }

    a.log.Info().Str("sprint", sprintID).Int("health", health).Int("risks", len(risks)).Int("tokens", resp.TokensUsed).Msg("ai sprint analysis complete")

    return &AnalysisResult{
        SprintID:           sprintID,
        OverallHealthScore: health,
        HealthGrade:        *parsed.HealthGrade,
        HealthStatus:       *parsed.HealthStatus,
        Summary:            *parsed.Summary,
        Risks:              risks,
        Insights:           parsed.Insights,
        Alerts:             alerts,
        Metadata: map[string]any{
            "model":            resp.Model,
            "tokensUsed":       resp.TokensUsed,
            "similarIssues":    len(sc.SimilarPastIssues),
            "processingTimeMs": time.Since(start).Milliseconds(),
        },
    }, nil
}

// parseResponse strips an optional code fence and enforces the response
// contract. Anything malformed maps to ErrInvalidAIResponse so callers can
// tell a bad model answer from an infrastructure failure.
func (a *Analyzer) parseResponse(raw string) (*aiResponse, error) {
    var parsed aiResponse
    if err := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); err != nil {
        return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAIResponse, err)
    }
    if parsed.OverallHealthScore == nil {
        return nil, fmt.Errorf("%w: missing overallHealthScore", domain.ErrInvalidAIResponse)
    }
    if parsed.HealthGrade == nil {
        return nil, fmt.Errorf("%w: missing healthGrade", domain.ErrInvalidAIResponse)
    }
    if parsed.HealthStatus == nil {
        return nil, fmt.Errorf("%w: missing healthStatus", domain.ErrInvalidAIResponse)
    }
    if parsed.Summary == nil {
        return nil, fmt.Errorf("%w: missing summary", domain.ErrInvalidAIResponse)
    }
    if parsed.Risks == nil {
        return nil, fmt.Errorf("%w: missing risks array", domain.ErrInvalidAIResponse)
    }
    return &parsed, nil
}

// statusHas matches loosely on purpose: boards name their columns freely
// ("Done", "DONE", "Completed"), so exact comparison undercounts.
func statusHas(statusName, needle string) bool {
    return strings.Contains(strings.ToLower(statusName), needle)
}

func pct(n int, total int) float64 {
    if total == 0 { return 0 }
    return float64(n) / float64(total) * 100
}

func (a *Analyzer) buildPrompt(sc *Context) string {
    committed := sc.CommittedPoints()
    avgVelocity := sc.AvgVelocity(3)

    var inSprint []domain.Issue
    var completed, inProgress, blocked, missing int
    workload := map[string]float64{}
    for _, i := range sc.Issues {
        if i.SprintID == nil || *i.SprintID != sc.Sprint.ID { continue }
        inSprint = append(inSprint, i)
        switch {
        case statusHas(i.StatusName, "done") || statusHas(i.StatusName, "completed"):
            completed++
        case statusHas(i.StatusName, "block"):
            blocked++
        case statusHas(i.StatusName, "progress"):
            inProgress++
        }
        if i.Point == nil || *i.Point == 0 {
            missing++
            continue
        }
        for _, assignee := range i.Assignees {
            workload[assignee] += *i.Point / float64(len(i.Assignees))
        }
    }

    elapsedPct := 0.0
    if window := sc.Sprint.EndDate.Sub(sc.Sprint.StartDate); window > 0 {
        elapsedPct = math.Min(100, math.Max(0, float64(time.Since(sc.Sprint.StartDate))/float64(window)*100))
    }

    b := &strings.Builder{}
    fmt.Fprintf(b, "Analyze the health of this sprint and identify risks.\n\n")
    fmt.Fprintf(b, "**Sprint: %s** (status: %s)\n", sc.Sprint.Name, sc.Sprint.Status)
    fmt.Fprintf(b, "- Committed: %.0f story points across %d tasks\n", committed, len(inSprint))
    fmt.Fprintf(b, "- Team average velocity: %.0f points\n", avgVelocity)
    fmt.Fprintf(b, "- Capacity status: %s\n", capacityStatus(committed, avgVelocity))
    fmt.Fprintf(b, "- Completed: %d (%.0f%%), in progress: %d (%.0f%%)\n",
        completed, pct(completed, len(inSprint)), inProgress, pct(inProgress, len(inSprint)))
    fmt.Fprintf(b, "- Blocked issues: %d (%.0f%%), missing estimates: %d (%.0f%%)\n",
        blocked, pct(blocked, len(inSprint)), missing, pct(missing, len(inSprint)))
    fmt.Fprintf(b, "- Sprint time elapsed: %.0f%% of the window (%s to %s)\n\n",
        elapsedPct, sc.Sprint.StartDate.Format("2006-01-02"), sc.Sprint.EndDate.Format("2006-01-02"))

    if len(workload) > 0 {
        assignees := make([]string, 0, len(workload))
        for assignee := range workload { assignees = append(assignees, assignee) }
        sort.Slice(assignees, func(i, j int) bool {
            if workload[assignees[i]] != workload[assignees[j]] { return workload[assignees[i]] > workload[assignees[j]] }
            return assignees[i] < assignees[j]
        })
        fmt.Fprintf(b, "**Workload per assignee:**\n")
        for _, assignee := range assignees {
            share := 0.0
            if committed > 0 { share = workload[assignee] / committed * 100 }
            fmt.Fprintf(b, "- %s: %.1f points (%.0f%% of committed)\n", assignee, workload[assignee], share)
        }
        fmt.Fprintf(b, "\n")
    }

    fmt.Fprintf(b, "**Issues:**\n")
    now := time.Now()
    for idx, i := range inSprint {
        if idx >= 20 {
            fmt.Fprintf(b, "... and %d more\n", len(inSprint)-20)
            break
        }
        ageDays := int(now.Sub(i.CreatedAt).Hours() / 24)
        staleDays := int(now.Sub(i.UpdatedAt).Hours() / 24)
        fmt.Fprintf(b, "- ID: %s | [%s/%s] %s (%s points, %d assignees, age %dd, last update %dd ago)\n",
            i.ID, i.Priority, i.StatusName, i.Name, pointLabel(i.Point), len(i.Assignees), ageDays, staleDays)
    }

    if len(sc.SimilarPastIssues) > 0 {
        fmt.Fprintf(b, "\n**Similar past issues (for context):**\n")
        for _, s := range sc.SimilarPastIssues {
            fmt.Fprintf(b, "- %s (similarity %.2f)\n", s.Name, s.Similarity)
        }
    }

    fmt.Fprintf(b, `
**Task:**
Assess the sprint across these risk categories:
1. OVERCOMMITMENT - committed points vs team velocity
2. BLOCKED_ISSUES - issues stuck in blocked status
3. ZERO_PROGRESS - issues with no movement
4. MISSING_ESTIMATES - issues without story points
5. WORKLOAD_IMBALANCE - uneven distribution across assignees

CRITICAL RULES for issue references:
- In "affectedIssues" and "suggestedIssues", use ONLY the exact UUID strings from the issues list above
- NEVER use issue names, ordinals, or truncated ids
- If unsure, use an empty array []

Return ONLY valid JSON (no markdown) with this shape:
{
  "overallHealthScore": <0-100>,
  "healthGrade": "A" | "B" | "C" | "D" | "F",
  "healthStatus": "HEALTHY" | "AT_RISK" | "CRITICAL",
  "summary": "<2-3 câu tóm tắt tình trạng sprint>",
  "risks": [
    {
      "type": "<one of the 5 categories>",
      "severity": "LOW" | "MEDIUM" | "CRITICAL",
      "title": "...",
      "description": "...",
      "impactScore": <1-10>,
      "affectedIssues": ["<uuid>", ...],
      "suggestions": [
        {"priority": 1, "action": "...", "expectedImpact": "...", "effortEstimate": "...", "suggestedIssues": []}
      ]
    }
  ],
  "insights": [
    {"type": "POSITIVE" | "CONCERN" | "TREND", "message": "..."}
  ]
}

IMPORTANT: All text must be in Vietnamese language (tiếng Việt).`)
    return b.String()
}
