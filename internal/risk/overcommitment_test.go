/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package risk

import (
    "context"
    "testing"

    "github.com/toantran292/datn-sub001/internal/domain"
)

// sprintWithLoad builds a context with one issue carrying the whole
// commitment and a velocity history averaging 100.
func sprintWithLoad(committed float64) *Context {
    s := activeSprint()
    return &Context{
        Sprint:  s,
        Issues:  []domain.Issue{issueIn("big", s.ID, "HIGH", "TODO", fptr(committed))},
        History: historyWithVelocity(100, 100, 100),
    }
}

func TestOvercommitment_NoFindingAtOrBelowTenPercent(t *testing.T) {
    rule := NewOvercommitmentRule(nil, testLogger(), 0)
    f, err := rule.Evaluate(context.Background(), sprintWithLoad(109))
    if err != nil { t.Fatalf("evaluate: %v", err) }
    if f != nil { t.Fatalf("ratio 1.09 should not fire, got %#v", f) }
}

func TestOvercommitment_MediumJustAboveTenPercent(t *testing.T) {
    rule := NewOvercommitmentRule(nil, testLogger(), 0)
    f, err := rule.Evaluate(context.Background(), sprintWithLoad(111))
    if err != nil { t.Fatalf("evaluate: %v", err) }
    if f == nil { t.Fatal("ratio 1.11 should fire") }
    if f.Severity != domain.SeverityMedium {
        t.Fatalf("expected MEDIUM, got %s", f.Severity)
    }
}

func TestOvercommitment_CriticalAboveTwentyPercent(t *testing.T) {
    rule := NewOvercommitmentRule(nil, testLogger(), 0)
    f, err := rule.Evaluate(context.Background(), sprintWithLoad(121))
    if err != nil { t.Fatalf("evaluate: %v", err) }
    if f == nil || f.Severity != domain.SeverityCritical {
        t.Fatalf("ratio 1.21 should be CRITICAL, got %#v", f)
    }
}

func TestOvercommitment_CriticalAboveThirtyPercent(t *testing.T) {
    rule := NewOvercommitmentRule(nil, testLogger(), 0)
    f, err := rule.Evaluate(context.Background(), sprintWithLoad(131))
    if err != nil { t.Fatalf("evaluate: %v", err) }
    if f == nil || f.Severity != domain.SeverityCritical {
        t.Fatalf("ratio 1.31 should be CRITICAL, got %#v", f)
    }
    if f.ImpactScore != 6 { // floor(1.31 * 5)
        t.Fatalf("expected impact score 6, got %d", f.ImpactScore)
    }
}

func TestOvercommitment_ImpactScoreCapsAtTen(t *testing.T) {
    rule := NewOvercommitmentRule(nil, testLogger(), 0)
    f, err := rule.Evaluate(context.Background(), sprintWithLoad(250))
    if err != nil { t.Fatalf("evaluate: %v", err) }
    if f == nil || f.ImpactScore != 10 {
        t.Fatalf("expected capped impact score 10, got %#v", f)
    }
}

func TestOvercommitment_SkipsInactiveSprintAndEmptyCommitment(t *testing.T) {
    rule := NewOvercommitmentRule(nil, testLogger(), 0)

    sc := sprintWithLoad(150)
    sc.Sprint.Status = domain.SprintClosed
    if f, _ := rule.Evaluate(context.Background(), sc); f != nil {
        t.Fatalf("closed sprint should not fire, got %#v", f)
    }

    empty := &Context{Sprint: activeSprint(), History: historyWithVelocity(100)}
    if f, _ := rule.Evaluate(context.Background(), empty); f != nil {
        t.Fatalf("zero commitment should not fire, got %#v", f)
    }

    noVelocity := &Context{
        Sprint: activeSprint(),
        Issues: []domain.Issue{issueIn("a", "sprint-1", "HIGH", "TODO", fptr(50))},
    }
    if f, _ := rule.Evaluate(context.Background(), noVelocity); f != nil {
        t.Fatalf("unknown velocity should not fire, got %#v", f)
    }
}

func TestOvercommitment_FallbackProducesThreeRecommendations(t *testing.T) {
    s := activeSprint()
    sc := &Context{
        Sprint: s,
        Issues: []domain.Issue{
            issueIn("aaaaaaaa-0000-0000-0000-000000000001", s.ID, "HIGH", "TODO", fptr(100)),
            issueIn("aaaaaaaa-0000-0000-0000-000000000002", s.ID, "LOW", "TODO", fptr(8)),
            issueIn("aaaaaaaa-0000-0000-0000-000000000003", s.ID, "LOW", "TODO", fptr(13)),
            issueIn("aaaaaaaa-0000-0000-0000-000000000004", s.ID, "LOW", "TODO", fptr(5)),
            issueIn("aaaaaaaa-0000-0000-0000-000000000005", s.ID, "LOW", "TODO", fptr(2)),
        },
        History: historyWithVelocity(100, 100, 100),
    }
    rule := NewOvercommitmentRule(&fakeReasoner{err: context.DeadlineExceeded}, testLogger(), 0)

    f, err := rule.Evaluate(context.Background(), sc)
    if err != nil { t.Fatalf("evaluate: %v", err) }
    if f == nil { t.Fatal("expected a finding") }
    if len(f.Recommendations) != 3 {
        t.Fatalf("fallback must produce 3 recommendations, got %d", len(f.Recommendations))
    }
    // Candidates are LOW priority, largest first, capped at three.
    first := f.Recommendations[0]
    want := []string{
        "aaaaaaaa-0000-0000-0000-000000000003",
        "aaaaaaaa-0000-0000-0000-000000000002",
        "aaaaaaaa-0000-0000-0000-000000000004",
    }
    if len(first.SuggestedIssues) != 3 {
        t.Fatalf("expected 3 suggested issues, got %#v", first.SuggestedIssues)
    }
    for i, id := range want {
        if first.SuggestedIssues[i] != id {
            t.Fatalf("candidate order wrong at %d: got %s want %s", i, first.SuggestedIssues[i], id)
        }
    }
    for i, r := range f.Recommendations {
        if r.Priority != i+1 { t.Fatalf("priority %d expected at index %d, got %d", i+1, i, r.Priority) }
        if r.Action == "" { t.Fatalf("empty action at index %d", i) }
    }
}

func TestOvercommitment_FallbackIsDeterministic(t *testing.T) {
    sc := sprintWithLoad(140)
    rule := NewOvercommitmentRule(nil, testLogger(), 0)
    a, _ := rule.Evaluate(context.Background(), sc)
    b, _ := rule.Evaluate(context.Background(), sc)
    if a == nil || b == nil { t.Fatal("expected findings") }
    for i := range a.Recommendations {
        if a.Recommendations[i].Action != b.Recommendations[i].Action {
            t.Fatalf("fallback not deterministic at %d", i)
        }
    }
}

func TestOvercommitment_AcceptsValidAIResponse(t *testing.T) {
    s := activeSprint()
    sc := &Context{
        Sprint: s,
        Issues: []domain.Issue{
            issueIn("bbbbbbbb-0000-0000-0000-000000000001", s.ID, "LOW", "TODO", fptr(130)),
        },
        History: historyWithVelocity(100, 100, 100),
    }
    llm := &fakeReasoner{text: "```json\n[" +
        `{"priority":1,"action":"Chuyển issue về backlog","expectedImpact":"Giảm tải","effortEstimate":"10 phút","suggestedIssues":["bbbbbbbb-0000-0000-0000-000000000001","not-a-real-id"]},` +
        `{"priority":2,"action":"Kéo dài sprint","expectedImpact":"Tăng capacity","effortEstimate":"PO approval","suggestedIssues":[]},` +
        `{"priority":3,"action":"Review goal","expectedImpact":"Rõ ràng hơn","effortEstimate":"15 phút","suggestedIssues":[]}` +
        "]\n```"}
    rule := NewOvercommitmentRule(llm, testLogger(), 0)

    f, err := rule.Evaluate(context.Background(), sc)
    if err != nil { t.Fatalf("evaluate: %v", err) }
    if f == nil { t.Fatal("expected a finding") }
    if llm.calls != 1 { t.Fatalf("expected one completion call, got %d", llm.calls) }
    if len(f.Recommendations) != 3 {
        t.Fatalf("expected 3 AI recommendations, got %d", len(f.Recommendations))
    }
    got := f.Recommendations[0].SuggestedIssues
    if len(got) != 1 || got[0] != "bbbbbbbb-0000-0000-0000-000000000001" {
        t.Fatalf("unknown id should be dropped, got %#v", got)
    }
}

func TestOvercommitment_MalformedAIResponseFallsBack(t *testing.T) {
    sc := sprintWithLoad(140)
    for _, text := range []string{
        "not json at all",
        `[{"priority":1,"action":"only one"}]`, // wrong count
        `[{"priority":1,"action":""},{"priority":2,"action":"b"},{"priority":3,"action":"c"}]`, // empty action
    } {
        rule := NewOvercommitmentRule(&fakeReasoner{text: text}, testLogger(), 0)
        f, err := rule.Evaluate(context.Background(), sc)
        if err != nil { t.Fatalf("evaluate: %v", err) }
        if f == nil || len(f.Recommendations) != 3 {
            t.Fatalf("fallback expected for %q, got %#v", text, f)
        }
    }
}

func TestStripCodeFences(t *testing.T) {
    cases := map[string]string{
        "```json\n{\"a\":1}\n```": `{"a":1}`,
        "```\n[1,2]\n```":         `[1,2]`,
        `{"plain":true}`:          `{"plain":true}`,
    }
    for in, want := range cases {
        if got := stripCodeFences(in); got != want {
            t.Fatalf("stripCodeFences(%q) = %q, want %q", in, got, want)
        }
    }
}
