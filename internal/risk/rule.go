/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package risk

import (
    "context"

    "github.com/toantran292/datn-sub001/internal/domain"
)

type Category string

const (
    CategoryCapacity   Category = "CAPACITY"
    CategoryFlow       Category = "FLOW"
    CategoryEstimation Category = "ESTIMATION"
    CategoryTeam       Category = "TEAM"
)

// Rule is a single deterministic risk check. Evaluate returns nil when the
// sprint is not at risk for this rule's condition; an error aborts only this
// rule, never the whole detection pass.
type Rule interface {
    ID() domain.RiskType
    Category() Category
    Severity() domain.RiskSeverity
    Evaluate(ctx context.Context, sc *Context) (*domain.RiskFinding, error)
}

// Completion is the reasoning service's reply to a single prompt.
type Completion struct {
    Text       string
    TokensUsed int
    Model      string
}

// Reasoner is the external text-completion capability. All failure modes
// (rate limit, auth, transport) surface as an error from Complete.
type Reasoner interface {
    Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (*Completion, error)
}
