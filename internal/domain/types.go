/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

type SprintStatus string

const (
    SprintFuture SprintStatus = "FUTURE"
    SprintActive SprintStatus = "ACTIVE"
    SprintClosed SprintStatus = "CLOSED"
)

type RiskSeverity string

const (
    SeverityCritical RiskSeverity = "CRITICAL"
    SeverityMedium   RiskSeverity = "MEDIUM"
    SeverityLow      RiskSeverity = "LOW"
)

func (s RiskSeverity) Valid() bool {
    switch s {
    case SeverityCritical, SeverityMedium, SeverityLow:
        return true
    }
    return false
}

type AlertStatus string

const (
    AlertActive       AlertStatus = "ACTIVE"
    AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
    AlertResolved     AlertStatus = "RESOLVED"
    AlertDismissed    AlertStatus = "DISMISSED"
)

// Terminal reports whether the status permits no further transitions.
func (s AlertStatus) Terminal() bool { return s == AlertResolved || s == AlertDismissed }

type RecommendationStatus string

const (
    RecommendationPending RecommendationStatus = "PENDING"
    RecommendationApplied RecommendationStatus = "APPLIED"
)

type RiskType string

const (
    RiskOvercommitment    RiskType = "OVERCOMMITMENT"
    RiskBlockedIssues     RiskType = "BLOCKED_ISSUES"
    RiskZeroProgress      RiskType = "ZERO_PROGRESS"
    RiskMissingEstimates  RiskType = "MISSING_ESTIMATES"
    RiskWorkloadImbalance RiskType = "WORKLOAD_IMBALANCE"
)

// Sprint is an immutable snapshot of a sprint at evaluation time.
type Sprint struct {
    ID            string
    ProjectID     string
    Name          string
    Status        SprintStatus
    StartDate     time.Time
    EndDate       time.Time
    InitialPoints *float64
    Velocity      *float64
}

type Issue struct {
    ID         string
    ProjectID  string
    SprintID   *string
    ParentID   *string
    Name       string
    Type       string
    Priority   string
    Point      *float64
    StatusName string
    Assignees  []string
    CreatedAt  time.Time
    UpdatedAt  time.Time
}

type SprintHistoryEntry struct {
    ID              string
    SprintID        string
    CommittedPoints float64
    CompletedPoints float64
    Velocity        float64
    StartDate       time.Time
    EndDate         time.Time
}

// SimilarIssue is an advisory reference produced by the similarity search.
type SimilarIssue struct {
    ID         string
    Name       string
    Type       string
    Priority   string
    Point      *float64
    Similarity float64
}

// RecommendationDraft is the transient form a rule or the AI analyzer emits
// before persistence assigns ids.
type RecommendationDraft struct {
    Priority        int      `json:"priority"`
    Action          string   `json:"action"`
    ExpectedImpact  string   `json:"expectedImpact"`
    EffortEstimate  string   `json:"effortEstimate"`
    SuggestedIssues []string `json:"suggestedIssues"`
}

// RiskFinding is the transient result of a single rule evaluation.
type RiskFinding struct {
    Type            RiskType
    Severity        RiskSeverity
    Title           string
    Description     string
    ImpactScore     int
    AffectedIssues  []string
    Metadata        map[string]any
    Recommendations []RecommendationDraft
}

type RiskAlert struct {
    ID              string
    SprintID        string
    ProjectID       string
    RiskType        RiskType
    Severity        RiskSeverity
    Title           string
    Description     string
    ImpactScore     int
    Status          AlertStatus
    AffectedIssues  []string
    Metadata        map[string]any
    DetectedAt      time.Time
    AcknowledgedBy  string
    AcknowledgedAt  *time.Time
    ResolvedAt      *time.Time
    Recommendations []Recommendation
}

type Recommendation struct {
    ID              string
    AlertID         string
    Priority        int
    Action          string
    ExpectedImpact  string
    EffortEstimate  string
    SuggestedIssues []string
    Status          RecommendationStatus
    AppliedAt       *time.Time
}
