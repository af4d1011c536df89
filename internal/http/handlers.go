/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/config"
    "github.com/toantran292/datn-sub001/internal/domain"
    "github.com/toantran292/datn-sub001/internal/repo"
    "github.com/toantran292/datn-sub001/internal/risk"
)

type detector interface {
    Detect(ctx context.Context, sprintID string) (*risk.DetectionReport, error)
}

type analyzer interface {
    Analyze(ctx context.Context, sprintID string) (*risk.AnalysisResult, error)
}

type lifecycle interface {
    Acknowledge(ctx context.Context, alertID, by, note string) (*domain.RiskAlert, error)
    Resolve(ctx context.Context, alertID, resolution string, actionsTaken []string) (*domain.RiskAlert, error)
    Dismiss(ctx context.Context, alertID, reason string) (*domain.RiskAlert, error)
    ApplyRecommendation(ctx context.Context, recommendationID string) (*risk.ApplyResult, error)
}

type alertLister interface {
    ListAlerts(ctx context.Context, f repo.AlertFilter) ([]domain.RiskAlert, error)
}

type Handlers struct {
    cfg       config.Config
    log       zerolog.Logger
    detector  detector
    analyzer  analyzer
    lifecycle lifecycle
    alerts    alertLister
}

func NewHandlers(cfg config.Config, log zerolog.Logger, d detector, a analyzer, l lifecycle, alerts alertLister) *Handlers {
    return &Handlers{cfg: cfg, log: log, detector: d, analyzer: a, lifecycle: l, alerts: alerts}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Detect runs the rule-based detection pass for one sprint.
func (h *Handlers) Detect(c *gin.Context) {
    report, err := h.detector.Detect(c.Request.Context(), c.Param("sprintId"))
    if err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, report)
}

// Analyze runs the AI sprint assessment. A malformed model reply is a 502,
// not a 500: the caller can retry or fall back to /detect.
func (h *Handlers) Analyze(c *gin.Context) {
    result, err := h.analyzer.Analyze(c.Request.Context(), c.Param("sprintId"))
    if err != nil {
        if errors.Is(err, domain.ErrInvalidAIResponse) {
            c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
            return
        }
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, result)
}

// ListRisks returns alerts for a sprint with optional severity/status
// filters, plus per-severity counts over the filtered set. Without an
// explicit status filter only open alerts (ACTIVE, ACKNOWLEDGED) are
// returned.
func (h *Handlers) ListRisks(c *gin.Context) {
    f := repo.AlertFilter{
        SprintID: c.Param("sprintId"),
        Severity: domain.RiskSeverity(c.Query("severity")),
        Status:   domain.AlertStatus(c.Query("status")),
    }
    if f.Status == "" { f.OpenOnly = true }
    if f.Severity != "" && !f.Severity.Valid() {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
        return
    }
    alerts, err := h.alerts.ListAlerts(c.Request.Context(), f)
    if err != nil {
        h.fail(c, err)
        return
    }

    summary := gin.H{"total": len(alerts), "critical": 0, "medium": 0, "low": 0}
    for _, a := range alerts {
        switch a.Severity {
        case domain.SeverityCritical:
            summary["critical"] = summary["critical"].(int) + 1
        case domain.SeverityMedium:
            summary["medium"] = summary["medium"].(int) + 1
        case domain.SeverityLow:
            summary["low"] = summary["low"].(int) + 1
        }
    }
    c.JSON(http.StatusOK, gin.H{"alerts": alerts, "summary": summary})
}

func (h *Handlers) Acknowledge(c *gin.Context) {
    var body struct {
        UserID string `json:"userId" binding:"required"`
        Note   string `json:"note"`
    }
    if err := c.ShouldBindJSON(&body); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    alert, err := h.lifecycle.Acknowledge(c.Request.Context(), c.Param("alertId"), body.UserID, body.Note)
    if err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, alert)
}

func (h *Handlers) Resolve(c *gin.Context) {
    var body struct {
        Resolution   string   `json:"resolution" binding:"required"`
        ActionsTaken []string `json:"actionsTaken"`
    }
    if err := c.ShouldBindJSON(&body); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    alert, err := h.lifecycle.Resolve(c.Request.Context(), c.Param("alertId"), body.Resolution, body.ActionsTaken)
    if err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, alert)
}

func (h *Handlers) Dismiss(c *gin.Context) {
    var body struct {
        Reason string `json:"reason" binding:"required"`
    }
    if err := c.ShouldBindJSON(&body); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    alert, err := h.lifecycle.Dismiss(c.Request.Context(), c.Param("alertId"), body.Reason)
    if err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, alert)
}

func (h *Handlers) ApplyRecommendation(c *gin.Context) {
    result, err := h.lifecycle.ApplyRecommendation(c.Request.Context(), c.Param("recommendationId"))
    if err != nil {
        h.fail(c, err)
        return
    }
    c.JSON(http.StatusOK, result)
}

func (h *Handlers) fail(c *gin.Context, err error) {
    switch {
    case errors.Is(err, domain.ErrNotFound):
        c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
    case errors.Is(err, domain.ErrInvalidTransition):
        c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
    default:
        h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
    }
}
