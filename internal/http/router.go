/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, h *Handlers) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context) {
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    r.GET("/healthz", h.Healthz)

    api := r.Group("/api/risk-detection")
    api.POST("/sprints/:sprintId/detect", h.Detect)
    api.POST("/sprints/:sprintId/analyze", h.Analyze)
    api.GET("/sprints/:sprintId/risks", h.ListRisks)
    api.PATCH("/alerts/:alertId/acknowledge", h.Acknowledge)
    api.PATCH("/alerts/:alertId/resolve", h.Resolve)
    api.PATCH("/alerts/:alertId/dismiss", h.Dismiss)
    api.POST("/recommendations/:recommendationId/apply", h.ApplyRecommendation)

    return r
}
