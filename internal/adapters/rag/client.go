/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package rag

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/config"
    "github.com/toantran292/datn-sub001/internal/domain"
)

// Client queries the retrieval service for semantically similar past issues.
type Client struct {
    base      string
    threshold float64
    http      *http.Client
    log       zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        base:      strings.TrimRight(cfg.RAGBaseURL, "/"),
        threshold: cfg.RAGThreshold,
        http:      &http.Client{Timeout: cfg.RAGTimeout},
        log:       log,
    }
}

type searchRequest struct {
    Query     string  `json:"query"`
    Limit     int     `json:"limit"`
    ProjectID string  `json:"projectId,omitempty"`
    Threshold float64 `json:"threshold"`
}

type searchHit struct {
    ID         string   `json:"id"`
    Name       string   `json:"name"`
    Type       string   `json:"type"`
    Priority   string   `json:"priority"`
    Point      *float64 `json:"point"`
    Similarity float64  `json:"similarity"`
}

func (c *Client) FindSimilar(ctx context.Context, query string, limit int, projectID string, threshold float64) ([]domain.SimilarIssue, error) {
    if c.base == "" { return nil, errors.New("rag: base url not configured") }
    if threshold <= 0 { threshold = c.threshold }

    body, _ := json.Marshal(searchRequest{Query: query, Limit: limit, ProjectID: projectID, Threshold: threshold})
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/search/similar-issues", bytes.NewReader(body))
    if err != nil { return nil, err }
    req.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 { return nil, fmt.Errorf("rag status=%d", resp.StatusCode) }

    var out struct {
        Results []searchHit `json:"results"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil { return nil, err }

    issues := make([]domain.SimilarIssue, 0, len(out.Results))
    for _, h := range out.Results {
        issues = append(issues, domain.SimilarIssue{
            ID: h.ID, Name: h.Name, Type: h.Type, Priority: h.Priority,
            Point: h.Point, Similarity: h.Similarity,
        })
    }
    c.log.Debug().Int("hits", len(issues)).Msg("similarity search complete")
    return issues, nil
}
