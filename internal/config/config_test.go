/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "testing"
    "time"
)

func TestTypedGetters_FallBackOnMissingOrBadValues(t *testing.T) {
    t.Setenv("CFG_TEST_INT", "not a number")
    if got := atoi("CFG_TEST_INT", 7); got != 7 {
        t.Fatalf("atoi bad value: got %d", got)
    }
    if got := atoi("CFG_TEST_MISSING", 3); got != 3 {
        t.Fatalf("atoi missing: got %d", got)
    }

    t.Setenv("CFG_TEST_FLOAT", "0.9")
    if got := atof("CFG_TEST_FLOAT", 0.5); got != 0.9 {
        t.Fatalf("atof: got %v", got)
    }

    t.Setenv("CFG_TEST_DUR", "90s")
    if got := dur("CFG_TEST_DUR", time.Minute); got != 90*time.Second {
        t.Fatalf("dur: got %v", got)
    }
    if got := dur("CFG_TEST_MISSING", time.Minute); got != time.Minute {
        t.Fatalf("dur missing: got %v", got)
    }
}

func TestLoad_Defaults(t *testing.T) {
    cfg := Load()
    if cfg.RAGThreshold != 0.75 { t.Fatalf("rag threshold: %v", cfg.RAGThreshold) }
    if cfg.RAGLimit != 10 { t.Fatalf("rag limit: %d", cfg.RAGLimit) }
    if cfg.HistoryDepth != 6 { t.Fatalf("history depth: %d", cfg.HistoryDepth) }
    if cfg.DetectCron == "" { t.Fatal("detect cron empty") }
}
