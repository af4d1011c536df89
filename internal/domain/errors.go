/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "errors"

var (
    // ErrNotFound marks an unknown sprint, alert, issue, or recommendation id.
    ErrNotFound = errors.New("not found")
    // ErrInvalidAIResponse marks a reasoning-service reply that failed strict
    // JSON parsing or was missing required fields.
    ErrInvalidAIResponse = errors.New("invalid ai response")
    // ErrInvalidTransition marks a lifecycle operation on a terminal alert.
    ErrInvalidTransition = errors.New("invalid status transition")
    // ErrDuplicateAlert marks a create that lost the race against another
    // open alert of the same type on the same sprint.
    ErrDuplicateAlert = errors.New("open alert already exists")
)
