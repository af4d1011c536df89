/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
    "context"
    "errors"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"

    "github.com/toantran292/datn-sub001/internal/config"
    "github.com/toantran292/datn-sub001/internal/domain"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// --- sprint / issue reads ---

func (r *Repository) GetSprint(ctx context.Context, id string) (*domain.Sprint, error) {
    const q = `
        SELECT id, project_id, name, status, start_date, end_date, initial_points, velocity
        FROM sprints WHERE id = $1`
    var s domain.Sprint
    err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.ProjectID, &s.Name, &s.Status,
        &s.StartDate, &s.EndDate, &s.InitialPoints, &s.Velocity)
    if errors.Is(err, pgx.ErrNoRows) { return nil, domain.ErrNotFound }
    if err != nil { return nil, err }
    return &s, nil
}

func (r *Repository) ListActiveSprints(ctx context.Context) ([]domain.Sprint, error) {
    const q = `
        SELECT id, project_id, name, status, start_date, end_date, initial_points, velocity
        FROM sprints WHERE status = 'ACTIVE' ORDER BY start_date`
    rows, err := r.db.Pool.Query(ctx, q)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Sprint
    for rows.Next() {
        var s domain.Sprint
        if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Status, &s.StartDate, &s.EndDate, &s.InitialPoints, &s.Velocity); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (r *Repository) ListSprintIssues(ctx context.Context, sprintID string) ([]domain.Issue, error) {
    const q = `
        SELECT id, project_id, sprint_id, parent_id, name, type, priority, point,
            status_name, assignees, created_at, updated_at
        FROM issues WHERE sprint_id = $1`
    rows, err := r.db.Pool.Query(ctx, q, sprintID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Issue
    for rows.Next() {
        var i domain.Issue
        if err := rows.Scan(&i.ID, &i.ProjectID, &i.SprintID, &i.ParentID, &i.Name, &i.Type,
            &i.Priority, &i.Point, &i.StatusName, &i.Assignees, &i.CreatedAt, &i.UpdatedAt); err != nil { return nil, err }
        out = append(out, i)
    }
    return out, rows.Err()
}

func (r *Repository) ListSprintHistory(ctx context.Context, projectID string, limit int) ([]domain.SprintHistoryEntry, error) {
    const q = `
        SELECT h.id, h.sprint_id, h.committed_points, h.completed_points, h.velocity, s.start_date, s.end_date
        FROM sprint_history h
        JOIN sprints s ON s.id = h.sprint_id
        WHERE s.project_id = $1 AND s.status = 'CLOSED'
        ORDER BY s.end_date DESC
        LIMIT $2`
    rows, err := r.db.Pool.Query(ctx, q, projectID, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.SprintHistoryEntry
    for rows.Next() {
        var h domain.SprintHistoryEntry
        if err := rows.Scan(&h.ID, &h.SprintID, &h.CommittedPoints, &h.CompletedPoints, &h.Velocity, &h.StartDate, &h.EndDate); err != nil { return nil, err }
        out = append(out, h)
    }
    return out, rows.Err()
}

func (r *Repository) GetIssue(ctx context.Context, id string) (*domain.Issue, error) {
    const q = `
        SELECT id, project_id, sprint_id, parent_id, name, type, priority, point,
            status_name, assignees, created_at, updated_at
        FROM issues WHERE id = $1`
    var i domain.Issue
    err := r.db.Pool.QueryRow(ctx, q, id).Scan(&i.ID, &i.ProjectID, &i.SprintID, &i.ParentID,
        &i.Name, &i.Type, &i.Priority, &i.Point, &i.StatusName, &i.Assignees, &i.CreatedAt, &i.UpdatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, domain.ErrNotFound }
    if err != nil { return nil, err }
    return &i, nil
}

func (r *Repository) ClearSprintAssignment(ctx context.Context, issueID string) error {
    tag, err := r.db.Pool.Exec(ctx, `UPDATE issues SET sprint_id = NULL, updated_at = now() WHERE id = $1`, issueID)
    if err != nil { return err }
    if tag.RowsAffected() == 0 { return domain.ErrNotFound }
    return nil
}

// --- alerts ---

const alertCols = `id, sprint_id, project_id, risk_type, severity, title, description,
    impact_score, status, affected_issues, metadata, detected_at, acknowledged_by, acknowledged_at, resolved_at`

func scanAlert(row pgx.Row) (*domain.RiskAlert, error) {
    var a domain.RiskAlert
    var ackBy *string
    err := row.Scan(&a.ID, &a.SprintID, &a.ProjectID, &a.RiskType, &a.Severity, &a.Title, &a.Description,
        &a.ImpactScore, &a.Status, &a.AffectedIssues, &a.Metadata, &a.DetectedAt, &ackBy, &a.AcknowledgedAt, &a.ResolvedAt)
    if err != nil { return nil, err }
    if ackBy != nil { a.AcknowledgedBy = *ackBy }
    return &a, nil
}

func (r *Repository) FindOpenAlert(ctx context.Context, sprintID string, riskType domain.RiskType) (*domain.RiskAlert, error) {
    q := `SELECT ` + alertCols + `
        FROM risk_alerts
        WHERE sprint_id = $1 AND risk_type = $2 AND status IN ('ACTIVE','ACKNOWLEDGED')
        LIMIT 1`
    a, err := scanAlert(r.db.Pool.QueryRow(ctx, q, sprintID, riskType))
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return a, nil
}

// CreateAlertWithRecommendations persists the alert and its recommendations
// in one transaction so a partial write can never leave an alert without its
// suggested actions.
func (r *Repository) CreateAlertWithRecommendations(ctx context.Context, alert *domain.RiskAlert, recs []domain.RecommendationDraft) (*domain.RiskAlert, error) {
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return nil, err }
    defer tx.Rollback(ctx)

    alert.ID = uuid.NewString()
    alert.DetectedAt = time.Now()
    if alert.Status == "" { alert.Status = domain.AlertActive }
    if alert.AffectedIssues == nil { alert.AffectedIssues = []string{} }

    const q = `
        INSERT INTO risk_alerts(id, sprint_id, project_id, risk_type, severity, title, description,
            impact_score, status, affected_issues, metadata, detected_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
    if _, err := tx.Exec(ctx, q, alert.ID, alert.SprintID, alert.ProjectID, alert.RiskType, alert.Severity,
        alert.Title, alert.Description, alert.ImpactScore, alert.Status, alert.AffectedIssues,
        alert.Metadata, alert.DetectedAt); err != nil {
        var pgErr *pgconn.PgError
        if errors.As(err, &pgErr) && pgErr.Code == "23505" { return nil, domain.ErrDuplicateAlert }
        return nil, err
    }

    if len(recs) > 0 {
        batch := &pgx.Batch{}
        const rq = `
            INSERT INTO recommendations(id, alert_id, priority, action, expected_impact, effort_estimate, suggested_issues, status)
            VALUES($1,$2,$3,$4,$5,$6,$7,'PENDING')`
        alert.Recommendations = make([]domain.Recommendation, 0, len(recs))
        for _, d := range recs {
            rec := domain.Recommendation{
                ID:              uuid.NewString(),
                AlertID:         alert.ID,
                Priority:        d.Priority,
                Action:          d.Action,
                ExpectedImpact:  d.ExpectedImpact,
                EffortEstimate:  d.EffortEstimate,
                SuggestedIssues: d.SuggestedIssues,
                Status:          domain.RecommendationPending,
            }
            if rec.SuggestedIssues == nil { rec.SuggestedIssues = []string{} }
            batch.Queue(rq, rec.ID, rec.AlertID, rec.Priority, rec.Action, rec.ExpectedImpact, rec.EffortEstimate, rec.SuggestedIssues)
            alert.Recommendations = append(alert.Recommendations, rec)
        }
        br := tx.SendBatch(ctx, batch)
        for range recs {
            if _, err := br.Exec(); err != nil { br.Close(); return nil, err }
        }
        if err := br.Close(); err != nil { return nil, err }
    }

    if err := tx.Commit(ctx); err != nil { return nil, err }
    return alert, nil
}

func (r *Repository) GetAlert(ctx context.Context, id string) (*domain.RiskAlert, error) {
    q := `SELECT ` + alertCols + ` FROM risk_alerts WHERE id = $1`
    a, err := scanAlert(r.db.Pool.QueryRow(ctx, q, id))
    if errors.Is(err, pgx.ErrNoRows) { return nil, domain.ErrNotFound }
    if err != nil { return nil, err }
    recs, err := r.listRecommendations(ctx, id)
    if err != nil { return nil, err }
    a.Recommendations = recs
    return a, nil
}

// AlertFilter narrows ListAlerts; zero values mean no filtering. OpenOnly
// restricts to ACTIVE and ACKNOWLEDGED alerts when no explicit status is set.
type AlertFilter struct {
    SprintID string
    Severity domain.RiskSeverity
    Status   domain.AlertStatus
    OpenOnly bool
}

func (r *Repository) ListAlerts(ctx context.Context, f AlertFilter) ([]domain.RiskAlert, error) {
    q := `SELECT ` + alertCols + ` FROM risk_alerts WHERE 1=1`
    args := []any{}
    if f.SprintID != "" {
        args = append(args, f.SprintID)
        q += ` AND sprint_id = $` + strconv.Itoa(len(args))
    }
    if f.Severity != "" {
        args = append(args, f.Severity)
        q += ` AND severity = $` + strconv.Itoa(len(args))
    }
    if f.Status != "" {
        args = append(args, f.Status)
        q += ` AND status = $` + strconv.Itoa(len(args))
    } else if f.OpenOnly {
        q += ` AND status IN ('ACTIVE','ACKNOWLEDGED')`
    }
    q += `
        ORDER BY CASE severity WHEN 'CRITICAL' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END,
            detected_at DESC`

    rows, err := r.db.Pool.Query(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.RiskAlert
    for rows.Next() {
        a, err := scanAlert(rows)
        if err != nil { return nil, err }
        out = append(out, *a)
    }
    if err := rows.Err(); err != nil { return nil, err }

    for i := range out {
        recs, err := r.listRecommendations(ctx, out[i].ID)
        if err != nil { return nil, err }
        out[i].Recommendations = recs
    }
    return out, nil
}

func (r *Repository) UpdateAlertStatus(ctx context.Context, a *domain.RiskAlert) error {
    const q = `
        UPDATE risk_alerts
        SET status = $2, acknowledged_by = NULLIF($3,''), acknowledged_at = $4, resolved_at = $5, metadata = $6
        WHERE id = $1`
    tag, err := r.db.Pool.Exec(ctx, q, a.ID, a.Status, a.AcknowledgedBy, a.AcknowledgedAt, a.ResolvedAt, a.Metadata)
    if err != nil { return err }
    if tag.RowsAffected() == 0 { return domain.ErrNotFound }
    return nil
}

// --- recommendations ---

func (r *Repository) listRecommendations(ctx context.Context, alertID string) ([]domain.Recommendation, error) {
    const q = `
        SELECT id, alert_id, priority, action, expected_impact, effort_estimate, suggested_issues, status, applied_at
        FROM recommendations WHERE alert_id = $1 ORDER BY priority`
    rows, err := r.db.Pool.Query(ctx, q, alertID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Recommendation
    for rows.Next() {
        var rec domain.Recommendation
        if err := rows.Scan(&rec.ID, &rec.AlertID, &rec.Priority, &rec.Action, &rec.ExpectedImpact,
            &rec.EffortEstimate, &rec.SuggestedIssues, &rec.Status, &rec.AppliedAt); err != nil { return nil, err }
        out = append(out, rec)
    }
    return out, rows.Err()
}

func (r *Repository) GetRecommendation(ctx context.Context, id string) (*domain.Recommendation, error) {
    const q = `
        SELECT id, alert_id, priority, action, expected_impact, effort_estimate, suggested_issues, status, applied_at
        FROM recommendations WHERE id = $1`
    var rec domain.Recommendation
    err := r.db.Pool.QueryRow(ctx, q, id).Scan(&rec.ID, &rec.AlertID, &rec.Priority, &rec.Action,
        &rec.ExpectedImpact, &rec.EffortEstimate, &rec.SuggestedIssues, &rec.Status, &rec.AppliedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, domain.ErrNotFound }
    if err != nil { return nil, err }
    return &rec, nil
}

func (r *Repository) MarkRecommendationApplied(ctx context.Context, id string, appliedAt time.Time) error {
    const q = `UPDATE recommendations SET status = 'APPLIED', applied_at = $2 WHERE id = $1`
    tag, err := r.db.Pool.Exec(ctx, q, id, appliedAt)
    if err != nil { return err }
    if tag.RowsAffected() == 0 { return domain.ErrNotFound }
    return nil
}

