// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/abparts/ai-assistant/services/assistant/datatypes"
)

// Recorder writes audit events and consent records. All writes are
// explicit calls from the request path; nothing here is triggered
// implicitly by storage.
type Recorder struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(db *sqlx.DB, logger *slog.Logger) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("audit recorder requires a database")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger, now: time.Now}, nil
}

// Record persists one audit event. Audit failures never fail the caller's
// request: the error is logged and swallowed. Use RecordErr when the
// caller needs the error.
func (r *Recorder) Record(ctx context.Context, event datatypes.AuditEvent) {
	if err := r.RecordErr(ctx, event); err != nil {
		r.logger.Error("failed to record audit event",
			"event_type", event.EventType, "error", err)
	}
}

// RecordErr persists one audit event and returns the write error.
func (r *Recorder) RecordErr(ctx context.Context, event datatypes.AuditEvent) error {
	if event.Severity == "" {
		event.Severity = datatypes.SeverityInfo
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}

	const query = `
		INSERT INTO audit_events
			(event_type, severity, session_id, message_id, user_id, detail, created_at)
		VALUES
			(:event_type, :severity, :session_id, :message_id, :user_id, :detail, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// EventsBySession returns all audit events for one session, oldest first.
func (r *Recorder) EventsBySession(ctx context.Context, sessionID string) ([]datatypes.AuditEvent, error) {
	events := []datatypes.AuditEvent{}
	const query = `
		SELECT id, event_type, severity, session_id, message_id, user_id, detail, created_at
		FROM audit_events
		WHERE session_id = ?
		ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &events, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to query session audit events: %w", err)
	}
	return events, nil
}

// EventsByUser returns all audit events referencing one user, oldest first.
func (r *Recorder) EventsByUser(ctx context.Context, userID string) ([]datatypes.AuditEvent, error) {
	events := []datatypes.AuditEvent{}
	const query = `
		SELECT id, event_type, severity, session_id, message_id, user_id, detail, created_at
		FROM audit_events
		WHERE user_id = ?
		ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &events, query, userID); err != nil {
		return nil, fmt.Errorf("failed to query user audit events: %w", err)
	}
	return events, nil
}

// DeleteUserEvents removes all audit events for a user and returns the
// count removed. Used by the privacy erasure flow; the erasure itself is
// recorded as a fresh event by the caller afterwards.
func (r *Recorder) DeleteUserEvents(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted audit events: %w", err)
	}
	return n, nil
}

// PurgeBefore deletes audit events older than cutoff, enforcing the
// retention window.
func (r *Recorder) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged audit events: %w", err)
	}
	return n, nil
}
