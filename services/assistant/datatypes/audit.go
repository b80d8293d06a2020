// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the audit trail and consent models. Audit rows are
// written by explicit calls from the pipeline and session store after each
// state change; there is no trigger-based logging anywhere in the system,
// so every write is visible in code.
package datatypes

import "time"

// =============================================================================
// Audit Events
// =============================================================================

// AuditEventType enumerates the session events worth an audit row.
type AuditEventType string

const (
	EventSessionCreated       AuditEventType = "session_created"
	EventMessageSent          AuditEventType = "message_sent"
	EventReplyGenerated       AuditEventType = "reply_generated"
	EventReplyDegraded        AuditEventType = "reply_degraded"
	EventSessionStatusChanged AuditEventType = "session_status_changed"
	EventSessionExpired       AuditEventType = "session_expired"
	EventSessionDeleted       AuditEventType = "session_deleted"
	EventConsentChanged       AuditEventType = "consent_changed"
	EventDataExported         AuditEventType = "data_exported"
	EventDataDeleted          AuditEventType = "data_deleted"
	EventRedactionApplied     AuditEventType = "redaction_applied"
)

// AuditSeverity follows the usual three-level split.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
	SeverityError   AuditSeverity = "error"
)

// AuditEvent is one append-only audit row.
//
// Rows are never updated or deleted except by retention-policy cleanup.
// Detail is free-form context (counts, statuses) and must never contain
// message content or other sensitive data.
type AuditEvent struct {
	ID        int64          `db:"id" json:"id"`
	EventType AuditEventType `db:"event_type" json:"event_type"`
	Severity  AuditSeverity  `db:"severity" json:"severity"`
	SessionID string         `db:"session_id" json:"session_id,omitempty"`
	MessageID string         `db:"message_id" json:"message_id,omitempty"`
	UserID    string         `db:"user_id" json:"user_id,omitempty"`
	Detail    string         `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// =============================================================================
// Consent Records
// =============================================================================

// ConsentStatus is the state of one (user, consent type) pair.
type ConsentStatus string

const (
	ConsentGranted   ConsentStatus = "granted"
	ConsentDenied    ConsentStatus = "denied"
	ConsentWithdrawn ConsentStatus = "withdrawn"
	ConsentPending   ConsentStatus = "pending"
)

// ConsentRecord is the current consent state for one (user, type) pair.
//
// Updates supersede: the registry keeps at most one current record per
// pair, so a change overwrites status, timestamp, and policy version in
// place (the audit trail keeps the history).
type ConsentRecord struct {
	UserID        string        `db:"user_id" json:"user_id"`
	ConsentType   string        `db:"consent_type" json:"consent_type"`
	Status        ConsentStatus `db:"status" json:"status"`
	PolicyVersion string        `db:"policy_version" json:"policy_version"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}
