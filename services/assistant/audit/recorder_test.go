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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abparts/ai-assistant/services/assistant/datatypes"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "audit_test.db")
	db, err := OpenDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rec, err := NewRecorder(db, nil)
	require.NoError(t, err)
	return rec
}

func TestRecordAndQueryBySession(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.Record(ctx, datatypes.AuditEvent{
		EventType: datatypes.EventSessionCreated,
		SessionID: "sess-1",
		UserID:    "user-1",
	})
	rec.Record(ctx, datatypes.AuditEvent{
		EventType: datatypes.EventMessageSent,
		SessionID: "sess-1",
		UserID:    "user-1",
		MessageID: "msg-1",
		Detail:    "redactions=2",
	})
	rec.Record(ctx, datatypes.AuditEvent{
		EventType: datatypes.EventSessionCreated,
		SessionID: "sess-2",
		UserID:    "user-2",
	})

	events, err := rec.EventsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Oldest first, defaults filled in.
	assert.Equal(t, datatypes.EventSessionCreated, events[0].EventType)
	assert.Equal(t, datatypes.EventMessageSent, events[1].EventType)
	assert.Equal(t, datatypes.SeverityInfo, events[0].Severity)
	assert.Equal(t, "msg-1", events[1].MessageID)
	assert.False(t, events[0].CreatedAt.IsZero())
	assert.Positive(t, events[0].ID)
}

func TestEventsByUser(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec.Record(ctx, datatypes.AuditEvent{
			EventType: datatypes.EventMessageSent,
			SessionID: "sess-1",
			UserID:    "user-a",
		})
	}
	rec.Record(ctx, datatypes.AuditEvent{
		EventType: datatypes.EventMessageSent,
		SessionID: "sess-2",
		UserID:    "user-b",
	})

	events, err := rec.EventsByUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestDeleteUserEvents(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.Record(ctx, datatypes.AuditEvent{EventType: datatypes.EventMessageSent, UserID: "user-a"})
	rec.Record(ctx, datatypes.AuditEvent{EventType: datatypes.EventMessageSent, UserID: "user-b"})

	deleted, err := rec.DeleteUserEvents(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err := rec.EventsByUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = rec.EventsByUser(ctx, "user-b")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPurgeBefore(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	rec.now = func() time.Time { return old }
	rec.Record(ctx, datatypes.AuditEvent{EventType: datatypes.EventMessageSent, UserID: "user-a"})

	rec.now = time.Now
	rec.Record(ctx, datatypes.AuditEvent{EventType: datatypes.EventMessageSent, UserID: "user-a"})

	purged, err := rec.PurgeBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	events, err := rec.EventsByUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRetentionLoopStartStop(t *testing.T) {
	rec := newTestRecorder(t)
	loop := NewRetentionLoop(rec, 24*time.Hour, 10*time.Millisecond, nil)
	loop.Start()
	time.Sleep(30 * time.Millisecond)
	loop.Stop() // must not hang
}

// =============================================================================
// Consent
// =============================================================================

func TestConsentUpsertSupersedes(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.SetConsent(ctx, datatypes.ConsentRecord{
		UserID:        "user-1",
		ConsentType:   "chat_processing",
		Status:        datatypes.ConsentGranted,
		PolicyVersion: "2026-01",
	}))

	record, err := rec.GetConsent(ctx, "user-1", "chat_processing")
	require.NoError(t, err)
	assert.Equal(t, datatypes.ConsentGranted, record.Status)
	assert.Equal(t, "2026-01", record.PolicyVersion)

	// A withdrawal replaces the grant in place.
	require.NoError(t, rec.SetConsent(ctx, datatypes.ConsentRecord{
		UserID:        "user-1",
		ConsentType:   "chat_processing",
		Status:        datatypes.ConsentWithdrawn,
		PolicyVersion: "2026-02",
	}))

	record, err = rec.GetConsent(ctx, "user-1", "chat_processing")
	require.NoError(t, err)
	assert.Equal(t, datatypes.ConsentWithdrawn, record.Status)
	assert.Equal(t, "2026-02", record.PolicyVersion)

	records, err := rec.ConsentsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestConsentNotFound(t *testing.T) {
	rec := newTestRecorder(t)

	_, err := rec.GetConsent(context.Background(), "nobody", "chat_processing")
	assert.ErrorIs(t, err, ErrConsentNotFound)
}

func TestConsentRequiresIdentity(t *testing.T) {
	rec := newTestRecorder(t)

	err := rec.SetConsent(context.Background(), datatypes.ConsentRecord{
		Status: datatypes.ConsentGranted,
	})
	assert.Error(t, err)
}

func TestDeleteUserConsents(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.SetConsent(ctx, datatypes.ConsentRecord{
		UserID: "user-1", ConsentType: "chat_processing", Status: datatypes.ConsentGranted,
	}))
	require.NoError(t, rec.SetConsent(ctx, datatypes.ConsentRecord{
		UserID: "user-1", ConsentType: "analytics", Status: datatypes.ConsentDenied,
	}))

	deleted, err := rec.DeleteUserConsents(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = rec.GetConsent(ctx, "user-1", "chat_processing")
	assert.ErrorIs(t, err, ErrConsentNotFound)
}
