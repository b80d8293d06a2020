// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abparts/ai-assistant/services/assistant/audit"
	"github.com/abparts/ai-assistant/services/assistant/datatypes"
	"github.com/abparts/ai-assistant/services/assistant/observability"
	"github.com/abparts/ai-assistant/services/assistant/pipeline"
	"github.com/abparts/ai-assistant/services/assistant/session"
)

// userExport is the full data-subject export for one user.
type userExport struct {
	UserID      string                    `json:"user_id"`
	ExportedAt  time.Time                 `json:"exported_at"`
	Sessions    []exportedSession         `json:"sessions"`
	Consents    []datatypes.ConsentRecord `json:"consents"`
	AuditEvents []datatypes.AuditEvent    `json:"audit_events"`
}

type exportedSession struct {
	Session  datatypes.Session   `json:"session"`
	Messages []datatypes.Message `json:"messages"`
}

// ExportUserData returns everything the service holds about one user:
// sessions with decrypted transcripts, consent records, and audit events.
func ExportUserData(store *session.Store, p *pipeline.Pipeline, recorder *audit.Recorder,
	metrics *observability.AssistantMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		userID := c.Param("userId")
		ctx := c.Request.Context()
		slog.Info("Received a data export request", "user_id", userID)

		sessions, err := store.SessionsByUser(ctx, userID)
		if err != nil {
			metrics.RecordRequest("privacy_export", false)
			slog.Error("failed to list user sessions", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		export := userExport{
			UserID:     userID,
			ExportedAt: time.Now().UTC(),
			Sessions:   make([]exportedSession, 0, len(sessions)),
		}
		for _, sess := range sessions {
			messages, err := p.History(ctx, sess.ID)
			if err != nil {
				metrics.RecordRequest("privacy_export", false)
				slog.Error("failed to decrypt session for export",
					"user_id", userID, "session_id", sess.ID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			// The export carries transcripts once, decrypted.
			sess.Messages = nil
			export.Sessions = append(export.Sessions, exportedSession{
				Session:  sess,
				Messages: messages,
			})
		}

		consents, err := recorder.ConsentsByUser(ctx, userID)
		if err != nil {
			metrics.RecordRequest("privacy_export", false)
			slog.Error("failed to load user consents", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		export.Consents = consents

		events, err := recorder.EventsByUser(ctx, userID)
		if err != nil {
			metrics.RecordRequest("privacy_export", false)
			slog.Error("failed to load user audit events", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		export.AuditEvents = events

		recorder.Record(ctx, datatypes.AuditEvent{
			EventType: datatypes.EventDataExported,
			UserID:    userID,
		})
		metrics.RecordRequest("privacy_export", true)
		c.JSON(http.StatusOK, export)
	}
}

// DeleteUserData erases a user: all sessions, consent records, and prior
// audit events. A single data_deleted event remains as proof of erasure.
func DeleteUserData(store *session.Store, recorder *audit.Recorder,
	metrics *observability.AssistantMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		userID := c.Param("userId")
		ctx := c.Request.Context()
		slog.Info("Received a data erasure request", "user_id", userID)

		sessionsDeleted, err := store.DeleteByUser(ctx, userID)
		if err != nil {
			metrics.RecordRequest("privacy_delete", false)
			slog.Error("failed to delete user sessions", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		consentsDeleted, err := recorder.DeleteUserConsents(ctx, userID)
		if err != nil {
			metrics.RecordRequest("privacy_delete", false)
			slog.Error("failed to delete user consents", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		eventsDeleted, err := recorder.DeleteUserEvents(ctx, userID)
		if err != nil {
			metrics.RecordRequest("privacy_delete", false)
			slog.Error("failed to delete user audit events", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		recorder.Record(ctx, datatypes.AuditEvent{
			EventType: datatypes.EventDataDeleted,
			UserID:    userID,
			Detail:    "user-requested erasure",
		})
		metrics.RecordRequest("privacy_delete", true)
		c.JSON(http.StatusOK, gin.H{
			"status":           "success",
			"user_id":          userID,
			"sessions_deleted": sessionsDeleted,
			"consents_deleted": consentsDeleted,
			"events_deleted":   eventsDeleted,
		})
	}
}

// SetConsent records a consent decision for one (user, type) pair,
// superseding any previous decision.
func SetConsent(recorder *audit.Recorder, metrics *observability.AssistantMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		var req datatypes.ConsentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.RecordRequest("consent", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RecordRequest("consent", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		record := datatypes.ConsentRecord{
			UserID:        userID,
			ConsentType:   req.ConsentType,
			Status:        datatypes.ConsentStatus(req.Status),
			PolicyVersion: req.PolicyVersion,
		}
		if err := recorder.SetConsent(c.Request.Context(), record); err != nil {
			metrics.RecordRequest("consent", false)
			slog.Error("failed to store consent", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		recorder.Record(c.Request.Context(), datatypes.AuditEvent{
			EventType: datatypes.EventConsentChanged,
			UserID:    userID,
			Detail:    "type=" + req.ConsentType + " status=" + req.Status,
		})
		metrics.RecordRequest("consent", true)
		c.JSON(http.StatusOK, record)
	}
}

// GetConsents lists a user's current consent records.
func GetConsents(recorder *audit.Recorder, metrics *observability.AssistantMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		consents, err := recorder.ConsentsByUser(c.Request.Context(), userID)
		if err != nil {
			metrics.RecordRequest("consent", false)
			slog.Error("failed to load consents", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		metrics.RecordRequest("consent", true)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "consents": consents})
	}
}
