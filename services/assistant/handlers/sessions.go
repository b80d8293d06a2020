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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abparts/ai-assistant/services/assistant/datatypes"
	"github.com/abparts/ai-assistant/services/assistant/observability"
	"github.com/abparts/ai-assistant/services/assistant/pipeline"
	"github.com/abparts/ai-assistant/services/assistant/session"
)

// GetSessionHistory returns a session's decrypted transcript in order.
func GetSessionHistory(store *session.Store, p *pipeline.Pipeline,
	metrics *observability.AssistantMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		sess, err := store.Get(c.Request.Context(), sessionID)
		if err != nil {
			metrics.RecordRequest("history", false)
			if errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("failed to load session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		messages, err := p.History(c.Request.Context(), sessionID)
		if err != nil {
			metrics.RecordRequest("history", false)
			slog.Error("failed to decrypt history", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		metrics.RecordRequest("history", true)
		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			SessionID: sess.ID,
			Status:    sess.Status,
			Language:  sess.Language,
			Messages:  messages,
		})
	}
}

// UpdateSessionStatus applies one state-machine transition. 409 for a
// transition the machine forbids.
func UpdateSessionStatus(store *session.Store, recorder session.EventRecorder,
	metrics *observability.AssistantMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		var req datatypes.StatusUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.RecordRequest("status", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RecordRequest("status", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := store.UpdateStatus(c.Request.Context(), sessionID, req.Status)
		if err != nil {
			metrics.RecordRequest("status", false)
			switch {
			case errors.Is(err, session.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			case errors.Is(err, session.ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				slog.Error("failed to update session status", "session_id", sessionID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		if recorder != nil {
			recorder.Record(c.Request.Context(), datatypes.AuditEvent{
				EventType: datatypes.EventSessionStatusChanged,
				SessionID: sessionID,
				Detail:    "status=" + string(req.Status),
			})
		}
		metrics.RecordRequest("status", true)
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": req.Status})
	}
}

// DeleteSession removes one session and its messages outright.
func DeleteSession(store *session.Store, recorder session.EventRecorder,
	metrics *observability.AssistantMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "session_id", sessionID)

		err := store.Delete(c.Request.Context(), sessionID)
		if err != nil {
			metrics.RecordRequest("delete_session", false)
			if errors.Is(err, session.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("failed to delete session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if recorder != nil {
			recorder.Record(c.Request.Context(), datatypes.AuditEvent{
				EventType: datatypes.EventSessionDeleted,
				SessionID: sessionID,
			})
		}
		metrics.RecordRequest("delete_session", true)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
