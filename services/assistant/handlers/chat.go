// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP endpoints of the assistant service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/abparts/ai-assistant/services/assistant/datatypes"
	"github.com/abparts/ai-assistant/services/assistant/observability"
	"github.com/abparts/ai-assistant/services/assistant/pipeline"
	"github.com/abparts/ai-assistant/services/assistant/session"
	"github.com/abparts/ai-assistant/services/llm"
)

// HandleChat processes one chat turn via the message pipeline.
//
// Returns 201 with the session id for a new session, 200 for an existing
// one. 404 for an unknown or expired session, 409 for a closed one, 503
// when reply generation is impossible and degraded mode is off.
func HandleChat(p *pipeline.Pipeline, metrics *observability.AssistantMetrics) gin.HandlerFunc {
	tracer := otel.Tracer("abparts.assistant.chat")

	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "chat.HandleChat")
		defer span.End()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.SetStatus(codes.Error, "malformed body")
			metrics.RecordRequest("chat", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("chat request failed validation", "error", err)
			span.SetStatus(codes.Error, "validation failed")
			metrics.RecordRequest("chat", false)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		newSession := req.SessionID == ""
		span.SetAttributes(
			attribute.Bool("chat.new_session", newSession),
			attribute.String("chat.language", req.Language),
		)

		resp, err := p.HandleIncoming(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pipeline failed")
			metrics.RecordRequest("chat", false)
			metrics.RecordChatTurn(time.Since(start).Seconds(), "error")
			switch {
			case errors.Is(err, session.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			case errors.Is(err, session.ErrSessionClosed):
				c.JSON(http.StatusConflict, gin.H{"error": "session is closed"})
			case errors.Is(err, llm.ErrUpstreamUnavailable):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant temporarily unavailable"})
			default:
				slog.Error("chat turn failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		status := "success"
		if resp.Degraded {
			status = "degraded"
			metrics.DegradedRepliesTotal.Inc()
		}
		metrics.RecordRequest("chat", true)
		metrics.RecordChatTurn(time.Since(start).Seconds(), status)

		if newSession {
			c.JSON(http.StatusCreated, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
