// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abparts/ai-assistant/services/assistant/audit"
	"github.com/abparts/ai-assistant/services/assistant/handlers"
	"github.com/abparts/ai-assistant/services/assistant/middleware"
	"github.com/abparts/ai-assistant/services/assistant/observability"
	"github.com/abparts/ai-assistant/services/assistant/pipeline"
	"github.com/abparts/ai-assistant/services/assistant/session"
)

// Deps carries everything the route table needs.
type Deps struct {
	Sessions *session.Store
	Pipeline *pipeline.Pipeline
	Recorder *audit.Recorder
	Metrics  *observability.AssistantMetrics

	AllowedOrigins []string
	RatePerSecond  float64
	RateBurst      int
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(deps.RatePerSecond, deps.RateBurst)

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.CORS(deps.AllowedOrigins))
	v1.Use(limiter.Middleware())
	{
		v1.POST("/chat", handlers.HandleChat(deps.Pipeline, deps.Metrics))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId", handlers.GetSessionHistory(deps.Sessions, deps.Pipeline, deps.Metrics))
			sessions.POST("/:sessionId/status", handlers.UpdateSessionStatus(deps.Sessions, deps.Recorder, deps.Metrics))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.Sessions, deps.Recorder, deps.Metrics))
		}

		// Privacy and consent routes
		privacy := v1.Group("/privacy/users/:userId")
		{
			privacy.GET("/export", handlers.ExportUserData(deps.Sessions, deps.Pipeline, deps.Recorder, deps.Metrics))
			privacy.DELETE("", handlers.DeleteUserData(deps.Sessions, deps.Recorder, deps.Metrics))
			privacy.POST("/consent", handlers.SetConsent(deps.Recorder, deps.Metrics))
			privacy.GET("/consent", handlers.GetConsents(deps.Recorder, deps.Metrics))
		}
	}
}
