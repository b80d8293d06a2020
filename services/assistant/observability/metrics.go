// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// assistant service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the chat
// pipeline. Metrics include:
//   - Request counters (by endpoint, status)
//   - Chat turn latency histograms
//   - Degraded reply and LLM failover counters
//   - Redaction match counters (by classification)
//   - Active session gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "abparts"

// Subsystem for assistant metrics
const assistantSubsystem = "assistant"

// AssistantMetrics holds all Prometheus metrics for the chat service.
// Initialize once at startup via InitMetrics().
type AssistantMetrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint (chat, history, status, privacy), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ChatTurnSeconds measures wall time for one full chat turn.
	// Labels: status (success, degraded, error)
	ChatTurnSeconds *prometheus.HistogramVec

	// DegradedRepliesTotal counts turns served without any live backend.
	DegradedRepliesTotal prometheus.Counter

	// FallbacksTotal counts turns answered by the fallback backend.
	FallbacksTotal prometheus.Counter

	// RedactionsTotal counts pattern matches removed from user messages.
	// Labels: classification (email, phone, credential, ...)
	RedactionsTotal *prometheus.CounterVec

	// ActiveSessions tracks sessions currently in the active state.
	ActiveSessions prometheus.Gauge

	// SessionsSweptTotal counts sessions abandoned by the idle sweeper.
	SessionsSweptTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of AssistantMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *AssistantMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *AssistantMetrics {
	DefaultMetrics = &AssistantMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "requests_total",
				Help:      "Total API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ChatTurnSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "chat_turn_seconds",
				Help:      "Wall time for one full chat turn in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"status"},
		),

		DegradedRepliesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "degraded_replies_total",
				Help:      "Total chat turns served with a canned reply because all backends were down",
			},
		),

		FallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "fallbacks_total",
				Help:      "Total chat turns answered by the fallback backend",
			},
		),

		RedactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "redactions_total",
				Help:      "Total sensitive-data matches redacted from user messages",
			},
			[]string{"classification"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "active_sessions",
				Help:      "Number of sessions currently in the active state",
			},
		),

		SessionsSweptTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "sessions_swept_total",
				Help:      "Total sessions abandoned by the idle sweeper",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed API request.
func (m *AssistantMetrics) RecordRequest(endpoint string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordChatTurn records the duration of one chat turn.
func (m *AssistantMetrics) RecordChatTurn(seconds float64, status string) {
	m.ChatTurnSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordRedactions records redaction matches for one classification.
func (m *AssistantMetrics) RecordRedactions(classification string, count int) {
	if count <= 0 {
		return
	}
	m.RedactionsTotal.WithLabelValues(classification).Add(float64(count))
}
