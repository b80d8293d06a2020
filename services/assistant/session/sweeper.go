// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/abparts/ai-assistant/services/assistant/datatypes"
)

// EventRecorder is the narrow audit surface the sweeper needs.
//
// Implementations must never block session cleanup on their own failures;
// the sweeper logs recorder errors and carries on.
type EventRecorder interface {
	Record(ctx context.Context, event datatypes.AuditEvent)
}

// Sweeper periodically transitions idle-timed-out sessions to "abandoned"
// and emits one audit event per swept session.
//
// This is the service's only background goroutine. It owns no state beyond
// the stop/done channels; all session mutation goes through the Store.
type Sweeper struct {
	store    *Store
	recorder EventRecorder
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates a sweeper. Call Start() to begin and Stop() to halt.
// recorder may be nil when audit is disabled (tests).
func NewSweeper(store *Store, recorder EventRecorder, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		recorder: recorder,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins periodic sweeping in a background goroutine.
func (w *Sweeper) Start() {
	go w.run()
}

// Stop signals the goroutine to stop and waits for it to finish.
func (w *Sweeper) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Sweeper) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swept, err := w.store.sweepExpired(ctx)
	if err != nil {
		w.logger.Warn("session sweep failed", "error", err)
		return
	}
	if len(swept) == 0 {
		return
	}
	w.logger.Info("abandoned idle sessions", "count", len(swept))
	if w.recorder == nil {
		return
	}
	for _, sess := range swept {
		w.recorder.Record(ctx, datatypes.AuditEvent{
			EventType: datatypes.EventSessionExpired,
			Severity:  datatypes.SeverityInfo,
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Detail:    "idle timeout",
		})
	}
}
