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
	"log/slog"
	"time"
)

// RetentionLoop periodically purges audit events older than the retention
// window.
type RetentionLoop struct {
	recorder  *Recorder
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRetentionLoop builds the purge loop. A sweep runs once per interval;
// events older than retention are deleted.
func NewRetentionLoop(recorder *Recorder, retention, interval time.Duration, logger *slog.Logger) *RetentionLoop {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionLoop{
		recorder:  recorder,
		retention: retention,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins purging in a background goroutine.
func (l *RetentionLoop) Start() {
	go l.run()
}

// Stop signals the goroutine to stop and waits for it to finish.
func (l *RetentionLoop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *RetentionLoop) run() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.purge()
		}
	}
}

func (l *RetentionLoop) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-l.retention)
	purged, err := l.recorder.PurgeBefore(ctx, cutoff)
	if err != nil {
		l.logger.Warn("audit retention purge failed", "error", err)
		return
	}
	if purged > 0 {
		l.logger.Info("purged expired audit events", "count", purged, "cutoff", cutoff)
	}
}
