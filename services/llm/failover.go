// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultMaxRetries  = 3
	defaultBaseBackoff = 250 * time.Millisecond
)

// FailoverClient wraps a primary and a fallback backend. Transient primary
// failures are retried with exponential backoff; when retries are exhausted
// the fallback gets exactly one attempt. Non-transient errors fail fast
// without touching the fallback.
type FailoverClient struct {
	primary     LLMClient
	fallback    LLMClient
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger

	// OnFallback, when set, is called once for every turn the fallback
	// backend answers. The service wires a metrics counter here.
	OnFallback func()

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFailoverClient builds the failover policy around two backends.
// fallback may be nil when only one backend is configured.
func NewFailoverClient(primary, fallback LLMClient, maxRetries int, logger *slog.Logger) (*FailoverClient, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary LLM client is nil")
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverClient{
		primary:     primary,
		fallback:    fallback,
		maxRetries:  maxRetries,
		baseBackoff: defaultBaseBackoff,
		logger:      logger,
		sleep:       sleepCtx,
	}, nil
}

// Chat implements the LLMClient interface with the failover policy applied.
func (f *FailoverClient) Chat(ctx context.Context, messages []Message,
	params GenerationParams) (string, error) {

	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			// 250ms, 500ms, 1s, ... doubling per attempt.
			backoff := f.baseBackoff << (attempt - 1)
			if err := f.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}

		reply, err := f.primary.Chat(ctx, messages, params)
		if err == nil {
			return reply, nil
		}
		if !IsTransient(err) {
			return "", err
		}
		lastErr = err
		f.logger.Warn("primary LLM attempt failed",
			"attempt", attempt+1, "max_retries", f.maxRetries, "error", err)
	}

	if f.fallback == nil {
		return "", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, lastErr)
	}

	f.logger.Warn("primary LLM exhausted retries, trying fallback", "error", lastErr)
	reply, err := f.fallback.Chat(ctx, messages, params)
	if err != nil {
		f.logger.Error("fallback LLM failed", "error", err)
		return "", fmt.Errorf("%w: primary: %w; fallback: %w",
			ErrUpstreamUnavailable, lastErr, err)
	}
	if f.OnFallback != nil {
		f.OnFallback()
	}
	return reply, nil
}

// GenerateReply builds the support-assistant prompt around the conversation
// history and runs it through the failover policy. language is the BCP 47
// tag the reply must be written in.
func (f *FailoverClient) GenerateReply(ctx context.Context, history []Message,
	language string) (string, error) {

	if language == "" {
		language = "en"
	}
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{
		Role:    RoleSystem,
		Content: systemPrompt(language),
	})
	messages = append(messages, history...)

	return f.Chat(ctx, messages, GenerationParams{})
}

func systemPrompt(language string) string {
	return fmt.Sprintf(
		"You are the ABParts support assistant. You help warehouse operators "+
			"with AutoBoss machine issues, part orders, and order status questions. "+
			"Answer concisely and only about ABParts topics. If the operator "+
			"describes a safety-critical problem, tell them to stop the machine "+
			"and contact their supervisor. Reply in the language with BCP 47 tag %q.",
		language)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ LLMClient = (*FailoverClient)(nil)
