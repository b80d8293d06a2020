// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides clients for chat-completion backends and the
// failover policy the assistant uses on top of them.
package llm

import (
	"context"
	"errors"
)

// Message roles, matching the OpenAI-style chat convention every backend
// here speaks.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation as sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// ErrUpstreamUnavailable is returned by the failover client when the
// primary backend's retries are exhausted and the fallback also failed.
var ErrUpstreamUnavailable = errors.New("all LLM backends unavailable")

// TransientError marks a backend failure worth retrying: timeouts, rate
// limits, and 5xx responses. Anything not wrapped in a TransientError is
// treated as permanent and fails the call immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient upstream error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable. Context deadline overruns
// count as transient: the request may succeed on a fresh attempt.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
