// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the conversation session model. Request and response
// types for the HTTP surface live in chat.go; audit and consent records
// live in audit.go.
package datatypes

import "time"

// =============================================================================
// Session Status
// =============================================================================

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	// StatusActive is the only state that accepts new messages.
	StatusActive SessionStatus = "active"

	// StatusCompleted marks a conversation the operator finished normally.
	StatusCompleted SessionStatus = "completed"

	// StatusEscalated marks a conversation handed off to a human technician.
	StatusEscalated SessionStatus = "escalated"

	// StatusAbandoned marks a conversation closed by the expiration sweeper.
	StatusAbandoned SessionStatus = "abandoned"
)

// Valid reports whether s is one of the four known states.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusEscalated, StatusAbandoned:
		return true
	}
	return false
}

// CanTransitionTo implements the session state machine. The only legal
// transitions are out of StatusActive; the three terminal states accept
// nothing, including a transition back to active.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s != StatusActive {
		return false
	}
	switch next {
	case StatusCompleted, StatusEscalated, StatusAbandoned:
		return true
	}
	return false
}

// =============================================================================
// Session and Message Models
// =============================================================================

// Session is the per-conversation state held by the session store.
//
// Sessions are owned exclusively by the store and mutated only through
// append/update operations scoped to the session id. ExpiresAt is refreshed
// on every write (sliding expiration).
type Session struct {
	ID         string        `json:"session_id"`
	UserID     string        `json:"user_id"`
	MachineRef string        `json:"machine_ref,omitempty"`
	Language   string        `json:"language"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	Messages   []Message     `json:"messages"`
}

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one turn of a conversation.
//
// Messages are immutable once written: the store only ever appends, and
// insertion order is the conversation order. Content holds ciphertext
// whenever IsEncrypted is true.
type Message struct {
	ID          string    `json:"message_id"`
	Sender      Sender    `json:"sender"`
	Content     string    `json:"content"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	IsEncrypted bool      `json:"is_encrypted"`
}
