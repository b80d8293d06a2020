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
// This file contains request and response types for the chat endpoints.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Input Bounds
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Checked in bytes, not runes, to bound memory per request.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxLanguageTagLen bounds the BCP 47-ish language field.
	MaxLanguageTagLen = 16
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageContentBytes on a string field.
// Byte length (not rune count) so that multi-byte input cannot slip past
// the bound.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Request/Response Types
// =============================================================================

// ChatRequest is the body of POST /v1/chat.
//
// SessionID is optional: when absent, a new session is created for UserID
// and its id is returned in the response. Text is redacted and encrypted
// before it is stored or forwarded anywhere.
type ChatRequest struct {
	SessionID  string `json:"session_id" validate:"omitempty,uuid4"`
	UserID     string `json:"user_id" validate:"required,min=1,max=128"`
	Text       string `json:"text" validate:"required,maxbytes"`
	Language   string `json:"language" validate:"required,min=2,max=16"`
	MachineRef string `json:"machine_ref" validate:"omitempty,max=128"`
}

// Validate checks the request against its struct tags.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ChatResponse is the reply to POST /v1/chat.
//
// Degraded is true when the LLM backends were unavailable and Reply holds
// the canned fallback text; the user's message was still recorded.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// StatusUpdateRequest is the body of POST /v1/sessions/:sessionId/status.
type StatusUpdateRequest struct {
	Status SessionStatus `json:"status" validate:"required"`
}

// Validate checks the request against its struct tags.
func (r *StatusUpdateRequest) Validate() error {
	return chatValidate.Struct(r)
}

// HistoryResponse is the reply to GET /v1/sessions/:sessionId.
// Messages are decrypted before they leave the service.
type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Language  string        `json:"language"`
	Messages  []Message     `json:"messages"`
}

// ConsentRequest is the body of POST /v1/privacy/users/:userId/consent.
type ConsentRequest struct {
	ConsentType   string `json:"consent_type" validate:"required,min=1,max=64"`
	Status        string `json:"status" validate:"required,oneof=granted denied withdrawn pending"`
	PolicyVersion string `json:"policy_version" validate:"required,min=1,max=32"`
}

// Validate checks the request against its struct tags.
func (r *ConsentRequest) Validate() error {
	return chatValidate.Struct(r)
}
