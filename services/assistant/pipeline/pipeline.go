// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline wires one chat turn end to end: redact, encrypt, store,
// generate, store again. Redaction happens before encryption and before
// anything touches storage or a model, so raw identifiers never leave this
// package.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/abparts/ai-assistant/services/assistant/crypto"
	"github.com/abparts/ai-assistant/services/assistant/datatypes"
	"github.com/abparts/ai-assistant/services/assistant/observability"
	"github.com/abparts/ai-assistant/services/assistant/session"
	"github.com/abparts/ai-assistant/services/llm"
	"github.com/abparts/ai-assistant/services/redaction"
)

// ReplyGenerator is the model surface the pipeline needs; the failover
// client implements it.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []llm.Message, language string) (string, error)
}

// Pipeline handles one chat turn: session resolution, redaction, field
// encryption, history assembly, reply generation, and audit.
type Pipeline struct {
	sessions *session.Store
	redactor *redaction.Engine
	cipher   *crypto.FieldCipher
	model    ReplyGenerator
	recorder session.EventRecorder
	logger   *slog.Logger
}

func New(sessions *session.Store, redactor *redaction.Engine, cipher *crypto.FieldCipher,
	model ReplyGenerator, recorder session.EventRecorder, logger *slog.Logger) (*Pipeline, error) {

	if sessions == nil || redactor == nil || cipher == nil || model == nil {
		return nil, fmt.Errorf("pipeline requires sessions, redactor, cipher, and model")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		sessions: sessions,
		redactor: redactor,
		cipher:   cipher,
		model:    model,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// HandleIncoming processes one user message and returns the assistant's
// reply.
//
// The user's message is redacted, encrypted, and persisted before any
// model call; a model outage therefore never loses the operator's words.
// When every backend is down the turn completes in degraded mode with a
// canned reply and Degraded set. Plaintext in the response is the only
// unencrypted copy of the reply that leaves the process.
func (p *Pipeline) HandleIncoming(ctx context.Context, req datatypes.ChatRequest) (datatypes.ChatResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		id, err := p.sessions.Create(ctx, req.UserID, req.Language, req.MachineRef)
		if err != nil {
			return datatypes.ChatResponse{}, fmt.Errorf("failed to create session: %w", err)
		}
		sessionID = id
		p.record(ctx, datatypes.AuditEvent{
			EventType: datatypes.EventSessionCreated,
			SessionID: sessionID,
			UserID:    req.UserID,
		})
	}

	// Redact before anything else sees the text.
	redacted, findings := p.redactor.Redact(req.Text)
	if len(findings) > 0 {
		if m := observability.DefaultMetrics; m != nil {
			for _, f := range findings {
				m.RecordRedactions(f.ClassificationName, f.Count)
			}
		}
		p.record(ctx, datatypes.AuditEvent{
			EventType: datatypes.EventRedactionApplied,
			SessionID: sessionID,
			UserID:    req.UserID,
			Detail:    redactionDetail(findings),
		})
	}

	userMsg, err := p.storeMessage(ctx, sessionID, datatypes.SenderUser, redacted, req.Language)
	if err != nil {
		return datatypes.ChatResponse{}, err
	}
	p.record(ctx, datatypes.AuditEvent{
		EventType: datatypes.EventMessageSent,
		SessionID: sessionID,
		MessageID: userMsg.ID,
		UserID:    req.UserID,
	})

	history, err := p.decryptedHistory(ctx, sessionID)
	if err != nil {
		return datatypes.ChatResponse{}, err
	}

	reply, err := p.model.GenerateReply(ctx, history, req.Language)
	if err != nil {
		if !errors.Is(err, llm.ErrUpstreamUnavailable) {
			return datatypes.ChatResponse{}, fmt.Errorf("reply generation failed: %w", err)
		}
		// Degraded mode: the user's message is already persisted, but the
		// canned reply is not a conversation turn. It never enters the
		// history, so the model never sees its own outage text later.
		p.logger.Warn("all LLM backends unavailable, serving degraded reply",
			"session_id", sessionID, "error", err)
		p.record(ctx, datatypes.AuditEvent{
			EventType: datatypes.EventReplyDegraded,
			Severity:  datatypes.SeverityWarning,
			SessionID: sessionID,
			UserID:    req.UserID,
			Detail:    "upstream unavailable",
		})
		return datatypes.ChatResponse{SessionID: sessionID, Reply: degradedReply(req.Language), Degraded: true}, nil
	}

	assistantMsg, err := p.storeMessage(ctx, sessionID, datatypes.SenderAssistant, reply, req.Language)
	if err != nil {
		return datatypes.ChatResponse{}, err
	}
	p.record(ctx, datatypes.AuditEvent{
		EventType: datatypes.EventReplyGenerated,
		SessionID: sessionID,
		MessageID: assistantMsg.ID,
		UserID:    req.UserID,
	})

	return datatypes.ChatResponse{SessionID: sessionID, Reply: reply}, nil
}

// History returns a session's messages with content decrypted for the
// caller. Storage order is preserved.
func (p *Pipeline) History(ctx context.Context, sessionID string) ([]datatypes.Message, error) {
	messages, err := p.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]datatypes.Message, 0, len(messages))
	for _, msg := range messages {
		plain, err := p.decryptContent(msg)
		if err != nil {
			return nil, err
		}
		msg.Content = plain
		msg.IsEncrypted = false
		out = append(out, msg)
	}
	return out, nil
}

// storeMessage encrypts content and appends it to the session, returning
// the stored message with its assigned ID.
func (p *Pipeline) storeMessage(ctx context.Context, sessionID string,
	sender datatypes.Sender, content, language string) (datatypes.Message, error) {

	ciphertext, err := p.cipher.Encrypt(content)
	if err != nil {
		return datatypes.Message{}, fmt.Errorf("failed to encrypt message: %w", err)
	}
	msg := datatypes.Message{
		ID:          uuid.NewString(),
		Sender:      sender,
		Content:     ciphertext,
		Language:    language,
		IsEncrypted: true,
	}
	if err := p.sessions.AppendMessage(ctx, sessionID, msg); err != nil {
		return datatypes.Message{}, err
	}
	return msg, nil
}

// decryptedHistory loads the session history as model messages.
func (p *Pipeline) decryptedHistory(ctx context.Context, sessionID string) ([]llm.Message, error) {
	messages, err := p.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		plain, err := p.decryptContent(msg)
		if err != nil {
			return nil, err
		}
		role := llm.RoleUser
		if msg.Sender == datatypes.SenderAssistant {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: plain})
	}
	return history, nil
}

func (p *Pipeline) decryptContent(msg datatypes.Message) (string, error) {
	if !msg.IsEncrypted {
		return msg.Content, nil
	}
	plain, err := p.cipher.Decrypt(msg.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt message %s: %w", msg.ID, err)
	}
	return plain, nil
}

func (p *Pipeline) record(ctx context.Context, event datatypes.AuditEvent) {
	if p.recorder == nil {
		return
	}
	p.recorder.Record(ctx, event)
}

func redactionDetail(findings []redaction.Finding) string {
	total := 0
	for _, f := range findings {
		total += f.Count
	}
	return fmt.Sprintf("classifications=%d matches=%d", len(findings), total)
}

// degradedReply is the canned answer served when every backend is down.
// Kept per-language for the markets ABParts operates in.
func degradedReply(language string) string {
	switch language {
	case "es":
		return "El asistente no está disponible en este momento. Su mensaje ha sido guardado; por favor, inténtelo de nuevo en unos minutos o contacte con el soporte de ABParts."
	case "el":
		return "Ο βοηθός δεν είναι διαθέσιμος αυτή τη στιγμή. Το μήνυμά σας έχει αποθηκευτεί. Δοκιμάστε ξανά σε λίγα λεπτά ή επικοινωνήστε με την υποστήριξη της ABParts."
	case "pt":
		return "O assistente está indisponível neste momento. A sua mensagem foi guardada; tente novamente dentro de alguns minutos ou contacte o suporte da ABParts."
	default:
		return "The assistant is temporarily unavailable. Your message has been saved; please try again in a few minutes or contact ABParts support."
	}
}
