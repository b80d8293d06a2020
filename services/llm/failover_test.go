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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns one scripted result per call, then repeats the
// last one.
type scriptedClient struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedClient) Chat(_ context.Context, _ []Message, _ GenerationParams) (string, error) {
	i := s.calls
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	s.calls++
	if s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.replies[i], nil
}

func transient(msg string) error {
	return &TransientError{Err: errors.New(msg)}
}

func newTestFailover(t *testing.T, primary, fallback LLMClient) *FailoverClient {
	t.Helper()
	fc, err := NewFailoverClient(primary, fallback, 3, nil)
	require.NoError(t, err)
	fc.sleep = func(_ context.Context, _ time.Duration) error { return nil }
	return fc
}

func TestFailoverPrimarySucceeds(t *testing.T) {
	primary := &scriptedClient{replies: []string{"ok"}, errs: []error{nil}}
	fallback := &scriptedClient{replies: []string{"never"}, errs: []error{nil}}
	fc := newTestFailover(t, primary, fallback)

	reply, err := fc.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestFailoverRetriesTransientThenSucceeds(t *testing.T) {
	primary := &scriptedClient{
		replies: []string{"", "", "recovered"},
		errs:    []error{transient("503"), transient("timeout"), nil},
	}
	fallback := &scriptedClient{replies: []string{"never"}, errs: []error{nil}}
	fc := newTestFailover(t, primary, fallback)

	reply, err := fc.Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestFailoverFallsBackAfterExhaustion(t *testing.T) {
	primary := &scriptedClient{replies: []string{""}, errs: []error{transient("down")}}
	fallback := &scriptedClient{replies: []string{"from fallback"}, errs: []error{nil}}
	fc := newTestFailover(t, primary, fallback)

	reply, err := fc.Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", reply)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

// TestFailoverHookFiresOnlyOnFallbackSuccess verifies the OnFallback hook
// fires exactly when the fallback answers a turn.
func TestFailoverHookFiresOnlyOnFallbackSuccess(t *testing.T) {
	primary := &scriptedClient{replies: []string{""}, errs: []error{transient("down")}}
	fallback := &scriptedClient{replies: []string{"from fallback"}, errs: []error{nil}}
	fc := newTestFailover(t, primary, fallback)

	fired := 0
	fc.OnFallback = func() { fired++ }

	_, err := fc.Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	// A healthy primary never touches the hook.
	healthy := &scriptedClient{replies: []string{"ok"}, errs: []error{nil}}
	fc = newTestFailover(t, healthy, fallback)
	fc.OnFallback = func() { fired++ }
	_, err = fc.Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	// Neither does a fallback that fails too.
	deadPrimary := &scriptedClient{replies: []string{""}, errs: []error{transient("down")}}
	deadFallback := &scriptedClient{replies: []string{""}, errs: []error{transient("also down")}}
	fc = newTestFailover(t, deadPrimary, deadFallback)
	fc.OnFallback = func() { fired++ }
	_, err = fc.Chat(context.Background(), nil, GenerationParams{})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 1, fired)
}

func TestFailoverBothFail(t *testing.T) {
	primary := &scriptedClient{replies: []string{""}, errs: []error{transient("down")}}
	fallback := &scriptedClient{replies: []string{""}, errs: []error{transient("also down")}}
	fc := newTestFailover(t, primary, fallback)

	_, err := fc.Chat(context.Background(), nil, GenerationParams{})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

// TestFailoverPermanentErrorFailsFast verifies non-transient errors are
// not retried and never reach the fallback.
func TestFailoverPermanentErrorFailsFast(t *testing.T) {
	permanent := errors.New("invalid request")
	primary := &scriptedClient{replies: []string{""}, errs: []error{permanent}}
	fallback := &scriptedClient{replies: []string{"never"}, errs: []error{nil}}
	fc := newTestFailover(t, primary, fallback)

	_, err := fc.Chat(context.Background(), nil, GenerationParams{})
	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestFailoverNoFallbackConfigured(t *testing.T) {
	primary := &scriptedClient{replies: []string{""}, errs: []error{transient("down")}}
	fc := newTestFailover(t, primary, nil)

	_, err := fc.Chat(context.Background(), nil, GenerationParams{})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 3, primary.calls)
}

func TestFailoverContextCancelledDuringBackoff(t *testing.T) {
	primary := &scriptedClient{replies: []string{""}, errs: []error{transient("down")}}
	fallback := &scriptedClient{replies: []string{"never"}, errs: []error{nil}}
	fc, err := NewFailoverClient(primary, fallback, 3, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = fc.Chat(ctx, nil, GenerationParams{})
	assert.ErrorIs(t, err, context.Canceled)
	// The first attempt has no backoff; the cancellation lands before the
	// second one.
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

// TestGenerateReplyPrependsSystemPrompt verifies the deterministic system
// prompt carries the requested reply language.
func TestGenerateReplyPrependsSystemPrompt(t *testing.T) {
	var captured []Message
	primary := capturingClient{out: "Hola", captured: &captured}
	fc := newTestFailover(t, primary, nil)

	history := []Message{
		{Role: RoleUser, Content: "Hola, mi máquina no arranca"},
	}
	reply, err := fc.GenerateReply(context.Background(), history, "es")
	require.NoError(t, err)
	assert.Equal(t, "Hola", reply)

	require.Len(t, captured, 2)
	assert.Equal(t, RoleSystem, captured[0].Role)
	assert.Contains(t, captured[0].Content, `"es"`)
	assert.True(t, strings.Contains(captured[0].Content, "ABParts"))
	assert.Equal(t, history[0], captured[1])
}

type capturingClient struct {
	out      string
	captured *[]Message
}

func (c capturingClient) Chat(_ context.Context, messages []Message, _ GenerationParams) (string, error) {
	*c.captured = append([]Message(nil), messages...)
	return c.out, nil
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(transient("x")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("bad model name")))
	assert.False(t, IsTransient(nil))
}
