// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session implements the conversation session store.
//
// Sessions live in BadgerDB as one JSON value per session id. Badger gives
// the two guarantees the store promises and nothing more: a single
// append/update is atomic (serialized at the key via transaction conflict
// detection), and entries vanish after the retention window via native TTL.
// Two concurrent appends to the same session may interleave in either
// order.
//
// Expiration is two-staged:
//
//   - Idle timeout (sliding): every successful write pushes ExpiresAt
//     forward by the configured TTL. A session past ExpiresAt is treated
//     as gone by reads and writes, and the Sweeper transitions it to
//     "abandoned".
//   - Retention window: the badger entry itself carries a TTL, after which
//     the record is destroyed outright.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/abparts/ai-assistant/services/assistant/datatypes"
	"github.com/abparts/ai-assistant/services/assistant/observability"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound is returned for a session id that is unknown, expired
	// past its idle timeout, or destroyed by retention. Callers must
	// recreate the session; nothing is created implicitly.
	ErrNotFound = errors.New("session not found or expired")

	// ErrInvalidTransition is returned for any status change the state
	// machine forbids, including transitions out of a terminal state.
	ErrInvalidTransition = errors.New("invalid session status transition")

	// ErrSessionClosed is returned when appending to a session that exists
	// but is no longer active (completed, escalated, or abandoned).
	ErrSessionClosed = errors.New("session is not active")
)

// maxTxnRetries bounds retries when two writers hit the same session key
// and badger aborts one transaction with ErrConflict.
const maxTxnRetries = 3

const keyPrefix = "session/"

// =============================================================================
// Store
// =============================================================================

// Options configures a Store.
type Options struct {
	// TTL is the sliding idle timeout. Every write refreshes it.
	TTL time.Duration

	// Retention is how long the badger entry survives at all, counted
	// from the last write. Must be >= TTL.
	Retention time.Duration
}

// DefaultOptions returns the production defaults: 30 minute idle timeout,
// 24 hour retention.
func DefaultOptions() Options {
	return Options{
		TTL:       30 * time.Minute,
		Retention: 24 * time.Hour,
	}
}

// Store holds per-conversation state keyed by session id.
//
// Safe for concurrent use; all mutation goes through badger transactions.
type Store struct {
	db   *badger.DB
	opts Options

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore creates a Store on top of an opened badger database.
func NewStore(db *badger.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	if opts.Retention < opts.TTL {
		return nil, errors.New("retention must be at least the session TTL")
	}
	return &Store{db: db, opts: opts, now: time.Now}, nil
}

func sessionKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// Create allocates a new active session and returns its id.
func (s *Store) Create(ctx context.Context, userID, language, machineRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := s.now()
	sess := datatypes.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		MachineRef: machineRef,
		Language:   language,
		Status:     datatypes.StatusActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.opts.TTL),
		Messages:   []datatypes.Message{},
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.writeSession(txn, &sess)
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if m := observability.DefaultMetrics; m != nil {
		m.ActiveSessions.Inc()
	}
	return sess.ID, nil
}

// Get returns the session for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sess *datatypes.Session
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		sess, err = s.readLive(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendMessage appends one message to the session.
//
// Fails with ErrNotFound if the session is absent or past its idle
// timeout, and with ErrSessionClosed if it is in a terminal state. A
// successful append refreshes the sliding expiration.
func (s *Store) AppendMessage(ctx context.Context, id string, msg datatypes.Message) error {
	return s.update(ctx, id, func(sess *datatypes.Session) error {
		if sess.Status != datatypes.StatusActive {
			return ErrSessionClosed
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = s.now()
		}
		sess.Messages = append(sess.Messages, msg)
		return nil
	})
}

// History returns the session's messages in insertion order. The slice is
// empty (never nil) for a session with no messages.
func (s *Store) History(ctx context.Context, id string) ([]datatypes.Message, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Messages == nil {
		return []datatypes.Message{}, nil
	}
	return sess.Messages, nil
}

// UpdateStatus applies one state-machine transition.
//
// Only active sessions transition anywhere; a transition out of a
// terminal state, or to an unknown status, fails with
// ErrInvalidTransition. A successful update refreshes the sliding
// expiration like any other write.
func (s *Store) UpdateStatus(ctx context.Context, id string, next datatypes.SessionStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	err := s.update(ctx, id, func(sess *datatypes.Session) error {
		if !sess.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, next)
		}
		sess.Status = next
		return nil
	})
	if err != nil {
		return err
	}
	// Every legal transition leaves the active state.
	if m := observability.DefaultMetrics; m != nil {
		m.ActiveSessions.Dec()
	}
	return nil
}

// Delete removes a session outright (user- or admin-initiated, not TTL).
// Returns ErrNotFound if there is nothing to delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wasActive := false
	err := s.db.Update(func(txn *badger.Txn) error {
		sess, err := s.readSession(txn, id)
		if err != nil {
			return err
		}
		wasActive = sess.Status == datatypes.StatusActive
		return txn.Delete(sessionKey(id))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if wasActive {
		if m := observability.DefaultMetrics; m != nil {
			m.ActiveSessions.Dec()
		}
	}
	return nil
}

// SessionsByUser returns every stored session owned by userID, expired or
// not. Used by the privacy export/erasure paths, which must see sessions
// the chat path already treats as gone.
func (s *Store) SessionsByUser(ctx context.Context, userID string) ([]datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []datatypes.Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sess datatypes.Session
				if err := json.Unmarshal(val, &sess); err != nil {
					return fmt.Errorf("decode session %s: %w", it.Item().Key(), err)
				}
				if sess.UserID == userID {
					out = append(out, sess)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByUser removes every session owned by userID and returns how many
// were deleted.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int, error) {
	sessions, err := s.SessionsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, sess := range sessions {
		if err := s.Delete(ctx, sess.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // raced with retention expiry
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// sweepExpired transitions every active session past its idle timeout to
// abandoned and returns the affected sessions. Called by the Sweeper.
func (s *Store) sweepExpired(ctx context.Context) ([]datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var candidates []string
	now := s.now()
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sess datatypes.Session
				if err := json.Unmarshal(val, &sess); err != nil {
					return nil // skip undecodable entries, GC will reclaim them
				}
				if sess.Status == datatypes.StatusActive && now.After(sess.ExpiresAt) {
					candidates = append(candidates, sess.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var swept []datatypes.Session
	for _, id := range candidates {
		// Expired sessions are invisible to readLive, so the transition
		// reads the raw entry.
		var abandoned *datatypes.Session
		err := s.db.Update(func(txn *badger.Txn) error {
			sess, err := s.readSession(txn, id)
			if err != nil {
				return err
			}
			if sess.Status != datatypes.StatusActive || !now.After(sess.ExpiresAt) {
				return errSkipWrite // raced with a concurrent write
			}
			sess.Status = datatypes.StatusAbandoned
			if err := s.writeSession(txn, sess); err != nil {
				return err
			}
			abandoned = sess
			return nil
		})
		if err != nil && !errors.Is(err, errSkipWrite) && !errors.Is(err, ErrNotFound) {
			return swept, err
		}
		if abandoned != nil {
			swept = append(swept, *abandoned)
		}
	}
	if len(swept) > 0 {
		if m := observability.DefaultMetrics; m != nil {
			m.SessionsSweptTotal.Add(float64(len(swept)))
			m.ActiveSessions.Sub(float64(len(swept)))
		}
	}
	return swept, nil
}

// =============================================================================
// Internals
// =============================================================================

// errSkipWrite aborts an update callback without treating it as a failure.
var errSkipWrite = errors.New("skip write")

// update runs fn against the live session under a read-modify-write
// transaction, refreshing the sliding expiration on success. Conflicting
// concurrent writers are retried a bounded number of times.
func (s *Store) update(ctx context.Context, id string, fn func(*datatypes.Session) error) error {
	err := s.updateRaw(ctx, id, fn)
	if errors.Is(err, errSkipWrite) {
		return nil
	}
	return err
}

func (s *Store) updateRaw(ctx context.Context, id string, fn func(*datatypes.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		lastErr = s.db.Update(func(txn *badger.Txn) error {
			sess, err := s.readLive(txn, id)
			if err != nil {
				return err
			}
			if err := fn(sess); err != nil {
				return err
			}
			return s.writeSession(txn, sess)
		})
		if !errors.Is(lastErr, badger.ErrConflict) {
			return lastErr
		}
	}
	return fmt.Errorf("session %s: too many write conflicts: %w", id, lastErr)
}

// readSession loads the raw stored session without the idle-timeout check.
func (s *Store) readSession(txn *badger.Txn, id string) (*datatypes.Session, error) {
	item, err := txn.Get(sessionKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var sess datatypes.Session
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &sess)
	})
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// readLive loads a session and applies the idle-timeout check: an active
// session past ExpiresAt is reported as ErrNotFound even though the
// retention TTL has not destroyed the entry yet.
func (s *Store) readLive(txn *badger.Txn, id string) (*datatypes.Session, error) {
	sess, err := s.readSession(txn, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == datatypes.StatusActive && s.now().After(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// writeSession refreshes the sliding expiration and persists the session
// with the retention TTL on the badger entry.
func (s *Store) writeSession(txn *badger.Txn, sess *datatypes.Session) error {
	sess.ExpiresAt = s.now().Add(s.opts.TTL)
	val, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	entry := badger.NewEntry(sessionKey(sess.ID), val).WithTTL(s.opts.Retention)
	return txn.SetEntry(entry)
}
