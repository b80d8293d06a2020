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
	"database/sql"
	"errors"
	"fmt"

	"github.com/abparts/ai-assistant/services/assistant/datatypes"
)

// ErrConsentNotFound is returned when no record exists for a
// (user, consent type) pair.
var ErrConsentNotFound = errors.New("consent record not found")

// SetConsent upserts the current consent state for one (user, type) pair.
// A newer decision supersedes the old one in place; history lives in the
// audit trail, which the caller appends to separately.
func (r *Recorder) SetConsent(ctx context.Context, record datatypes.ConsentRecord) error {
	if record.UserID == "" || record.ConsentType == "" {
		return fmt.Errorf("consent record requires user_id and consent_type")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = r.now().UTC()
	}

	const query = `
		INSERT INTO consent_records (user_id, consent_type, status, policy_version, updated_at)
		VALUES (:user_id, :consent_type, :status, :policy_version, :updated_at)
		ON CONFLICT (user_id, consent_type) DO UPDATE SET
			status = excluded.status,
			policy_version = excluded.policy_version,
			updated_at = excluded.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to upsert consent record: %w", err)
	}
	return nil
}

// GetConsent returns the current record for one (user, type) pair.
func (r *Recorder) GetConsent(ctx context.Context, userID, consentType string) (datatypes.ConsentRecord, error) {
	var record datatypes.ConsentRecord
	const query = `
		SELECT user_id, consent_type, status, policy_version, updated_at
		FROM consent_records
		WHERE user_id = ? AND consent_type = ?`
	err := r.db.GetContext(ctx, &record, query, userID, consentType)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.ConsentRecord{}, ErrConsentNotFound
	}
	if err != nil {
		return datatypes.ConsentRecord{}, fmt.Errorf("failed to query consent record: %w", err)
	}
	return record, nil
}

// ConsentsByUser returns all current consent records for a user.
func (r *Recorder) ConsentsByUser(ctx context.Context, userID string) ([]datatypes.ConsentRecord, error) {
	records := []datatypes.ConsentRecord{}
	const query = `
		SELECT user_id, consent_type, status, policy_version, updated_at
		FROM consent_records
		WHERE user_id = ?
		ORDER BY consent_type ASC`
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("failed to query user consents: %w", err)
	}
	return records, nil
}

// DeleteUserConsents removes all consent records for a user as part of
// privacy erasure.
func (r *Recorder) DeleteUserConsents(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM consent_records WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user consents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted consents: %w", err)
	}
	return n, nil
}
