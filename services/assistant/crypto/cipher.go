// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crypto provides field-level encryption for message content at rest.
//
// Message bodies are encrypted with AES-256-GCM before they are written to
// any store. The key lives in a memguard enclave so the raw key material is
// mlocked, encrypted in memory, and only decrypted for the microseconds an
// actual cipher operation needs it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// ErrEncryption is the sentinel wrapped by all cipher failures. Callers
// treat it as fatal to the current operation: nothing partial is persisted.
var ErrEncryption = errors.New("field encryption failed")

// FieldCipher encrypts and decrypts individual message fields.
//
// # Thread Safety
//
// Safe for concurrent use. The enclave handles its own locking and each
// call derives a fresh GCM instance.
type FieldCipher struct {
	key *memguard.Enclave
}

// NewFieldCipher seals the given 32-byte key into an enclave.
//
// The input slice is wiped by memguard as a side effect, so callers must
// not reuse it. Returns an error for any other key length.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncryption, KeySize, len(key))
	}
	return &FieldCipher{key: memguard.NewEnclave(key)}, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce and
// returns base64(nonce || ciphertext || tag).
//
// Encrypting the same plaintext twice yields different outputs. The empty
// string is a legal plaintext: it still produces a non-empty ciphertext
// (nonce plus tag) and round-trips back to "".
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	gcm, buf, err := c.openGCM()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce generation: %v", ErrEncryption, err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or truncated input fails the GCM tag
// check and returns an error wrapping ErrEncryption.
func (c *FieldCipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64: %v", ErrEncryption, err)
	}

	gcm, buf, err := c.openGCM()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext shorter than nonce", ErrEncryption)
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return string(plaintext), nil
}

// openGCM opens the key enclave and builds a GCM instance.
// The caller owns the returned buffer and must Destroy it.
func (c *FieldCipher) openGCM() (cipher.AEAD, *memguard.LockedBuffer, error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: key enclave: %v", ErrEncryption, err)
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return gcm, buf, nil
}
