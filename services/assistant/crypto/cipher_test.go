// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	// NewFieldCipher wipes its input, so every test needs a fresh copy.
	return bytes.Repeat([]byte{0x42}, KeySize)
}

// TestRoundTrip verifies decrypt(encrypt(P)) == P for representative plaintexts.
func TestRoundTrip(t *testing.T) {
	fc, err := NewFieldCipher(testKey())
	require.NoError(t, err)

	plaintexts := []string{
		"the picker arm is stuck again",
		"Hola, ¿cómo puedo ayudar?",
		strings.Repeat("long message ", 1024),
		"", // empty string is a legal plaintext
	}
	for _, p := range plaintexts {
		ct, err := fc.Encrypt(p)
		require.NoError(t, err)

		got, err := fc.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

// TestCiphertextDiffersFromPlaintext verifies encrypt(P) != P.
func TestCiphertextDiffersFromPlaintext(t *testing.T) {
	fc, err := NewFieldCipher(testKey())
	require.NoError(t, err)

	p := "motor three is overheating"
	ct, err := fc.Encrypt(p)
	require.NoError(t, err)
	assert.NotEqual(t, p, ct)
	assert.NotContains(t, ct, p)
}

// TestEmptyPlaintextProducesCiphertext pins down the empty-string decision:
// "" is encrypted like any other value and its ciphertext is never empty.
func TestEmptyPlaintextProducesCiphertext(t *testing.T) {
	fc, err := NewFieldCipher(testKey())
	require.NoError(t, err)

	ct, err := fc.Encrypt("")
	require.NoError(t, err)
	assert.NotEmpty(t, ct)

	got, err := fc.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

// TestNonceFreshness verifies two encryptions of the same plaintext differ.
func TestNonceFreshness(t *testing.T) {
	fc, err := NewFieldCipher(testKey())
	require.NoError(t, err)

	p := "same message"
	ct1, err := fc.Encrypt(p)
	require.NoError(t, err)
	ct2, err := fc.Encrypt(p)
	require.NoError(t, err)
	assert.NotEqual(t, ct1, ct2)
}

func TestDecryptRejectsTamperedInput(t *testing.T) {
	fc, err := NewFieldCipher(testKey())
	require.NoError(t, err)

	ct, err := fc.Encrypt("do not touch")
	require.NoError(t, err)

	t.Run("bad base64", func(t *testing.T) {
		_, err := fc.Decrypt("%%%not-base64%%%")
		assert.ErrorIs(t, err, ErrEncryption)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := fc.Decrypt(ct[:8])
		assert.ErrorIs(t, err, ErrEncryption)
	})

	t.Run("flipped byte", func(t *testing.T) {
		raw := []byte(ct)
		raw[len(raw)-5] ^= 0x01
		_, err := fc.Decrypt(string(raw))
		assert.ErrorIs(t, err, ErrEncryption)
	})
}

func TestNewFieldCipherRejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := NewFieldCipher(bytes.Repeat([]byte{0x01}, n))
		assert.ErrorIs(t, err, ErrEncryption, "key length %d", n)
	}
}

func TestConcurrentUse(t *testing.T) {
	fc, err := NewFieldCipher(testKey())
	require.NoError(t, err)

	t.Run("ParallelEncryptDecrypt", func(t *testing.T) {
		t.Parallel()
		for i := 0; i < 50; i++ {
			t.Run("Worker", func(t *testing.T) {
				t.Parallel()
				ct, err := fc.Encrypt("concurrent payload")
				require.NoError(t, err)
				got, err := fc.Decrypt(ct)
				require.NoError(t, err)
				assert.Equal(t, "concurrent payload", got)
			})
		}
	})
}
