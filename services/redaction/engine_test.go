// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package redaction

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	// Initialize the engine once (it's fast!)
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to initialize engine: %v", err)
	}

	tests := []struct {
		name          string
		input         string
		shouldFind    bool
		expectedClass string
		placeholder   string
		mustNotRemain string
	}{
		{
			name:       "Safe String",
			input:      "The conveyor belt keeps jamming near the intake roller.",
			shouldFind: false,
		},
		{
			name:          "Email Address",
			input:         "Please contact jdoe@example.com for support.",
			shouldFind:    true,
			expectedClass: "email",
			placeholder:   "[EMAIL]",
			mustNotRemain: "jdoe@example.com",
		},
		{
			name:          "Phone Number",
			input:         "Call me at +31 20 555 0199 when the machine is back up.",
			shouldFind:    true,
			expectedClass: "phone",
			placeholder:   "[PHONE]",
			mustNotRemain: "555 0199",
		},
		{
			name:          "Card Number",
			input:         "Charged to 4111 1111 1111 1111 yesterday.",
			shouldFind:    true,
			expectedClass: "card_number",
			placeholder:   "[CARD]",
			mustNotRemain: "4111 1111 1111 1111",
		},
		{
			name:          "IPv4 Address",
			input:         "The PLC at 192.168.4.17 stopped responding.",
			shouldFind:    true,
			expectedClass: "ip_address",
			placeholder:   "[IP]",
			mustNotRemain: "192.168.4.17",
		},
		{
			name:          "AWS Access Key",
			input:         "My aws key is AKIA1234567890123456 for the prod account.",
			shouldFind:    true,
			expectedClass: "credential",
			placeholder:   "[CREDENTIAL]",
			mustNotRemain: "AKIA1234567890123456",
		},
		{
			name:          "Bearer Token",
			input:         "Header was bearer abcdefghijklmnopqrstuvwxyz123456 apparently.",
			shouldFind:    true,
			expectedClass: "credential",
			placeholder:   "[CREDENTIAL]",
			mustNotRemain: "abcdefghijklmnopqrstuvwxyz123456",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clean, findings := engine.Redact(tc.input)

			if tc.shouldFind {
				if len(findings) == 0 {
					t.Fatalf("Expected findings for %q but got none. Output: %q", tc.input, clean)
				}
				first := findings[0]
				if first.ClassificationName != tc.expectedClass {
					t.Errorf("Expected classification '%s', got '%s'", tc.expectedClass, first.ClassificationName)
				}
				if !strings.Contains(clean, tc.placeholder) {
					t.Errorf("Expected placeholder %s in output, got: %q", tc.placeholder, clean)
				}
				if strings.Contains(clean, tc.mustNotRemain) {
					t.Errorf("Sensitive substring %q survived redaction: %q", tc.mustNotRemain, clean)
				}
			} else {
				if len(findings) > 0 {
					t.Errorf("Expected 0 findings, got %d. First match: %s", len(findings), findings[0].PatternId)
				}
				if clean != tc.input {
					t.Errorf("Safe input was modified: %q -> %q", tc.input, clean)
				}
			}
		})
	}
}

func TestRedact_EveryOccurrenceReplaced(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}

	input := "Mail a@example.com and b@example.org, then mail a@example.com again."
	clean, findings := engine.Redact(input)

	if strings.Contains(clean, "example.com") || strings.Contains(clean, "example.org") {
		t.Errorf("Original address survived redaction: %q", clean)
	}
	if got := strings.Count(clean, "[EMAIL]"); got != 3 {
		t.Errorf("Expected 3 placeholders, got %d in %q", got, clean)
	}

	total := 0
	for _, f := range findings {
		if f.ClassificationName == "email" {
			total += f.Count
		}
	}
	if total != 3 {
		t.Errorf("Expected finding count 3, got %d", total)
	}
}

func TestRedact_AlphabeticOnlyIsUntouched(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}

	inputs := []string{
		"the net feeder is stuck",
		"please escalate this to maintenance",
		"la bomba hidraulica pierde aceite",
	}
	for _, input := range inputs {
		clean, findings := engine.Redact(input)
		if len(findings) != 0 {
			t.Errorf("Expected no findings for %q, got %d (%s)", input, len(findings), findings[0].PatternId)
		}
		if clean != input {
			t.Errorf("Alphabetic input was modified: %q -> %q", input, clean)
		}
	}
}

func TestRedact_FindingsCarryNoContent(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}

	secret := "AKIA1234567890123456"
	_, findings := engine.Redact("key " + secret)
	for _, f := range findings {
		if strings.Contains(f.PatternId, secret) || strings.Contains(f.Placeholder, secret) {
			t.Errorf("Finding leaked matched content: %+v", f)
		}
	}
}

func TestEngineInitializationProperties(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}

	if len(engine.Classifiers) < 2 {
		t.Fatal("Not enough classifiers loaded to test sorting.")
	}

	first := engine.Classifiers[0]
	last := engine.Classifiers[len(engine.Classifiers)-1]
	if first.Priority < last.Priority {
		t.Errorf("Classifiers are not sorted by priority! First: %d, Last: %d", first.Priority, last.Priority)
	}

	for _, c := range engine.Classifiers {
		if c.Placeholder == "" {
			t.Errorf("Classifier %q has no placeholder", c.Name)
		}
	}
}

func TestEngine_Concurrency(t *testing.T) {
	engine, _ := NewEngine()
	input := "My fake key is AKIA1234567890123456"

	// Simulate 100 concurrent redactions
	t.Run("ParallelRedaction", func(t *testing.T) {
		t.Parallel()
		for i := 0; i < 100; i++ {
			t.Run("Worker", func(t *testing.T) {
				t.Parallel()
				clean, findings := engine.Redact(input)
				if len(findings) == 0 || strings.Contains(clean, "AKIA") {
					t.Error("Concurrent redaction failed to scrub secret")
				}
			})
		}
	})
}

func BenchmarkRedactSafeString(b *testing.B) {
	engine, _ := NewEngine()
	input := "This is a standard operator message with no sensitive data in it whatsoever."
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Redact(input)
	}
}

func BenchmarkRedactSensitiveString(b *testing.B) {
	engine, _ := NewEngine()
	input := "Reach me at jdoe@example.com or +1 415 555 0100 about machine seven."
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Redact(input)
	}
}
