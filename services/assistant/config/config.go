// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the assistant service configuration.
//
// The environment is read exactly once, here. Every other package takes
// its settings as explicit constructor arguments, so configuration flow
// is visible in main and nothing else in the tree touches os.Getenv.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config aggregates all service settings.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Crypto  CryptoConfig
	LLM     LLMConfig
	Storage StorageConfig
	Audit   AuditConfig
	HTTP    HTTPConfig
	Tracing TracingConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `validate:"required"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	IdleTTL       time.Duration `validate:"required,min=1m"`
	Retention     time.Duration `validate:"required,min=1h"`
	SweepInterval time.Duration `validate:"required,min=1s"`
}

// CryptoConfig carries the message encryption key.
type CryptoConfig struct {
	// Key is the raw 32-byte AES key, decoded from base64.
	Key []byte `validate:"required,len=32"`
}

// LLMConfig describes the primary and fallback backends.
type LLMConfig struct {
	OpenAIAPIKey  string `validate:"required"`
	OpenAIModel   string `validate:"required"`
	OllamaBaseURL string
	OllamaModel   string
	MaxRetries    int           `validate:"min=1,max=10"`
	Timeout       time.Duration `validate:"required,min=1s"`
}

// StorageConfig describes the session store.
type StorageConfig struct {
	BadgerPath string `validate:"required"`
}

// AuditConfig describes the audit database.
type AuditConfig struct {
	DSN       string        `validate:"required"`
	Retention time.Duration `validate:"required,min=24h"`
}

// HTTPConfig describes cross-cutting HTTP behavior.
type HTTPConfig struct {
	AllowedOrigins []string
	RatePerSecond  float64 `validate:"gt=0"`
	RateBurst      int     `validate:"gt=0"`
}

// TracingConfig describes the OTLP exporter.
type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

var configValidate = validator.New()

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr: envOr("ASSISTANT_ADDR", ":8088"),
		},
		Session: SessionConfig{
			IdleTTL:       envDurationOr("ASSISTANT_SESSION_IDLE_TTL", 30*time.Minute),
			Retention:     envDurationOr("ASSISTANT_SESSION_RETENTION", 24*time.Hour),
			SweepInterval: envDurationOr("ASSISTANT_SWEEP_INTERVAL", time.Minute),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:  os.Getenv("ASSISTANT_OPENAI_API_KEY"),
			OpenAIModel:   envOr("ASSISTANT_OPENAI_MODEL", "gpt-4o-mini"),
			OllamaBaseURL: os.Getenv("ASSISTANT_OLLAMA_BASE_URL"),
			OllamaModel:   envOr("ASSISTANT_OLLAMA_MODEL", "llama3.1:8b"),
			MaxRetries:    envIntOr("ASSISTANT_LLM_MAX_RETRIES", 3),
			Timeout:       envDurationOr("ASSISTANT_LLM_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			BadgerPath: envOr("ASSISTANT_BADGER_PATH", "/var/lib/abparts/assistant/sessions"),
		},
		Audit: AuditConfig{
			DSN:       envOr("ASSISTANT_AUDIT_DSN", "/var/lib/abparts/assistant/audit.db"),
			Retention: envDurationOr("ASSISTANT_AUDIT_RETENTION", 365*24*time.Hour),
		},
		HTTP: HTTPConfig{
			AllowedOrigins: splitCSV(os.Getenv("ASSISTANT_ALLOWED_ORIGINS")),
			RatePerSecond:  envFloatOr("ASSISTANT_RATE_PER_SECOND", 5),
			RateBurst:      envIntOr("ASSISTANT_RATE_BURST", 10),
		},
		Tracing: TracingConfig{
			Enabled:  envBoolOr("ASSISTANT_TRACING_ENABLED", false),
			Endpoint: envOr("ASSISTANT_OTLP_ENDPOINT", "localhost:4317"),
		},
	}

	key, err := decodeKey(os.Getenv("ASSISTANT_ENCRYPTION_KEY"))
	if err != nil {
		return nil, err
	}
	cfg.Crypto.Key = key

	if err := configValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// decodeKey decodes the base64 encryption key and checks its length.
func decodeKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("ASSISTANT_ENCRYPTION_KEY is not set")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("ASSISTANT_ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ASSISTANT_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOr(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
