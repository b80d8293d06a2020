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
	"fmt"

	"github.com/abparts/ai-assistant/services/redaction/enforcement"
	"gopkg.in/yaml.v3"
)

// Engine serves as the main entry point for sensitive-data redaction.
// It holds the compiled pattern set and provides methods to scrub text
// before it is stored or forwarded to an LLM backend.
type Engine struct {
	Classifiers []Classification
}

// NewEngine initializes a new redaction Engine.
//
// It takes no arguments: the pattern definitions are embedded in the binary
// via the enforcement package, so the rules are immutable at runtime and
// travel with the executable.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Compiles all regex patterns.
// 3. Sorts classifications by priority.
//
// Returns an error if the embedded YAML is malformed or contains invalid regex.
func NewEngine() (*Engine, error) {
	var patternFile PatternFile
	if err := yaml.Unmarshal(enforcement.SensitiveDataPatterns, &patternFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded pattern file: %w", err)
	}

	if err := patternFile.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a regex %w", err)
	}

	// Higher-priority classes run first so that, for example, a card number
	// is consumed by the card pattern before the looser phone pattern sees it.
	patternFile.SortByPriority()

	return &Engine{Classifiers: patternFile.Classifications}, nil
}

// Redact replaces every sensitive match in content with the type-tagged
// placeholder of its classification.
//
// The replacement is performed in priority order and each substitution is
// applied to the already-scrubbed text, so a region claimed by a
// higher-priority class is never re-matched by a lower-priority one.
//
// The returned findings report what was removed (class, pattern id, count)
// but never the matched content itself.
func (e *Engine) Redact(content string) (string, []Finding) {
	var findings []Finding
	result := content
	for _, classifier := range e.Classifiers {
		for _, pattern := range classifier.Patterns {
			matches := pattern.compiledPattern.FindAllStringIndex(result, -1)
			if len(matches) == 0 {
				continue
			}
			result = pattern.compiledPattern.ReplaceAllString(result, classifier.Placeholder)
			findings = append(findings, Finding{
				ClassificationName: classifier.Name,
				PatternId:          pattern.Id,
				Placeholder:        classifier.Placeholder,
				Confidence:         pattern.Confidence,
				Count:              len(matches),
			})
		}
	}
	return result, findings
}

// Scan reports which patterns match content without modifying it.
//
// This is the audit-side counterpart of Redact: handlers use it to decide
// severity for audit events without touching the message body.
func (e *Engine) Scan(content string) []Finding {
	var findings []Finding
	for _, classifier := range e.Classifiers {
		for _, pattern := range classifier.Patterns {
			matches := pattern.compiledPattern.FindAllStringIndex(content, -1)
			if len(matches) == 0 {
				continue
			}
			findings = append(findings, Finding{
				ClassificationName: classifier.Name,
				PatternId:          pattern.Id,
				Placeholder:        classifier.Placeholder,
				Confidence:         pattern.Confidence,
				Count:              len(matches),
			})
		}
	}
	return findings
}
