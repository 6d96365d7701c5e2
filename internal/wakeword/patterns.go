/*
 * This file is part of Hey Raven.
 * Copyright (C) 2025 Hey Raven Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package wakeword matches transcript segments against a configurable set
// of wake phrases and turns matches into Commands for the Responder.
package wakeword

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

// Pattern is a single configured wake phrase.
type Pattern struct {
	Phrase string              `koanf:"phrase"`
	Kind   pipeline.PatternKind `koanf:"kind"`
}

// PatternsFile is the on-disk shape of the wake pattern configuration: an
// ordered list of (kind, phrase) pairs plus the confidence threshold each
// kind resolves to when it produces a hit.
type PatternsFile struct {
	Patterns   []Pattern                        `koanf:"patterns"`
	Thresholds map[pipeline.PatternKind]float64 `koanf:"thresholds"`
}

// resolveThreshold returns the confidence a hit of kind should carry: the
// threshold explicitly configured for kind, or failing that the higher of
// the primary/secondary thresholds, per the "each kind inherits the higher
// of the two unless explicitly listed" rule.
func (pf PatternsFile) resolveThreshold(kind pipeline.PatternKind) float64 {
	if v, ok := pf.Thresholds[kind]; ok {
		return v
	}
	higher := pf.Thresholds[pipeline.PatternPrimary]
	if v := pf.Thresholds[pipeline.PatternSecondary]; v > higher {
		higher = v
	}
	return higher
}

func defaultThresholds() map[pipeline.PatternKind]float64 {
	return map[pipeline.PatternKind]float64{
		pipeline.PatternPrimary:   0.9,
		pipeline.PatternSecondary: 0.7,
	}
}

func defaultPatterns() PatternsFile {
	return PatternsFile{
		Patterns: []Pattern{
			{Phrase: "hey raven", Kind: pipeline.PatternPrimary},
			{Phrase: "okay raven", Kind: pipeline.PatternSecondary},
			{Phrase: "raven,", Kind: pipeline.PatternConversational},
			{Phrase: "raven?", Kind: pipeline.PatternQuestion},
			{Phrase: "hey raven", Kind: pipeline.PatternFuzzy},
		},
		Thresholds: defaultThresholds(),
	}
}

// LoadPatterns reads patterns from path using koanf's file provider, falling
// back to built-in defaults when the file is absent or empty. The caller is
// expected to call this again on a poll tick and hand the result to
// Matcher.SetPatterns for hot reload. A file that declares patterns but
// omits thresholds still gets the built-in default thresholds, since a
// reload should never silently zero out every kind's confidence.
func LoadPatterns(path string) (PatternsFile, error) {
	if path == "" {
		return defaultPatterns(), nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if isNotExist(err) {
			return defaultPatterns(), nil
		}
		return PatternsFile{}, fmt.Errorf("failed to load wake patterns from %s: %w", path, err)
	}

	var pf PatternsFile
	if err := k.Unmarshal("", &pf); err != nil {
		return PatternsFile{}, fmt.Errorf("failed to unmarshal wake patterns: %w", err)
	}

	if len(pf.Patterns) == 0 {
		pf = defaultPatterns()
	}
	if len(pf.Thresholds) == 0 {
		pf.Thresholds = defaultThresholds()
	}

	return pf, nil
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file") || strings.Contains(err.Error(), "cannot find")
}
