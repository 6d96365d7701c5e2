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

package wakeword

import (
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

// Match is a wake phrase hit against a transcript segment.
type Match struct {
	Pattern        Pattern
	Kind           pipeline.PatternKind
	Confidence     float64
	MatchedText    string
	RemainderStart int
}

// Matcher holds a hot-reloadable set of wake patterns and finds the best
// match for an utterance.
type Matcher struct {
	mu               sync.RWMutex
	patterns         []Pattern
	thresholds       map[pipeline.PatternKind]float64
	fuzzyEnabled     bool
	fuzzyMaxDistance int
}

// NewMatcher builds a Matcher over pf's patterns and thresholds.
func NewMatcher(pf PatternsFile, fuzzyEnabled bool, fuzzyMaxDistance int) *Matcher {
	m := &Matcher{
		fuzzyEnabled:     fuzzyEnabled,
		fuzzyMaxDistance: fuzzyMaxDistance,
	}
	m.SetPatterns(pf)
	return m
}

// SetPatterns atomically swaps in a newly reloaded pattern set.
func (m *Matcher) SetPatterns(pf PatternsFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append([]Pattern(nil), pf.Patterns...)
	m.thresholds = pf.Thresholds
}

func (m *Matcher) snapshot() ([]Pattern, map[pipeline.PatternKind]float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Pattern(nil), m.patterns...), m.thresholds
}

func (m *Matcher) resolveThreshold(thresholds map[pipeline.PatternKind]float64, kind pipeline.PatternKind) float64 {
	if v, ok := thresholds[kind]; ok {
		return v
	}
	higher := thresholds[pipeline.PatternPrimary]
	if v := thresholds[pipeline.PatternSecondary]; v > higher {
		higher = v
	}
	return higher
}

// Match returns the best wake-phrase hit in utterance, if any. Every
// configured pattern is tried: non-fuzzy kinds by exact substring, the
// fuzzy kind by edit distance when fuzzy matching is enabled. Among all
// hits the one with the highest confidence wins; ties break on the
// earliest start offset, then on pattern order in configuration. A hit's
// confidence is always its kind's resolved threshold, never a computed
// match-quality score, so equally-configured kinds compete on offset alone.
func (m *Matcher) Match(utterance string) (Match, bool) {
	lower := strings.ToLower(utterance)
	patterns, thresholds := m.snapshot()

	var best Match
	var bestOffset, bestIdx int
	found := false

	consider := func(candidate Match, offset, idx int) {
		if !found {
			best, bestOffset, bestIdx, found = candidate, offset, idx, true
			return
		}
		switch {
		case candidate.Confidence > best.Confidence:
		case candidate.Confidence < best.Confidence:
			return
		case offset < bestOffset:
		case offset > bestOffset:
			return
		case idx < bestIdx:
		default:
			return
		}
		best, bestOffset, bestIdx = candidate, offset, idx
	}

	for idx, p := range patterns {
		if p.Kind == pipeline.PatternFuzzy {
			if !m.fuzzyEnabled {
				continue
			}
			if hit, offset, ok := m.fuzzyHit(lower, p, thresholds); ok {
				consider(hit, offset, idx)
			}
			continue
		}

		phrase := strings.ToLower(p.Phrase)
		offset := strings.Index(lower, phrase)
		if offset < 0 {
			continue
		}
		consider(Match{
			Pattern:        p,
			Kind:           p.Kind,
			Confidence:     m.resolveThreshold(thresholds, p.Kind),
			MatchedText:    phrase,
			RemainderStart: offset + len(phrase),
		}, offset, idx)
	}

	return best, found
}

// tokenSpan is one whitespace-delimited token of an utterance together with
// its byte offsets in the original string, so a fuzzy match over a run of
// tokens can report a RemainderStart precise enough to slice the question.
type tokenSpan struct {
	text       string
	start, end int
}

func tokenize(s string) []tokenSpan {
	var spans []tokenSpan
	inToken := false
	start := 0
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if inToken {
				spans = append(spans, tokenSpan{text: s[start:i], start: start, end: i})
				inToken = false
			}
			continue
		}
		if !inToken {
			start = i
			inToken = true
		}
	}
	if inToken {
		spans = append(spans, tokenSpan{text: s[start:], start: start, end: len(s)})
	}
	return spans
}

// fuzzyHit finds p's best (lowest edit distance) token window in lower,
// returning it as a Match with p's resolved threshold as its confidence, and
// the window's start offset for Match's tie-break. Confidence never reflects
// the edit distance itself: a fuzzy hit is an activation of p's kind, not a
// graded score, so it competes with exact hits purely on kind and offset.
func (m *Matcher) fuzzyHit(lower string, p Pattern, thresholds map[pipeline.PatternKind]float64) (Match, int, bool) {
	spans := tokenize(lower)
	phrase := strings.ToLower(p.Phrase)
	words := strings.Fields(phrase)
	n := len(words)
	if n == 0 || n > len(spans) {
		return Match{}, 0, false
	}

	bestDist := -1
	var bestSpan tokenSpan

	for i := 0; i+n <= len(spans); i++ {
		window := lower[spans[i].start:spans[i+n-1].end]
		dist := damerauLevenshteinApprox(window, phrase)
		if dist > m.fuzzyMaxDistance {
			continue
		}
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			bestSpan = tokenSpan{start: spans[i].start, end: spans[i+n-1].end}
		}
	}

	if bestDist == -1 {
		return Match{}, 0, false
	}
	return Match{
		Pattern:        p,
		Kind:           pipeline.PatternFuzzy,
		Confidence:     m.resolveThreshold(thresholds, pipeline.PatternFuzzy),
		MatchedText:    lower[bestSpan.start:bestSpan.end],
		RemainderStart: bestSpan.end,
	}, bestSpan.start, true
}

// damerauLevenshteinApprox approximates true Damerau-Levenshtein distance
// (which additionally counts an adjacent transposition as a single edit)
// on top of agnivade/levenshtein's standard edit distance: it also tries
// every adjacent-character swap of a and keeps the minimum distance found.
// This catches the common single-transposition typo ("ravne" for "raven")
// without implementing the full DL dynamic-programming table.
func damerauLevenshteinApprox(a, b string) int {
	best := levenshtein.ComputeDistance(a, b)

	runes := []rune(a)
	for i := 0; i+1 < len(runes); i++ {
		swapped := append([]rune(nil), runes...)
		swapped[i], swapped[i+1] = swapped[i+1], swapped[i]
		if d := 1 + levenshtein.ComputeDistance(string(swapped), b); d < best {
			best = d
		}
	}

	return best
}
