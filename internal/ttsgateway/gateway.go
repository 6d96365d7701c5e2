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

// Package ttsgateway abstracts the text-to-speech engine the Synthesizer
// stage calls, with a primary networked engine, a local deterministic
// fallback, and per-engine usage counters for /stats.
package ttsgateway

import (
	"context"
	"sync"
	"time"
)

// SynthesizeOptions customizes one synthesis call.
type SynthesizeOptions struct {
	Voice    string
	Format   string
	Language string
}

// SynthesizeResult is a successful synthesis.
type SynthesizeResult struct {
	Audio      []byte
	Format     string
	DurationS  float64
	EngineName string
}

// Engine is one text-to-speech backend.
type Engine interface {
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (SynthesizeResult, error)
	Health(ctx context.Context) error
	Name() string
}

// EngineStats tracks a rolling count of outcomes for one engine, surfaced on
// the stage's /stats endpoint.
type EngineStats struct {
	Generations    int64
	Successes      int64
	Failures       int64
	AvgDurationMS  float64
}

// Gateway selects between a primary and fallback Engine, degrading to
// fallback on primary failure and tracking per-engine stats.
type Gateway struct {
	primary  Engine
	fallback Engine

	mu    sync.Mutex
	stats map[string]*EngineStats
}

// New builds a Gateway over primary and fallback engines.
func New(primary, fallback Engine) *Gateway {
	return &Gateway{
		primary:  primary,
		fallback: fallback,
		stats:    make(map[string]*EngineStats),
	}
}

// Synthesize tries the primary engine, falling back to the fallback engine
// on any error. Both failing is reported to the caller, which should
// degrade to silence per the Player's graceful-failure contract.
func (g *Gateway) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (SynthesizeResult, error) {
	result, err := g.tryEngine(ctx, g.primary, text, opts)
	if err == nil {
		return result, nil
	}
	if g.fallback == nil {
		return SynthesizeResult{}, err
	}
	return g.tryEngine(ctx, g.fallback, text, opts)
}

func (g *Gateway) tryEngine(ctx context.Context, engine Engine, text string, opts SynthesizeOptions) (SynthesizeResult, error) {
	start := time.Now()
	result, err := engine.Synthesize(ctx, text, opts)
	g.record(engine.Name(), time.Since(start), err == nil)
	return result, err
}

func (g *Gateway) record(engineName string, duration time.Duration, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.stats[engineName]
	if !ok {
		s = &EngineStats{}
		g.stats[engineName] = s
	}

	s.Generations++
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	n := float64(s.Generations)
	s.AvgDurationMS = s.AvgDurationMS + (float64(duration.Milliseconds())-s.AvgDurationMS)/n
}

// Stats returns a snapshot of per-engine counters.
func (g *Gateway) Stats() map[string]EngineStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]EngineStats, len(g.stats))
	for name, s := range g.stats {
		out[name] = *s
	}
	return out
}

// Health checks the primary engine, falling back to the fallback engine's
// health if the primary is unreachable.
func (g *Gateway) Health(ctx context.Context) error {
	if err := g.primary.Health(ctx); err == nil {
		return nil
	}
	if g.fallback == nil {
		return g.primary.Health(ctx)
	}
	return g.fallback.Health(ctx)
}
