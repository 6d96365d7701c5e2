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
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/stage"
)

// Detector is the WakeDetector stage: it matches incoming transcript
// segments against configured wake phrases, extracts the trailing
// question, rate-limits by session, and forwards a Command downstream.
type Detector struct {
	broker  broker.Broker
	cfg     config.WakeWordConfig
	matcher *Matcher
	limiter *RateLimiter
}

// NewDetector builds a Detector. pf seeds the initial pattern set; call
// Reload periodically (or run WatchReload in its own goroutine) to pick up
// on-disk changes to cfg.PatternsFile. A pf with no explicit thresholds
// inherits cfg.ThresholdPrimary/cfg.ThresholdSecondary.
func NewDetector(b broker.Broker, cfg config.WakeWordConfig, pf PatternsFile) *Detector {
	pf = applyConfigThresholds(pf, cfg)
	return &Detector{
		broker:  b,
		cfg:     cfg,
		matcher: NewMatcher(pf, cfg.FuzzyEnabled, cfg.FuzzyMaxDistance),
		limiter: NewRateLimiter(cfg.RateLimitMaxPerMin, cfg.RateLimitCooldown),
	}
}

// applyConfigThresholds fills in pf.Thresholds from cfg when pf carries
// none. LoadPatterns always returns thresholds (the file's own or the
// built-in defaults, also when no file exists), so a pattern set loaded
// through it keeps those and cfg's thresholds are not applied to it.
func applyConfigThresholds(pf PatternsFile, cfg config.WakeWordConfig) PatternsFile {
	if len(pf.Thresholds) > 0 {
		return pf
	}
	pf.Thresholds = map[pipeline.PatternKind]float64{
		pipeline.PatternPrimary:   cfg.ThresholdPrimary,
		pipeline.PatternSecondary: cfg.ThresholdSecondary,
	}
	return pf
}

// Reload re-reads cfg.PatternsFile and swaps it into the live Matcher.
func (d *Detector) Reload() error {
	pf, err := LoadPatterns(d.cfg.PatternsFile)
	if err != nil {
		return err
	}
	d.matcher.SetPatterns(applyConfigThresholds(pf, d.cfg))
	return nil
}

// WatchReload blocks, calling Reload on every tick of cfg.ReloadPollInterval
// until ctx is cancelled. Reload failures are logged, not fatal: the
// Detector keeps serving its last-known-good pattern set.
func (d *Detector) WatchReload(ctx context.Context) {
	if d.cfg.ReloadPollInterval <= 0 {
		return
	}
	ticker := time.NewTicker(d.cfg.ReloadPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Reload(); err != nil {
				logging.LogWarn("wake pattern reload failed", zap.Error(err))
			}
		}
	}
}

// Handler adapts Detector to a stage.Handler reading from the transcripts
// stream and appending matches onto the commands stream.
func (d *Detector) Handler() stage.Handler {
	return func(ctx context.Context, rec *broker.Record) error {
		segment, err := pipeline.DecodeSegment(rec.Fields)
		if err != nil {
			return stage.Permanent(err)
		}

		match, ok := d.matcher.Match(segment.Text)
		if !ok {
			return nil
		}

		if !d.limiter.Allow(segment.SessionUID, time.Now()) {
			logging.LogWakeEvent(segment.SessionUID, "rate_limited",
				zap.String("pattern", match.Pattern.Phrase))
			return nil
		}

		question, ok := ExtractQuestion(segment.Text, match, d.cfg.MinQuestionLength, d.cfg.MaxQuestionLength)
		if !ok {
			logging.LogWakeEvent(segment.SessionUID, "question_out_of_bounds",
				zap.String("pattern", match.Pattern.Phrase))
			return nil
		}

		cmd := pipeline.Command{
			Question:    question,
			SessionUID:  segment.SessionUID,
			MeetingID:   segment.MeetingID,
			Context:     segment.Text,
			Confidence:  match.Confidence,
			PatternKind: match.Kind,
			Timestamp:   time.Now().UTC(),
		}

		if _, err := d.broker.Append(ctx, pipeline.StreamCommands, pipeline.EncodeCommand(cmd)); err != nil {
			return err
		}

		logging.LogWakeEvent(segment.SessionUID, "command_dispatched",
			zap.String("pattern", match.Pattern.Phrase),
			zap.Float64("confidence", match.Confidence))
		return nil
	}
}
