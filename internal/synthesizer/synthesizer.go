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

// Package synthesizer is the Synthesizer stage: it turns a Reply's text into
// an Audio record by calling a ttsgateway.Gateway, guarding against
// oversized input and carrying the engine that actually produced the audio
// into the record's metadata.
package synthesizer

import (
	"context"
	"encoding/base64"
	"time"

	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/stage"
	"github.com/heyraven/raven-pipeline/internal/ttsgateway"
)

// Synthesizer consumes Replies and publishes Audio records.
type Synthesizer struct {
	broker  broker.Broker
	gateway *ttsgateway.Gateway
	cfg     config.SynthesizerConfig
}

// New builds a Synthesizer.
func New(b broker.Broker, gw *ttsgateway.Gateway, cfg config.SynthesizerConfig) *Synthesizer {
	return &Synthesizer{broker: b, gateway: gw, cfg: cfg}
}

// Handler adapts Synthesizer to a stage.Handler reading from llm_responses
// and appending audio records onto tts_audio_queue.
func (s *Synthesizer) Handler() stage.Handler {
	return func(ctx context.Context, rec *broker.Record) error {
		reply, err := pipeline.DecodeReply(rec.Fields)
		if err != nil {
			return stage.Permanent(err)
		}

		text := reply.Response
		truncated := false
		if s.cfg.MaxTextLength > 0 && len(text) > s.cfg.MaxTextLength {
			text = text[:s.cfg.MaxTextLength]
			truncated = true
		}
		if truncated {
			logging.LogWarn("reply text truncated before synthesis",
				zap.String("session_uid", reply.SessionUID), zap.Int("max_length", s.cfg.MaxTextLength))
		}

		opts := ttsgateway.SynthesizeOptions{
			Voice:    s.cfg.PrimaryVoice,
			Format:   s.cfg.PrimaryFormat,
			Language: detectLanguage(text, s.cfg.DefaultLanguage),
		}

		start := time.Now()
		result, err := s.gateway.Synthesize(ctx, text, opts)
		if err != nil {
			// Both the primary and fallback engines failed. This degrades to
			// graceful silence: acknowledge the Reply and emit no Audio
			// rather than redeliver indefinitely, since the Player already
			// treats a missing Audio record as nothing to play.
			logging.LogError(err, "tts synthesis failed on both engines, degrading to silence",
				zap.String("session_uid", reply.SessionUID))
			return stage.Permanent(err)
		}

		audio := pipeline.Audio{
			AudioData: base64.StdEncoding.EncodeToString(result.Audio),
			AudioMetadata: pipeline.AudioMetadata{
				Format:    result.Format,
				SizeBytes: len(result.Audio),
				DurationS: result.DurationS,
				Engine:    result.EngineName,
			},
			SessionUID:       reply.SessionUID,
			MeetingID:        reply.MeetingID,
			OriginalQuestion: reply.OriginalQuestion,
			ResponseText:     reply.Response,
			MessageID:        reply.MessageID,
			Timestamp:        time.Now().UTC(),
		}
		if !audio.Valid() {
			return stage.Permanent(errEmptyAudio)
		}

		if _, err := s.broker.Append(ctx, pipeline.StreamAudio, pipeline.EncodeAudio(audio)); err != nil {
			return err
		}

		logging.LogTTSOperation("audio_dispatched",
			zap.String("session_uid", reply.SessionUID),
			zap.String("message_id", audio.MessageID),
			zap.String("engine", result.EngineName),
			zap.Duration("duration", time.Since(start)))
		return nil
	}
}
