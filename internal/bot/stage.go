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

package bot

import (
	"context"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/stage"
)

// Stage adapts a Player to the broker-facing stage.Handler contract: it
// decodes Audio records off tts_audio_queue and hands them to Admit, which
// does its own gating, dedup, and asynchronous playback.
type Stage struct {
	player *Player
}

// NewStage builds a Stage around an already-constructed Player.
func NewStage(p *Player) *Stage {
	return &Stage{player: p}
}

// Handler never nak's on a gating/dedup/validation rejection — those are
// handled (and logged) inside Admit and are not delivery failures. Only a
// malformed wire record is treated as a permanent decode error.
func (s *Stage) Handler() stage.Handler {
	return func(ctx context.Context, rec *broker.Record) error {
		audio, err := pipeline.DecodeAudio(rec.Fields)
		if err != nil {
			return stage.Permanent(err)
		}
		s.player.Admit(ctx, audio)
		return nil
	}
}
