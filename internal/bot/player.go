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

// Package bot is the Player: the in-bot audio coordinator that consumes
// synthesized Audio records, gates them against the bot's current
// recognizer session, and plays them one at a time over a host/browser
// bridge while muting the bot's microphone.
package bot

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

// State is one of the Player's playback states.
type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StateDraining State = "draining"
)

// fallbackPlaybackCap bounds a playback's watchdog timeout when the Audio
// record carries no usable duration estimate.
const fallbackPlaybackCap = 30 * time.Second

// watchdogGrace is added on top of the expected duration before a stuck
// playback is forcibly abandoned.
const watchdogGrace = 5 * time.Second

// Bridge is the host-side half of the host/browser playback channel: it
// delivers frames to whatever automation library drives the bot's browser
// session and reports completion back through the Player.
type Bridge interface {
	PlayAudio(ctx context.Context, audioData []byte, format, messageID string) error
	SetMicMuted(ctx context.Context, muted bool) error
}

// Player is one bot process's playback state machine, bound to a single
// meeting/connection.
type Player struct {
	connectionID string
	matchMode    string // "strict" or "degraded"
	playbackCap  time.Duration

	bridge Bridge
	dedup  *lru.Cache[string, struct{}]

	mu                  sync.Mutex
	state               State
	queue               *list.List // of pipeline.Audio
	recognizerSessionUID string

	playDone chan error // signaled by NotifyPlaybackComplete, consumed by the run loop
}

// New builds a Player for one bot connection.
func New(connectionID string, cfg config.BotConfig, bridge Bridge) (*Player, error) {
	size := cfg.DedupWindowSize
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("build dedup cache: %w", err)
	}
	return &Player{
		connectionID: connectionID,
		matchMode:    cfg.SessionMatchMode,
		playbackCap:  cfg.PlaybackTimeout,
		bridge:       bridge,
		dedup:        cache,
		state:        StateIdle,
		queue:        list.New(),
		playDone:     make(chan error, 1),
	}, nil
}

// UpdateRecognizerSessionUID is called by the bridge when the in-browser
// recognizer client learns its server-assigned session id.
func (p *Player) UpdateRecognizerSessionUID(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recognizerSessionUID = uid
}

// NotifyPlaybackComplete is called by the bridge when the browser reports
// that a given message finished playing (or failed to).
func (p *Player) NotifyPlaybackComplete(messageID string, playbackErr error) {
	select {
	case p.playDone <- playbackErr:
	default:
		// a notification is already buffered (late/duplicate); drop this one.
	}
}

// Admit enqueues an Audio record if it passes validation, dedup, and
// session gating, then (if the Player was idle) kicks off playback.
// Admit never blocks on playback; the run loop drains the queue
// asynchronously.
func (p *Player) Admit(ctx context.Context, audio pipeline.Audio) {
	if !audio.Valid() {
		logging.LogWarn("dropping invalid audio record",
			zap.String("session_uid", audio.SessionUID), zap.String("message_id", audio.MessageID))
		return
	}

	p.mu.Lock()
	if p.dedup.Contains(audio.MessageID) {
		p.mu.Unlock()
		logging.LogPlaybackEvent(audio.SessionUID, "duplicate_dropped", zap.String("message_id", audio.MessageID))
		return
	}

	if p.state == StateDraining {
		p.mu.Unlock()
		logging.LogPlaybackEvent(audio.SessionUID, "dropped_while_draining", zap.String("message_id", audio.MessageID))
		return
	}

	if !p.admitted(audio.SessionUID) {
		p.mu.Unlock()
		logging.LogWarn("audio dropped: session mismatch",
			zap.String("audio_session_uid", audio.SessionUID),
			zap.String("recognizer_session_uid", p.recognizerSessionUID),
			zap.String("connection_id", p.connectionID))
		return
	}

	p.dedup.Add(audio.MessageID, struct{}{})
	p.queue.PushBack(audio)
	shouldStart := p.state == StateIdle
	if shouldStart {
		p.state = StatePlaying
	}
	p.mu.Unlock()

	if shouldStart {
		go p.run(ctx)
	}
}

// admitted reports whether sessionUID is allowed to play on this bot, per
// spec.md §4.4's primary/fallback gating rule. Must be called with p.mu held.
func (p *Player) admitted(sessionUID string) bool {
	if sessionUID == p.recognizerSessionUID && p.recognizerSessionUID != "" {
		return true
	}
	if p.matchMode == "degraded" && sessionUID == p.connectionID {
		logging.LogWarn("admitting audio via degraded connection_id match",
			zap.String("session_uid", sessionUID), zap.String("connection_id", p.connectionID))
		return true
	}
	return false
}

// Drain transitions the Player into Draining: no further audio is
// admitted, the in-flight playback (if any) is allowed to finish up to its
// watchdog timeout, and the queue is discarded once reached.
func (p *Player) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDraining
}

// State reports the Player's current state, for diagnostics and tests.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// run drains the queue one Audio at a time until it is empty or the Player
// has moved into Draining. It is only ever running on one goroutine per
// Player at a time (guarded by the Idle->Playing transition in Admit).
func (p *Player) run(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.state == StateDraining {
			p.queue.Init()
			p.mu.Unlock()
			return
		}
		front := p.queue.Front()
		if front == nil {
			p.state = StateIdle
			p.mu.Unlock()
			return
		}
		p.queue.Remove(front)
		audio := front.Value.(pipeline.Audio)
		p.mu.Unlock()

		p.playOne(ctx, audio)

		p.mu.Lock()
		draining := p.state == StateDraining
		p.mu.Unlock()
		if draining && p.queue.Len() == 0 {
			return
		}
	}
}

// playOne mutes the microphone, hands the blob to the bridge, and waits for
// completion up to a watchdog timeout, per spec.md §4.4 steps 1-7.
func (p *Player) playOne(ctx context.Context, audio pipeline.Audio) {
	logging.LogPlaybackEvent(audio.SessionUID, "playback_started", zap.String("message_id", audio.MessageID))

	if err := p.bridge.SetMicMuted(ctx, true); err != nil {
		logging.LogError(err, "mic mute failed", zap.String("session_uid", audio.SessionUID))
	}

	deadline := time.Duration(audio.AudioMetadata.DurationS*float64(time.Second)) + watchdogGrace
	if deadline <= watchdogGrace {
		deadline = fallbackPlaybackCap + watchdogGrace
	}
	if p.playbackCap > 0 && deadline > p.playbackCap {
		deadline = p.playbackCap
	}

	decoded, err := decodeAudioData(audio.AudioData)
	if err != nil {
		logging.LogError(err, "audio decode failed", zap.String("session_uid", audio.SessionUID), zap.String("message_id", audio.MessageID))
		p.unmute(ctx)
		return
	}

	if err := p.bridge.PlayAudio(ctx, decoded, audio.AudioMetadata.Format, audio.MessageID); err != nil {
		logging.LogError(err, "bridge play_audio failed", zap.String("session_uid", audio.SessionUID), zap.String("message_id", audio.MessageID))
		p.unmute(ctx)
		return
	}

	select {
	case playErr := <-p.playDone:
		if playErr != nil {
			logging.LogError(playErr, "browser playback failed", zap.String("session_uid", audio.SessionUID), zap.String("message_id", audio.MessageID))
		} else {
			logging.LogPlaybackEvent(audio.SessionUID, "playback_complete", zap.String("message_id", audio.MessageID))
		}
	case <-time.After(deadline):
		logging.LogWarn("playback watchdog timeout, abandoning",
			zap.String("session_uid", audio.SessionUID), zap.String("message_id", audio.MessageID))
	case <-ctx.Done():
	}

	p.unmute(ctx)
}

func (p *Player) unmute(ctx context.Context) {
	if err := p.bridge.SetMicMuted(ctx, false); err != nil {
		logging.LogError(err, "mic unmute failed")
	}
}
