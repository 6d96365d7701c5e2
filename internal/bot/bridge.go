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
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/logging"
)

// frameKind discriminates the narrow host/browser message channel.
type frameKind string

const (
	frameKindPlayAudio        frameKind = "play_audio"
	frameKindSetMicMuted      frameKind = "set_mic_muted"
	frameKindPlaybackComplete frameKind = "playback_complete"
	frameKindSessionUidUpdate frameKind = "session_uid_update"
)

// frame is the wire shape for every message crossing the bridge, in either
// direction. Only the fields relevant to Kind are populated.
type frame struct {
	Kind           frameKind `json:"kind"`
	AudioBase64    string    `json:"audio_base64,omitempty"`
	Format         string    `json:"format,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	Muted          bool      `json:"muted,omitempty"`
	Error          string    `json:"error,omitempty"`
	SessionUID     string    `json:"session_uid,omitempty"`
}

// WebSocketBridge is the host side of the Player <-> browser-automation
// bridge: one long-lived websocket connection per bot, carrying the four
// frame kinds in the manner of two function bindings exposed in each
// direction.
type WebSocketBridge struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	player *Player

	upgrader websocket.Upgrader
}

// NewWebSocketBridge builds a bridge not yet attached to any connection.
// ServeHTTP attaches it once the browser-automation client connects.
func NewWebSocketBridge() *WebSocketBridge {
	return &WebSocketBridge{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// BindPlayer associates this bridge with the Player it delivers frames for.
// Must be called before ServeHTTP receives a connection.
func (b *WebSocketBridge) BindPlayer(p *Player) {
	b.player = p
}

// ServeHTTP upgrades the connection and runs the browser->host read loop
// until the connection closes.
func (b *WebSocketBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogError(err, "bridge upgrade failed")
		return
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logging.LogWarn("bridge connection closed", zap.Error(err))
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logging.LogWarn("bridge received malformed frame", zap.Error(err))
			continue
		}
		b.handleInbound(f)
	}
}

func (b *WebSocketBridge) handleInbound(f frame) {
	if b.player == nil {
		return
	}
	switch f.Kind {
	case frameKindPlaybackComplete:
		var playErr error
		if f.Error != "" {
			playErr = errPlaybackFailed(f.Error)
		}
		b.player.NotifyPlaybackComplete(f.MessageID, playErr)
	case frameKindSessionUidUpdate:
		b.player.UpdateRecognizerSessionUID(f.SessionUID)
	default:
		logging.LogWarn("bridge received unexpected frame kind", zap.String("kind", string(f.Kind)))
	}
}

// PlayAudio implements Bridge by sending a play_audio frame to the browser.
func (b *WebSocketBridge) PlayAudio(ctx context.Context, audioData []byte, format, messageID string) error {
	return b.send(frame{
		Kind:        frameKindPlayAudio,
		AudioBase64: base64.StdEncoding.EncodeToString(audioData),
		Format:      format,
		MessageID:   messageID,
	})
}

// SetMicMuted implements Bridge by sending a set_mic_muted frame.
func (b *WebSocketBridge) SetMicMuted(ctx context.Context, muted bool) error {
	return b.send(frame{Kind: frameKindSetMicMuted, Muted: muted})
}

func (b *WebSocketBridge) send(f frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return errNoBrowserConnection
	}
	b.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return b.conn.WriteJSON(f)
}
