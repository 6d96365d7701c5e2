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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heyraven/raven-pipeline/internal/config"
)

func TestWebSocketBridge_PlayAudio_SendsFrame(t *testing.T) {
	bridge := NewWebSocketBridge()
	p, err := New("conn-1", config.BotConfig{DedupWindowSize: 8, SessionMatchMode: "strict"}, bridge)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bridge.BindPlayer(p)

	srv := httptest.NewServer(bridge)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	// give the server goroutine a moment to register the connection.
	time.Sleep(20 * time.Millisecond)

	if err := bridge.PlayAudio(context.Background(), []byte("abc"), "wav", "msg-1"); err != nil {
		t.Fatalf("PlayAudio() error = %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received frame
	if err := clientConn.ReadJSON(&received); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if received.Kind != frameKindPlayAudio || received.MessageID != "msg-1" {
		t.Errorf("received = %+v, want play_audio frame for msg-1", received)
	}
}

func TestWebSocketBridge_HandlesSessionUidUpdate(t *testing.T) {
	bridge := NewWebSocketBridge()
	p, err := New("conn-1", config.BotConfig{DedupWindowSize: 8, SessionMatchMode: "strict"}, bridge)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bridge.BindPlayer(p)

	srv := httptest.NewServer(bridge)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	if err := clientConn.WriteJSON(frame{Kind: frameKindSessionUidUpdate, SessionUID: "session-9"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		uid := p.recognizerSessionUID
		p.mu.Unlock()
		if uid == "session-9" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("recognizerSessionUID was never updated by the inbound frame")
}

func TestWebSocketBridge_PlayAudio_NoConnectionErrors(t *testing.T) {
	bridge := NewWebSocketBridge()
	if err := bridge.PlayAudio(context.Background(), []byte("abc"), "wav", "msg-1"); err == nil {
		t.Error("PlayAudio() error = nil, want error with no active connection")
	}
}
