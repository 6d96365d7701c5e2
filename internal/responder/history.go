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

// Package responder turns a Command into a Reply: it builds a persona-
// prefixed, history-aware prompt, calls an llmgateway.Gateway, and mints a
// message id for the Player's idempotent-playback dedup window.
package responder

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heyraven/raven-pipeline/internal/llmgateway"
)

// Turn is one exchange kept in a session's conversation history.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// History stores a bounded window of recent turns per session.
type History interface {
	Get(ctx context.Context, sessionUID string) ([]Turn, error)
	Append(ctx context.Context, sessionUID string, turn Turn) error
}

// MemoryHistory is an in-process ring-buffer History, the default backend.
type MemoryHistory struct {
	mu      sync.Mutex
	maxSize int
	turns   map[string][]Turn
}

// NewMemoryHistory builds a MemoryHistory keeping up to maxSize turns per
// session.
func NewMemoryHistory(maxSize int) *MemoryHistory {
	return &MemoryHistory{
		maxSize: maxSize,
		turns:   make(map[string][]Turn),
	}
}

func (h *MemoryHistory) Get(ctx context.Context, sessionUID string) ([]Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns[sessionUID]...), nil
}

func (h *MemoryHistory) Append(ctx context.Context, sessionUID string, turn Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := append(h.turns[sessionUID], turn)
	if h.maxSize > 0 && len(turns) > h.maxSize {
		turns = turns[len(turns)-h.maxSize:]
	}
	h.turns[sessionUID] = turns
	return nil
}

// RedisHistory stores each session's turn window as a JSON-encoded list
// value in Redis, so multiple Responder replicas share conversation state.
type RedisHistory struct {
	rdb     *redis.Client
	maxSize int
	ttl     time.Duration
}

// NewRedisHistory builds a RedisHistory from a redis:// or host:port URL.
func NewRedisHistory(redisURL string, maxSize int) (*RedisHistory, error) {
	var opt *redis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}

	return &RedisHistory{
		rdb:     redis.NewClient(opt),
		maxSize: maxSize,
		ttl:     24 * time.Hour,
	}, nil
}

func historyKey(sessionUID string) string {
	return "raven:history:" + sessionUID
}

func (h *RedisHistory) Get(ctx context.Context, sessionUID string) ([]Turn, error) {
	raw, err := h.rdb.Get(ctx, historyKey(sessionUID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var turns []Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

func (h *RedisHistory) Append(ctx context.Context, sessionUID string, turn Turn) error {
	turns, err := h.Get(ctx, sessionUID)
	if err != nil {
		return err
	}

	turns = append(turns, turn)
	if h.maxSize > 0 && len(turns) > h.maxSize {
		turns = turns[len(turns)-h.maxSize:]
	}

	encoded, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	return h.rdb.Set(ctx, historyKey(sessionUID), encoded, h.ttl).Err()
}

// Close releases the underlying Redis connection.
func (h *RedisHistory) Close() error {
	return h.rdb.Close()
}

// ToMessages converts a turn window plus the current question into the
// Message slice an llmgateway.Gateway expects, with persona as the system
// prompt.
func ToMessages(persona string, turns []Turn, question string) []llmgateway.Message {
	messages := make([]llmgateway.Message, 0, 2*len(turns)+2)
	if persona != "" {
		messages = append(messages, llmgateway.Message{Role: "system", Content: persona})
	}
	for _, t := range turns {
		messages = append(messages, llmgateway.Message{Role: "user", Content: t.Question})
		messages = append(messages, llmgateway.Message{Role: "assistant", Content: t.Answer})
	}
	messages = append(messages, llmgateway.Message{Role: "user", Content: question})
	return messages
}
