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

// Package llmgateway abstracts the chat backend the Responder stage calls
// to turn a question into an answer, with pluggable HTTP and OpenAI
// implementations behind one interface.
package llmgateway

import (
	"context"
	"fmt"

	"github.com/heyraven/raven-pipeline/internal/config"
)

// Message is one turn of conversation history passed to Generate.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// GenerateRequest carries everything a backend needs to produce a reply.
type GenerateRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// GenerateResult is a backend's successful completion.
type GenerateResult struct {
	Text         string
	FinishReason string
}

// Gateway is the interface the Responder stage depends on; it is satisfied
// by the http and openai backends.
type Gateway interface {
	// Generate produces a completion for req.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)

	// Health reports whether the backend is currently reachable.
	Health(ctx context.Context) error

	// Name identifies the backend for logging and /stats reporting.
	Name() string
}

// New builds a Gateway from cfg.Backend ("http" or "openai").
func New(cfg config.ResponderConfig) (Gateway, error) {
	switch cfg.Backend {
	case "http", "":
		return NewHTTPGateway(cfg), nil
	case "openai":
		return NewOpenAIGateway(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}
