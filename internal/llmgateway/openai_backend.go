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

package llmgateway

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/logging"
)

// OpenAIGateway talks to a provider speaking the OpenAI chat-completions
// wire format natively, using the official SDK instead of hand-rolled HTTP.
type OpenAIGateway struct {
	cfg    config.ResponderConfig
	client openai.Client
}

// NewOpenAIGateway builds an OpenAIGateway from cfg. A non-empty cfg.URL
// points the client at an OpenAI-compatible endpoint other than the public
// API, the way a self-hosted gateway would.
func NewOpenAIGateway(cfg config.ResponderConfig) *OpenAIGateway {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(cfg.URL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return &OpenAIGateway{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}
}

func (g *OpenAIGateway) Name() string { return "openai" }

// Generate calls the chat completions endpoint, retrying transient failures.
func (g *OpenAIGateway) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	return withRetry(ctx, g.cfg.MaxRetries, g.cfg.RetryBaseDelay, func() (GenerateResult, error) {
		return g.generateOnce(ctx, req)
	})
}

func (g *OpenAIGateway) generateOnce(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return GenerateResult{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, errors.New("openai backend returned no choices")
	}

	logging.LogLLMOperation("generate", zap.String("backend", "openai"), zap.Duration("duration", time.Since(start)))

	choice := resp.Choices[0]
	return GenerateResult{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Health issues a minimal models-list call to confirm connectivity.
func (g *OpenAIGateway) Health(ctx context.Context) error {
	_, err := g.client.Models.List(ctx)
	return err
}

// classifyOpenAIError maps SDK status errors onto httpStatusError so
// retry's transient/permanent split applies uniformly across backends.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &httpStatusError{statusCode: apiErr.StatusCode, body: apiErr.Message}
	}
	return err
}
