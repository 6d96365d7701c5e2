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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/logging"
)

// HTTPGateway talks to a generic Ollama/OpenAI-compatible chat endpoint over
// plain HTTP, assembling the whole conversation into a single prompt the
// way Ollama's /api/generate expects.
type HTTPGateway struct {
	cfg    config.ResponderConfig
	client *http.Client
}

// NewHTTPGateway builds an HTTPGateway from cfg.
func NewHTTPGateway(cfg config.ResponderConfig) *HTTPGateway {
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (g *HTTPGateway) Name() string { return "http" }

type httpGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type httpGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate flattens req.Messages into a single prompt and posts it to the
// backend's /api/generate endpoint, retrying transient failures.
func (g *HTTPGateway) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	return withRetry(ctx, g.cfg.MaxRetries, g.cfg.RetryBaseDelay, func() (GenerateResult, error) {
		return g.generateOnce(ctx, req)
	})
}

func (g *HTTPGateway) generateOnce(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	body := httpGenerateRequest{
		Model:  req.Model,
		Prompt: flattenPrompt(req.Messages),
		Stream: false,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("call llm backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return GenerateResult{}, &httpStatusError{statusCode: resp.StatusCode, body: string(respBody)}
	}

	var parsed httpGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return GenerateResult{}, fmt.Errorf("unmarshal llm response: %w", err)
	}

	logging.LogLLMOperation("generate", zap.String("backend", "http"), zap.Duration("duration", time.Since(start)))

	finish := "stop"
	if !parsed.Done {
		finish = "length"
	}
	return GenerateResult{Text: parsed.Response, FinishReason: finish}, nil
}

// Health checks the backend's base URL is reachable.
func (g *HTTPGateway) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.URL, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func flattenPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
