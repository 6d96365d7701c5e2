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

package ttsgateway

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

	"github.com/heyraven/raven-pipeline/internal/logging"
)

// httpRequest mirrors the OpenAI-compatible /audio/speech request body that
// both Kokoro and the OpenAI TTS endpoint accept.
type httpRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Voice  string `json:"voice"`
	Format string `json:"response_format,omitempty"`
}

// HTTPEngine calls a networked OpenAI-compatible /audio/speech endpoint.
type HTTPEngine struct {
	name          string
	baseURL       string
	defaultVoice  string
	defaultFormat string
	client        *http.Client
	semaphore     chan struct{}
}

// HTTPEngineConfig parameterizes an HTTPEngine.
type HTTPEngineConfig struct {
	Name          string
	BaseURL       string
	DefaultVoice  string
	DefaultFormat string
	Timeout       time.Duration
	MaxConcurrent int
}

// NewHTTPEngine builds an HTTPEngine from cfg.
func NewHTTPEngine(cfg HTTPEngineConfig) *HTTPEngine {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &HTTPEngine{
		name:          cfg.Name,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		defaultVoice:  cfg.DefaultVoice,
		defaultFormat: cfg.DefaultFormat,
		client:        &http.Client{Timeout: cfg.Timeout},
		semaphore:     make(chan struct{}, maxConcurrent),
	}
}

func (e *HTTPEngine) Name() string { return e.name }

// Synthesize posts text to the engine's /audio/speech endpoint, bounded by a
// semaphore so a burst of concurrent requests can't overrun the backend.
func (e *HTTPEngine) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (SynthesizeResult, error) {
	if text == "" {
		return SynthesizeResult{}, fmt.Errorf("text cannot be empty")
	}

	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return SynthesizeResult{}, ctx.Err()
	}

	voice := e.defaultVoice
	if opts.Voice != "" {
		voice = opts.Voice
	}
	format := e.defaultFormat
	if opts.Format != "" {
		format = opts.Format
	}

	body, err := json.Marshal(httpRequest{
		Model:  "tts-1",
		Input:  text,
		Voice:  voice,
		Format: format,
	})
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("marshal tts request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	resp, err := e.client.Do(req)
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("tts http request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("read tts response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return SynthesizeResult{}, fmt.Errorf("tts request failed with status %d: %s", resp.StatusCode, string(audio))
	}

	logging.LogTTSOperation("synthesis_complete",
		zap.String("engine", e.name),
		zap.String("voice", voice),
		zap.Int("text_length", len(text)),
		zap.Duration("duration", time.Since(start)))

	return SynthesizeResult{
		Audio:      audio,
		Format:     format,
		EngineName: e.name,
	}, nil
}

// Health checks that the engine's voice list endpoint responds.
func (e *HTTPEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/audio/voices", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts health check failed with status %d", resp.StatusCode)
	}
	return nil
}
