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

// Package config loads the environment-variable-driven configuration shared
// by the four pipeline stage binaries and the operator CLI, with an
// optional yaml file underneath it for settings operators would rather
// check into a repo than pass as env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for a pipeline stage process. Every stage
// binary loads the whole struct but only reads the sections relevant to it.
type Config struct {
	Broker      BrokerConfig
	WakeWord    WakeWordConfig
	Responder   ResponderConfig
	Synthesizer SynthesizerConfig
	Bot         BotConfig
	Worker      WorkerConfig
	Logging     LoggingConfig
	Health      HealthConfig
}

// BrokerConfig holds the durable-stream broker connection and delivery
// settings shared by every stage.
type BrokerConfig struct {
	URL            string
	ConsumerGroup  string
	MaxDeliveries  int
	AckWait        time.Duration
	ClaimInterval  time.Duration
	ReadBatchSize  int
	ReadBlock      time.Duration
	MaxReconnect   int
	ReconnectWait  time.Duration
}

// WakeWordConfig holds WakeDetector pattern matching and rate-limit settings.
type WakeWordConfig struct {
	PatternsFile       string
	FuzzyEnabled       bool
	FuzzyMaxDistance   int
	MinQuestionLength  int
	MaxQuestionLength  int
	ThresholdPrimary   float64
	ThresholdSecondary float64
	RateLimitMaxPerMin int
	RateLimitCooldown  time.Duration
	ReloadPollInterval time.Duration
}

// ResponderConfig holds LLM gateway and conversation-history settings.
type ResponderConfig struct {
	Backend          string // "http" or "openai"
	URL              string
	APIKey           string
	Model            string
	Persona          string
	Temperature      float32
	MaxTokens        int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RequestTimeout   time.Duration
	HistorySize      int
	HistoryBackend   string // "memory" or "redis"
	RedisURL         string
	EmptyReplyText   string
}

// SynthesizerConfig holds TTS gateway settings.
type SynthesizerConfig struct {
	PrimaryURL       string
	PrimaryVoice     string
	PrimaryFormat    string
	FallbackVoice    string
	FallbackFormat   string
	DefaultLanguage  string
	MaxTextLength    int
	RequestTimeout   time.Duration
	MaxConcurrent    int
}

// BotConfig holds Player, websocket bridge, and bot-manager callback settings.
type BotConfig struct {
	ManagerCallbackURL string
	BridgeListenAddr   string
	PlaybackTimeout    time.Duration
	DedupWindowSize    int
	SessionMatchMode   string // "strict" or "degraded"
}

// WorkerConfig holds worker-pool sizing shared by all stages.
type WorkerConfig struct {
	PoolSizeMin int
	PoolSizeMax int
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// HealthConfig holds the shared health/stats HTTP server settings.
type HealthConfig struct {
	ListenAddr string
}

// Load loads configuration from an optional yaml file (pointed to by
// RAVEN_CONFIG_FILE) overlaid with environment variables, which always win.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("RAVEN_CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load environment config: %w", err)
	}

	config := &Config{
		Broker: BrokerConfig{
			URL:           getString(k, "RAVEN_BROKER_URL", "nats://localhost:4222"),
			ConsumerGroup: getString(k, "RAVEN_CONSUMER_GROUP", "raven"),
			MaxDeliveries: getInt(k, "RAVEN_MAX_DELIVERIES", 5),
			AckWait:       getDuration(k, "RAVEN_ACK_WAIT", 30*time.Second),
			ClaimInterval: getDuration(k, "RAVEN_CLAIM_INTERVAL", 15*time.Second),
			ReadBatchSize: getInt(k, "RAVEN_READ_BATCH_SIZE", 16),
			ReadBlock:     getDuration(k, "RAVEN_READ_BLOCK", 5*time.Second),
			MaxReconnect:  getInt(k, "RAVEN_BROKER_MAX_RECONNECT", 10),
			ReconnectWait: getDuration(k, "RAVEN_BROKER_RECONNECT_WAIT", 2*time.Second),
		},
		WakeWord: WakeWordConfig{
			PatternsFile:       getString(k, "RAVEN_WAKE_PATTERNS_FILE", "config/wake_patterns.yaml"),
			FuzzyEnabled:       getBool(k, "RAVEN_WAKE_FUZZY_ENABLED", true),
			FuzzyMaxDistance:   getInt(k, "RAVEN_WAKE_FUZZY_MAX_DISTANCE", 2),
			MinQuestionLength:  getInt(k, "RAVEN_WAKE_MIN_QUESTION_LENGTH", 2),
			MaxQuestionLength:  getInt(k, "RAVEN_WAKE_MAX_QUESTION_LENGTH", 500),
			ThresholdPrimary:   getFloat64(k, "RAVEN_WAKE_THRESHOLD_PRIMARY", 0.9),
			ThresholdSecondary: getFloat64(k, "RAVEN_WAKE_THRESHOLD_SECONDARY", 0.7),
			RateLimitMaxPerMin: getInt(k, "RAVEN_WAKE_RATE_LIMIT", 5),
			RateLimitCooldown:  getDuration(k, "RAVEN_WAKE_RATE_LIMIT_COOLDOWN", 3*time.Second),
			ReloadPollInterval: getDuration(k, "RAVEN_WAKE_RELOAD_POLL_INTERVAL", 5*time.Second),
		},
		Responder: ResponderConfig{
			Backend:        getString(k, "RAVEN_LLM_BACKEND", "http"),
			URL:            getString(k, "RAVEN_LLM_URL", "http://localhost:11434"),
			APIKey:         getString(k, "RAVEN_LLM_API_KEY", ""),
			Model:          getString(k, "RAVEN_LLM_MODEL", "llama3"),
			Persona:        getString(k, "RAVEN_PERSONA", "You are Raven, a concise meeting assistant."),
			Temperature:    getFloat32(k, "RAVEN_LLM_TEMPERATURE", 0.7),
			MaxTokens:      getInt(k, "RAVEN_LLM_MAX_TOKENS", 512),
			MaxRetries:     getInt(k, "RAVEN_LLM_MAX_RETRIES", 3),
			RetryBaseDelay: getDuration(k, "RAVEN_LLM_RETRY_BASE_DELAY", 500*time.Millisecond),
			RequestTimeout: getDuration(k, "RAVEN_LLM_REQUEST_TIMEOUT", 20*time.Second),
			HistorySize:    getInt(k, "RAVEN_HISTORY_SIZE", 10),
			HistoryBackend: getString(k, "RAVEN_HISTORY_BACKEND", "memory"),
			RedisURL:       getString(k, "RAVEN_HISTORY_REDIS_URL", "redis://localhost:6379/0"),
			EmptyReplyText: getString(k, "RAVEN_EMPTY_REPLY_TEXT", "I don't have a response for that right now."),
		},
		Synthesizer: SynthesizerConfig{
			PrimaryURL:      getString(k, "RAVEN_TTS_URL", "http://localhost:8880/v1"),
			PrimaryVoice:    getString(k, "RAVEN_TTS_VOICE", "af_bella"),
			PrimaryFormat:   getString(k, "RAVEN_TTS_FORMAT", "wav"),
			FallbackVoice:   getString(k, "RAVEN_TTS_FALLBACK_VOICE", "tone"),
			FallbackFormat:  getString(k, "RAVEN_TTS_FALLBACK_FORMAT", "wav"),
			DefaultLanguage: getString(k, "RAVEN_TTS_DEFAULT_LANGUAGE", "en"),
			MaxTextLength:   getInt(k, "RAVEN_TTS_MAX_TEXT_LENGTH", 2000),
			RequestTimeout:  getDuration(k, "RAVEN_TTS_REQUEST_TIMEOUT", 15*time.Second),
			MaxConcurrent:   getInt(k, "RAVEN_TTS_MAX_CONCURRENT", 4),
		},
		Bot: BotConfig{
			ManagerCallbackURL: getString(k, "RAVEN_BOT_MANAGER_CALLBACK_URL", ""),
			BridgeListenAddr:   getString(k, "RAVEN_BOT_BRIDGE_ADDR", ":8765"),
			PlaybackTimeout:    getDuration(k, "RAVEN_BOT_PLAYBACK_TIMEOUT", 30*time.Second),
			DedupWindowSize:    getInt(k, "RAVEN_BOT_DEDUP_WINDOW", 64),
			SessionMatchMode:   getString(k, "RAVEN_BOT_SESSION_MATCH_MODE", "strict"),
		},
		Worker: WorkerConfig{
			PoolSizeMin: getInt(k, "RAVEN_WORKER_POOL_MIN", 2),
			PoolSizeMax: getInt(k, "RAVEN_WORKER_POOL_MAX", 16),
		},
		Logging: LoggingConfig{
			Level:  getString(k, "LOG_LEVEL", "info"),
			Format: getString(k, "LOG_FORMAT", "json"),
		},
		Health: HealthConfig{
			ListenAddr: getString(k, "RAVEN_HEALTH_ADDR", ":9090"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("broker URL must be provided")
	}

	if c.Broker.MaxDeliveries <= 0 {
		return fmt.Errorf("broker max deliveries must be positive: %d", c.Broker.MaxDeliveries)
	}

	if c.Broker.ReadBatchSize <= 0 {
		return fmt.Errorf("broker read batch size must be positive: %d", c.Broker.ReadBatchSize)
	}

	if c.WakeWord.PatternsFile == "" {
		return fmt.Errorf("wake patterns file must be provided")
	}

	if c.WakeWord.FuzzyMaxDistance < 0 {
		return fmt.Errorf("wake fuzzy max distance must not be negative: %d", c.WakeWord.FuzzyMaxDistance)
	}

	if c.WakeWord.MinQuestionLength <= 0 || c.WakeWord.MinQuestionLength > c.WakeWord.MaxQuestionLength {
		return fmt.Errorf("invalid wake question length bounds: min=%d max=%d",
			c.WakeWord.MinQuestionLength, c.WakeWord.MaxQuestionLength)
	}

	if c.Responder.Backend != "http" && c.Responder.Backend != "openai" {
		return fmt.Errorf("unknown LLM backend: %s", c.Responder.Backend)
	}

	if c.Responder.MaxTokens <= 0 {
		return fmt.Errorf("LLM max tokens must be positive: %d", c.Responder.MaxTokens)
	}

	if c.Responder.HistoryBackend != "memory" && c.Responder.HistoryBackend != "redis" {
		return fmt.Errorf("unknown history backend: %s", c.Responder.HistoryBackend)
	}

	if c.Synthesizer.PrimaryURL == "" {
		return fmt.Errorf("TTS primary URL must be provided")
	}

	if c.Synthesizer.MaxTextLength <= 0 {
		return fmt.Errorf("TTS max text length must be positive: %d", c.Synthesizer.MaxTextLength)
	}

	if c.Synthesizer.MaxConcurrent <= 0 {
		return fmt.Errorf("TTS max concurrent must be positive: %d", c.Synthesizer.MaxConcurrent)
	}

	if c.Bot.SessionMatchMode != "strict" && c.Bot.SessionMatchMode != "degraded" {
		return fmt.Errorf("unknown bot session match mode: %s", c.Bot.SessionMatchMode)
	}

	if c.Bot.DedupWindowSize <= 0 {
		return fmt.Errorf("bot dedup window size must be positive: %d", c.Bot.DedupWindowSize)
	}

	if c.Worker.PoolSizeMin <= 0 || c.Worker.PoolSizeMin > c.Worker.PoolSizeMax {
		return fmt.Errorf("invalid worker pool size bounds: min=%d max=%d", c.Worker.PoolSizeMin, c.Worker.PoolSizeMax)
	}

	return nil
}

// Helper functions for reading typed values out of the merged koanf tree,
// falling back to a default when the key is absent or malformed.
func getString(k *koanf.Koanf, key, defaultValue string) string {
	if value := k.String(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(k *koanf.Koanf, key string, defaultValue int) int {
	if value := k.String(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat32(k *koanf.Koanf, key string, defaultValue float32) float32 {
	if value := k.String(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getFloat64(k *koanf.Koanf, key string, defaultValue float64) float64 {
	if value := k.String(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDuration(k *koanf.Koanf, key string, defaultValue time.Duration) time.Duration {
	if value := k.String(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBool(k *koanf.Koanf, key string, defaultValue bool) bool {
	if value := k.String(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
