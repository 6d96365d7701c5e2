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

package logging

import (
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	originalLevel := os.Getenv("LOG_LEVEL")
	originalFormat := os.Getenv("LOG_FORMAT")
	defer func() {
		_ = os.Setenv("LOG_LEVEL", originalLevel)
		_ = os.Setenv("LOG_FORMAT", originalFormat)
	}()

	tests := []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "Default values"},
		{name: "Info level console format", logLevel: "info", logFormat: "console"},
		{name: "Debug level JSON format", logLevel: "debug", logFormat: "json"},
		{name: "Invalid format defaults to console", logLevel: "info", logFormat: "invalid"},
		{name: "Invalid level defaults to info", logLevel: "invalid", logFormat: "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.logLevel != "" {
				_ = os.Setenv("LOG_LEVEL", tt.logLevel)
			} else {
				_ = os.Unsetenv("LOG_LEVEL")
			}
			if tt.logFormat != "" {
				_ = os.Setenv("LOG_FORMAT", tt.logFormat)
			} else {
				_ = os.Unsetenv("LOG_FORMAT")
			}

			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			if Logger == nil {
				t.Error("Logger should not be nil after initialization")
			}
			if Sugar == nil {
				t.Error("Sugar should not be nil after initialization")
			}

			Close()
		})
	}
}

func TestInitializeWithConfig(t *testing.T) {
	tests := []struct {
		name   string
		config LogConfig
	}{
		{name: "Console format info level", config: LogConfig{Level: "info", Format: "console"}},
		{name: "JSON format debug level", config: LogConfig{Level: "debug", Format: "json"}},
		{name: "Invalid format defaults to console", config: LogConfig{Level: "info", Format: "invalid"}},
		{name: "Empty config uses defaults", config: LogConfig{}},
		{name: "Case insensitive", config: LogConfig{Level: "INFO", Format: "JSON"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := InitializeWithConfig(tt.config); err != nil {
				t.Fatalf("InitializeWithConfig() unexpected error: %v", err)
			}
			if Logger == nil || Sugar == nil {
				t.Error("Logger and Sugar should be initialized")
			}
			Close()
		})
	}
}

func TestLoggingFunctions(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	Logger = zap.New(core)
	Sugar = Logger.Sugar()

	defer func() {
		Close()
		Logger = nil
		Sugar = nil
	}()

	t.Run("LogStageEvent", func(t *testing.T) {
		LogStageEvent("wakedetector", "claim sweep complete", zap.Int("claimed", 3))

		log := recorded.All()[len(recorded.All())-1]
		if log.Message != "claim sweep complete" {
			t.Errorf("Message = %q, want %q", log.Message, "claim sweep complete")
		}
		assertField(t, log, "component", "pipeline")
		assertField(t, log, "stage", "wakedetector")
	})

	t.Run("LogBrokerEvent", func(t *testing.T) {
		LogBrokerEvent("hey_raven_commands", "responder", "ack", zap.String("id", "1-0"))

		log := recorded.All()[len(recorded.All())-1]
		if log.Message != "broker event" {
			t.Errorf("Message = %q, want %q", log.Message, "broker event")
		}
		assertField(t, log, "component", "broker")
		assertField(t, log, "stream", "hey_raven_commands")
		assertField(t, log, "group", "responder")
		assertField(t, log, "action", "ack")
	})

	t.Run("LogWakeEvent", func(t *testing.T) {
		LogWakeEvent("S1", "admitted", zap.String("pattern_kind", "primary"))

		log := recorded.All()[len(recorded.All())-1]
		assertField(t, log, "component", "wakeword")
		assertField(t, log, "session_uid", "S1")
		assertField(t, log, "decision", "admitted")
	})

	t.Run("LogLLMOperation", func(t *testing.T) {
		LogLLMOperation("generate_start", zap.String("model", "test-model"))

		log := recorded.All()[len(recorded.All())-1]
		assertField(t, log, "component", "llm")
		assertField(t, log, "operation", "generate_start")
	})

	t.Run("LogTTSOperation", func(t *testing.T) {
		LogTTSOperation("synthesis_start", zap.String("engine", "primary"))

		log := recorded.All()[len(recorded.All())-1]
		if log.Message != "tts operation" {
			t.Errorf("Message = %q, want %q", log.Message, "tts operation")
		}
		assertField(t, log, "component", "tts")
		assertField(t, log, "operation", "synthesis_start")
	})

	t.Run("LogPlaybackEvent", func(t *testing.T) {
		LogPlaybackEvent("S1", "mic_muted")

		log := recorded.All()[len(recorded.All())-1]
		assertField(t, log, "component", "player")
		assertField(t, log, "session_uid", "S1")
		assertField(t, log, "event", "mic_muted")
	})

	t.Run("LogDatabaseOperation", func(t *testing.T) {
		LogDatabaseOperation("INSERT", "dead_letters", zap.Int("affected_rows", 1))

		log := recorded.All()[len(recorded.All())-1]
		assertField(t, log, "component", "database")
		assertField(t, log, "operation", "INSERT")
		assertField(t, log, "table", "dead_letters")
	})

	t.Run("LogError", func(t *testing.T) {
		LogError(errors.New("boom"), "something went wrong")

		log := recorded.All()[len(recorded.All())-1]
		if log.Level != zapcore.ErrorLevel {
			t.Errorf("Level = %v, want error", log.Level)
		}
	})

	t.Run("LogWarn", func(t *testing.T) {
		LogWarn("degraded match fallback")

		log := recorded.All()[len(recorded.All())-1]
		if log.Level != zapcore.WarnLevel {
			t.Errorf("Level = %v, want warn", log.Level)
		}
	})
}

func TestLoggingFunctions_NilLogger(t *testing.T) {
	originalLogger := Logger
	originalSugar := Sugar
	defer func() {
		Logger = originalLogger
		Sugar = originalSugar
	}()

	Logger = nil
	Sugar = nil

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("function panicked with nil logger: %v", r)
		}
	}()

	LogStageEvent("stage", "msg")
	LogBrokerEvent("stream", "group", "action")
	LogWakeEvent("S1", "dropped")
	LogLLMOperation("op")
	LogTTSOperation("op")
	LogPlaybackEvent("S1", "event")
	LogDatabaseOperation("op", "table")
	LogError(errors.New("x"), "msg")
	LogWarn("msg")
	Sync()
}

func TestGetEnvOrDefault(t *testing.T) {
	_ = os.Setenv("TEST_LOGGING_ENV_VAR", "env_value")
	defer func() { _ = os.Unsetenv("TEST_LOGGING_ENV_VAR") }()

	if got := getEnvOrDefault("TEST_LOGGING_ENV_VAR", "default"); got != "env_value" {
		t.Errorf("getEnvOrDefault() = %q, want %q", got, "env_value")
	}

	_ = os.Unsetenv("TEST_LOGGING_ENV_VAR_MISSING")
	if got := getEnvOrDefault("TEST_LOGGING_ENV_VAR_MISSING", "default"); got != "default" {
		t.Errorf("getEnvOrDefault() = %q, want %q", got, "default")
	}
}

func assertField(t *testing.T, entry observer.LoggedEntry, key, want string) {
	t.Helper()
	for _, field := range entry.Context {
		if field.Key == key {
			if field.String != want {
				t.Errorf("field %q = %q, want %q", key, field.String, want)
			}
			return
		}
	}
	t.Errorf("missing field %q", key)
}
