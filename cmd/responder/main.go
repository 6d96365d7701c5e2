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

// Command responder runs the Responder stage: it turns Commands into
// Replies by calling an LLM gateway grounded in each session's recent
// conversation history.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/health"
	"github.com/heyraven/raven-pipeline/internal/llmgateway"
	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/responder"
	"github.com/heyraven/raven-pipeline/internal/stage"
)

func buildHistory(cfg config.ResponderConfig) responder.History {
	if cfg.HistoryBackend == "redis" {
		h, err := responder.NewRedisHistory(cfg.RedisURL, cfg.HistorySize)
		if err != nil {
			logging.LogError(err, "failed to connect to redis history backend, falling back to in-memory")
			return responder.NewMemoryHistory(cfg.HistorySize)
		}
		return h
	}
	return responder.NewMemoryHistory(cfg.HistorySize)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logging.InitializeWithConfig(logging.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		panic(err)
	}
	defer logging.Sync()

	b, err := broker.NewNATSBroker(broker.NATSBrokerConfig{
		URL:           cfg.Broker.URL,
		Name:          "responder",
		MaxReconnect:  cfg.Broker.MaxReconnect,
		ReconnectWait: cfg.Broker.ReconnectWait,
	})
	if err != nil {
		logging.LogError(err, "failed to connect to broker")
		os.Exit(1)
	}
	defer b.Close()

	gateway, err := llmgateway.New(cfg.Responder)
	if err != nil {
		logging.LogError(err, "failed to build llm gateway")
		os.Exit(1)
	}

	history := buildHistory(cfg.Responder)
	resp := responder.New(b, gateway, history, cfg.Responder)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	admin := health.New(cfg.Health.ListenAddr, "responder", func() error { return gateway.Health(ctx) }, nil)
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			logging.LogError(err, "admin server failed")
		}
	}()

	loop := stage.New(b, stage.Config{
		StageName:     "responder",
		Stream:        pipeline.StreamCommands,
		Group:         cfg.Broker.ConsumerGroup,
		MaxDeliveries: cfg.Broker.MaxDeliveries,
		BatchSize:     cfg.Broker.ReadBatchSize,
		BlockFor:      cfg.Broker.ReadBlock,
		ClaimInterval: cfg.Broker.ClaimInterval,
		MinIdle:       cfg.Broker.AckWait,
		PoolMin:       cfg.Worker.PoolSizeMin,
		PoolMax:       cfg.Worker.PoolSizeMax,
	}, resp.Handler(), nil)

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		logging.LogError(err, "stage loop exited")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	admin.Shutdown(shutdownCtx)

	logging.LogStageEvent("responder", "shutdown complete", zap.String("signal", "received"))
}
