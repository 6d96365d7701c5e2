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

// Command bot runs the Player: it hosts a bridge to the meeting bot's
// browser-automation process, gates incoming Audio records against the
// bot's current recognizer session, and plays them in FIFO order.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/bot"
	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/health"
	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/stage"
)

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

	connectionID := os.Getenv("RAVEN_BOT_CONNECTION_ID")
	if connectionID == "" {
		connectionID = "unknown-connection"
	}

	b, err := broker.NewNATSBroker(broker.NATSBrokerConfig{
		URL:           cfg.Broker.URL,
		Name:          "bot-" + connectionID,
		MaxReconnect:  cfg.Broker.MaxReconnect,
		ReconnectWait: cfg.Broker.ReconnectWait,
	})
	if err != nil {
		logging.LogError(err, "failed to connect to broker")
		os.Exit(1)
	}
	defer b.Close()

	bridge := bot.NewWebSocketBridge()
	player, err := bot.New(connectionID, cfg.Bot, bridge)
	if err != nil {
		logging.LogError(err, "failed to build player")
		os.Exit(1)
	}
	bridge.BindPlayer(player)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bridgeMux := http.NewServeMux()
	bridgeMux.Handle("/bridge", bridge)
	bridgeServer := &http.Server{Addr: cfg.Bot.BridgeListenAddr, Handler: bridgeMux}
	go func() {
		if err := bridgeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.LogError(err, "bridge server failed")
		}
	}()

	admin := health.New(cfg.Health.ListenAddr, "bot", func() error { return b.Health(ctx) }, func() any {
		return map[string]string{"state": string(player.State())}
	})
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			logging.LogError(err, "admin server failed")
		}
	}()

	botStage := bot.NewStage(player)

	loop := stage.New(b, stage.Config{
		StageName:     "bot",
		Stream:        pipeline.StreamAudio,
		Group:         cfg.Broker.ConsumerGroup,
		MaxDeliveries: cfg.Broker.MaxDeliveries,
		BatchSize:     cfg.Broker.ReadBatchSize,
		BlockFor:      cfg.Broker.ReadBlock,
		ClaimInterval: cfg.Broker.ClaimInterval,
		MinIdle:       cfg.Broker.AckWait,
		PoolMin:       cfg.Worker.PoolSizeMin,
		PoolMax:       cfg.Worker.PoolSizeMax,
	}, botStage.Handler(), nil)

	runErr := loop.Run(ctx)

	exitCode := bot.ExitNormal
	errDetails := ""
	if runErr != nil && runErr != context.Canceled {
		exitCode = bot.ExitCode(1)
		errDetails = runErr.Error()
		logging.LogError(runErr, "stage loop exited")
	} else {
		switch ctx.Err() {
		case context.Canceled:
			exitCode = bot.ExitSignalInterrupt
		}
	}

	player.Drain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Bot.PlaybackTimeout+5*time.Second)
	defer shutdownCancel()

	admin.Shutdown(shutdownCtx)
	bridgeServer.Shutdown(shutdownCtx)

	if err := bot.NotifyManager(shutdownCtx, cfg.Bot.ManagerCallbackURL, connectionID, exitCode, errDetails); err != nil {
		logging.LogError(err, "manager callback failed")
	}

	logging.LogStageEvent("bot", "shutdown complete", zap.String("connection_id", connectionID))
}
