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

package responder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/llmgateway"
	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/stage"
)

// Responder is the Responder stage: it consumes Commands, asks an
// llmgateway.Gateway for an answer grounded in the session's recent
// history, and publishes a Reply.
type Responder struct {
	broker  broker.Broker
	gateway llmgateway.Gateway
	history History
	cfg     config.ResponderConfig
}

// New builds a Responder.
func New(b broker.Broker, gw llmgateway.Gateway, history History, cfg config.ResponderConfig) *Responder {
	return &Responder{broker: b, gateway: gw, history: history, cfg: cfg}
}

// Handler adapts Responder to a stage.Handler reading from hey_raven_commands
// and appending replies onto llm_responses.
func (r *Responder) Handler() stage.Handler {
	return func(ctx context.Context, rec *broker.Record) error {
		cmd, err := pipeline.DecodeCommand(rec.Fields)
		if err != nil {
			return stage.Permanent(err)
		}

		turns, err := r.history.Get(ctx, cmd.SessionUID)
		if err != nil {
			logging.LogWarn("history lookup failed, continuing without context",
				zap.String("session_uid", cmd.SessionUID), zap.Error(err))
		}

		persona := resolvePersona(r.cfg.Persona)
		messages := ToMessages(persona, turns, cmd.Question)
		messages = trimToBudget(r.cfg.Model, messages, r.cfg.MaxTokens)

		result, err := r.gateway.Generate(ctx, llmgateway.GenerateRequest{
			Model:       r.cfg.Model,
			Messages:    messages,
			Temperature: r.cfg.Temperature,
			MaxTokens:   r.cfg.MaxTokens,
		})
		if err != nil {
			if llmgateway.IsPermanent(err) {
				logging.LogError(err, "llm generate failed permanently, no reply will be sent",
					zap.String("session_uid", cmd.SessionUID))
				return stage.Permanent(err)
			}
			logging.LogWarn("llm generate still failing after internal retries, will redeliver",
				zap.String("session_uid", cmd.SessionUID), zap.Error(err))
			return err
		}

		responseText := result.Text
		if responseText == "" {
			responseText = r.cfg.EmptyReplyText
		}

		now := time.Now().UTC()
		reply := pipeline.Reply{
			Response:          responseText,
			SessionUID:        cmd.SessionUID,
			MeetingID:         cmd.MeetingID,
			OriginalQuestion:  cmd.Question,
			OriginalTimestamp: cmd.Timestamp,
			Timestamp:         now,
			MessageID:         uuid.New().String(),
		}

		if appendErr := r.history.Append(ctx, cmd.SessionUID, Turn{Question: cmd.Question, Answer: responseText}); appendErr != nil {
			logging.LogWarn("history append failed", zap.String("session_uid", cmd.SessionUID), zap.Error(appendErr))
		}

		if _, err := r.broker.Append(ctx, pipeline.StreamReplies, pipeline.EncodeReply(reply)); err != nil {
			return err
		}

		logging.LogLLMOperation("reply_dispatched",
			zap.String("session_uid", cmd.SessionUID), zap.String("message_id", reply.MessageID))
		return nil
	}
}
