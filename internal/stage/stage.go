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

// Package stage provides the read-process-ack loop every pipeline stage
// binary runs: ensure its stream and consumer group exist, pull batches of
// records, dispatch them across a worker pool, and ack, redeliver, or
// dead-letter each one based on how the handler returns.
package stage

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
	"github.com/heyraven/raven-pipeline/internal/storage"
)

// Handler processes one record. A nil return acks it; a Permanent-wrapped
// or delivery-exhausted error dead-letters it; any other error leaves it to
// be redelivered.
type Handler func(ctx context.Context, rec *broker.Record) error

// Config parameterizes a Loop.
type Config struct {
	StageName     string
	Stream        string
	Group         string
	MaxDeliveries int
	BatchSize     int
	BlockFor      time.Duration
	ClaimInterval time.Duration
	MinIdle       time.Duration
	PoolMin       int
	PoolMax       int
}

// Loop runs Config's read-process-ack cycle against a Broker until its
// context is cancelled.
type Loop struct {
	broker  broker.Broker
	cfg     Config
	handler Handler
	dlq     *storage.DeadLetterStore
}

// New constructs a Loop. dlq may be nil to skip the sqlite dead-letter
// mirror and rely on the broker's own .dlq stream alone.
func New(b broker.Broker, cfg Config, handler Handler, dlq *storage.DeadLetterStore) *Loop {
	return &Loop{broker: b, cfg: cfg, handler: handler, dlq: dlq}
}

// Run blocks until ctx is cancelled or setup fails.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.broker.EnsureStream(ctx, l.cfg.Stream); err != nil {
		return err
	}
	if err := l.broker.EnsureGroup(ctx, l.cfg.Stream, l.cfg.Group); err != nil {
		return err
	}

	poolSize := clampPool(runtime.NumCPU(), l.cfg.PoolMin, l.cfg.PoolMax)
	work := make(chan *broker.Record)

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go l.worker(ctx, work, &wg)
	}

	logging.LogStageEvent(l.cfg.StageName, "stage loop started",
		zap.String("stream", l.cfg.Stream), zap.String("group", l.cfg.Group), zap.Int("pool_size", poolSize))

	claimTicker := time.NewTicker(l.cfg.ClaimInterval)
	defer claimTicker.Stop()

	defer func() {
		close(work)
		wg.Wait()
		logging.LogStageEvent(l.cfg.StageName, "stage loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-claimTicker.C:
			claimed, err := l.broker.Claim(ctx, l.cfg.Stream, l.cfg.Group, l.cfg.MinIdle, l.cfg.BatchSize)
			if err != nil {
				logging.LogWarn("claim sweep failed", zap.String("stage", l.cfg.StageName), zap.Error(err))
				continue
			}
			if len(claimed) > 0 {
				logging.LogBrokerEvent(l.cfg.Stream, l.cfg.Group, "claim", zap.Int("count", len(claimed)))
			}
			l.dispatchAll(ctx, work, claimed)
		default:
			recs, err := l.broker.ReadGroup(ctx, l.cfg.Stream, l.cfg.Group, l.cfg.BatchSize, l.cfg.BlockFor)
			if err != nil {
				logging.LogWarn("read group failed", zap.String("stage", l.cfg.StageName), zap.Error(err))
				continue
			}
			l.dispatchAll(ctx, work, recs)
		}
	}
}

func (l *Loop) dispatchAll(ctx context.Context, work chan<- *broker.Record, recs []*broker.Record) {
	for _, rec := range recs {
		select {
		case work <- rec:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) worker(ctx context.Context, work <-chan *broker.Record, wg *sync.WaitGroup) {
	defer wg.Done()
	for rec := range work {
		err := l.handler(ctx, rec)
		if err == nil {
			if ackErr := rec.Ack(); ackErr != nil {
				logging.LogWarn("ack failed", zap.String("stage", l.cfg.StageName), zap.Error(ackErr))
			}
			continue
		}

		if isPermanent(err) || rec.DeliveryCount >= l.cfg.MaxDeliveries {
			l.deadLetter(ctx, rec, err)
			continue
		}

		logging.LogWarn("handler failed, will redeliver",
			zap.String("stage", l.cfg.StageName), zap.Int("delivery_count", rec.DeliveryCount), zap.Error(err))
		if nakErr := rec.Nak(0); nakErr != nil {
			logging.LogWarn("nak failed", zap.String("stage", l.cfg.StageName), zap.Error(nakErr))
		}
	}
}

func (l *Loop) deadLetter(ctx context.Context, rec *broker.Record, cause error) {
	if _, err := l.broker.Append(ctx, pipeline.DLQStream(l.cfg.Stream), rec.Fields); err != nil {
		logging.LogError(err, "failed to append to dead-letter stream",
			zap.String("stage", l.cfg.StageName), zap.String("record_id", rec.ID))
	}

	if l.dlq != nil {
		entry := &storage.DeadLetter{
			SourceStream:   l.cfg.Stream,
			ConsumerGroup:  l.cfg.Group,
			RecordID:       rec.ID,
			RecordType:     rec.Fields["type"],
			SessionUID:     rec.Fields["session_uid"],
			MeetingID:      rec.Fields["meeting_id"],
			Fields:         rec.Fields,
			DeliveryCount:  rec.DeliveryCount,
			LastError:      cause.Error(),
			DeadLetteredAt: time.Now().UTC(),
		}
		if err := l.dlq.Insert(entry); err != nil {
			logging.LogError(err, "failed to mirror dead letter to sqlite")
		}
	}

	if err := rec.Terminate(); err != nil {
		logging.LogWarn("terminate failed", zap.String("stage", l.cfg.StageName), zap.Error(err))
	}

	logging.LogBrokerEvent(l.cfg.Stream, l.cfg.Group, "dead_letter",
		zap.String("record_id", rec.ID), zap.Int("delivery_count", rec.DeliveryCount), zap.Error(cause))
}

func clampPool(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
