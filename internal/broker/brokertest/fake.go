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

// Package brokertest provides an in-memory Broker double for exercising
// stage wiring without a live NATS server.
package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

type queuedRecord struct {
	id            string
	fields        pipeline.Fields
	deliveryCount int
	delivered     bool
}

// FakeBroker is a single-process, in-memory stand-in for broker.Broker.
// Streams and groups are created implicitly. Delivery and ack/nak/term are
// modeled with plain slices guarded by a mutex; there is no real
// redelivery-on-timeout, so tests drive Claim explicitly.
type FakeBroker struct {
	mu       sync.Mutex
	seq      int
	streams  map[string][]*queuedRecord
	dlq      map[string][]pipeline.Fields
	groups   map[string]map[string]bool // stream -> group -> exists
	Deadline map[string]bool            // test hook: stream|id forced stale for Claim
}

// NewFakeBroker constructs an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{
		streams:  make(map[string][]*queuedRecord),
		dlq:      make(map[string][]pipeline.Fields),
		groups:   make(map[string]map[string]bool),
		Deadline: make(map[string]bool),
	}
}

func (f *FakeBroker) EnsureStream(ctx context.Context, stream string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.streams[stream]; !ok {
		f.streams[stream] = nil
	}
	dlqName := pipeline.DLQStream(stream)
	if _, ok := f.streams[dlqName]; !ok {
		f.streams[dlqName] = nil
	}
	return nil
}

func (f *FakeBroker) EnsureGroup(ctx context.Context, stream, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groups[stream] == nil {
		f.groups[stream] = make(map[string]bool)
	}
	f.groups[stream][group] = true
	return nil
}

func (f *FakeBroker) Append(ctx context.Context, stream string, fields pipeline.Fields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	id := fmt.Sprintf("%d", f.seq)

	if stream != "" && len(stream) > 4 && stream[len(stream)-4:] == ".dlq" {
		f.dlq[stream] = append(f.dlq[stream], fields)
		return id, nil
	}

	f.streams[stream] = append(f.streams[stream], &queuedRecord{id: id, fields: fields})
	return id, nil
}

func (f *FakeBroker) ReadGroup(ctx context.Context, stream, group string, batchSize int, block time.Duration) ([]*broker.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*broker.Record
	for _, rec := range f.streams[stream] {
		if len(out) >= batchSize {
			break
		}
		if rec.delivered {
			continue
		}
		rec.delivered = true
		rec.deliveryCount++
		out = append(out, f.wrap(stream, rec))
	}
	return out, nil
}

func (f *FakeBroker) Claim(ctx context.Context, stream, group string, minIdle time.Duration, batchSize int) ([]*broker.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*broker.Record
	for _, rec := range f.streams[stream] {
		if len(out) >= batchSize {
			break
		}
		if !rec.delivered || !f.Deadline[stream+"|"+rec.id] {
			continue
		}
		rec.deliveryCount++
		delete(f.Deadline, stream+"|"+rec.id)
		out = append(out, f.wrap(stream, rec))
	}
	return out, nil
}

func (f *FakeBroker) Pending(ctx context.Context, stream, group string) ([]broker.PendingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entries []broker.PendingEntry
	for _, rec := range f.streams[stream] {
		if rec.delivered {
			entries = append(entries, broker.PendingEntry{ID: rec.id, DeliveryCount: rec.deliveryCount})
		}
	}
	return entries, nil
}

func (f *FakeBroker) StreamInfo(ctx context.Context, stream string) (broker.StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return broker.StreamInfo{Name: stream, Messages: uint64(len(f.streams[stream]))}, nil
}

func (f *FakeBroker) GroupInfo(ctx context.Context, stream, group string) (broker.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending int
	for _, rec := range f.streams[stream] {
		if rec.delivered {
			pending++
		}
	}
	return broker.GroupInfo{Stream: stream, Name: group, NumAckPending: pending}, nil
}

func (f *FakeBroker) Close() error { return nil }

// DLQMessages returns everything appended to stream's dead-letter stream,
// for test assertions.
func (f *FakeBroker) DLQMessages(stream string) []pipeline.Fields {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dlq[pipeline.DLQStream(stream)]
}

func (f *FakeBroker) wrap(stream string, rec *queuedRecord) *broker.Record {
	return broker.NewRecord(rec.id, rec.fields, rec.deliveryCount,
		func() error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.removeLocked(stream, rec.id)
			return nil
		},
		func(delay time.Duration) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, r := range f.streams[stream] {
				if r.id == rec.id {
					r.delivered = false
				}
			}
			return nil
		},
		func() error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.removeLocked(stream, rec.id)
			return nil
		},
	)
}

func (f *FakeBroker) removeLocked(stream, id string) {
	recs := f.streams[stream]
	for i, r := range recs {
		if r.id == id {
			f.streams[stream] = append(recs[:i], recs[i+1:]...)
			return
		}
	}
}
