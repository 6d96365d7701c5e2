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

// Package broker defines the durable, consumer-group-capable message bus
// the four pipeline stages read and write through, and the NATS JetStream
// implementation of it.
package broker

import (
	"context"
	"time"

	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

// Record is a single message read off a stream through a consumer group.
// Fields is the flat wire map; the embedded ack handles are bound to the
// broker implementation that produced the record.
type Record struct {
	ID            string
	Fields        pipeline.Fields
	DeliveryCount int

	ackFunc  func() error
	nakFunc  func(delay time.Duration) error
	termFunc func() error
}

// NewRecord constructs a Record bound to the given ack/nak/terminate
// closures. Broker implementations outside this package (test doubles,
// alternate transports) use this to satisfy the Record contract without
// reaching into its unexported fields.
func NewRecord(id string, fields pipeline.Fields, deliveryCount int, ack func() error, nak func(time.Duration) error, term func() error) *Record {
	return &Record{
		ID:            id,
		Fields:        fields,
		DeliveryCount: deliveryCount,
		ackFunc:       ack,
		nakFunc:       nak,
		termFunc:      term,
	}
}

// Ack acknowledges successful processing, removing the record from the
// group's pending set.
func (r *Record) Ack() error {
	if r.ackFunc == nil {
		return nil
	}
	return r.ackFunc()
}

// Nak signals a transient failure; the broker redelivers the record to the
// group after delay.
func (r *Record) Nak(delay time.Duration) error {
	if r.nakFunc == nil {
		return nil
	}
	return r.nakFunc(delay)
}

// Terminate marks the record as permanently failed with no further
// redelivery, used once a record has been copied to its dead-letter stream.
func (r *Record) Terminate() error {
	if r.termFunc == nil {
		return nil
	}
	return r.termFunc()
}

// StreamInfo summarizes a stream's size and sequence range.
type StreamInfo struct {
	Name     string
	Messages uint64
	Bytes    uint64
	FirstSeq uint64
	LastSeq  uint64
}

// GroupInfo summarizes a consumer group's delivery progress against a
// stream. NumAckPending is this group's own in-flight (delivered,
// unacknowledged) count as reported by the broker; it reflects the whole
// group, not any single consumer process.
type GroupInfo struct {
	Stream        string
	Name          string
	NumPending    uint64
	NumAckPending int
	NumRedelivered int
}

// PendingEntry describes one record currently delivered but unacknowledged,
// as observed by the broker process that last held it. Cross-process
// pending introspection is a known deviation from Redis-Streams-style
// XPENDING; see DESIGN.md.
type PendingEntry struct {
	ID            string
	DeliveryCount int
	DeliveredAt   time.Time
}

// Broker is the durable, at-least-once, consumer-group-capable bus every
// stage appends to and reads from.
type Broker interface {
	// EnsureStream creates the named stream if it does not already exist,
	// along with its dead-letter counterpart.
	EnsureStream(ctx context.Context, stream string) error

	// EnsureGroup creates the named durable consumer group on stream if it
	// does not already exist.
	EnsureGroup(ctx context.Context, stream, group string) error

	// Append writes fields onto stream and returns the assigned record id.
	Append(ctx context.Context, stream string, fields pipeline.Fields) (string, error)

	// ReadGroup blocks up to block for up to batchSize undelivered or
	// stale-redelivered records for group on stream.
	ReadGroup(ctx context.Context, stream, group string, batchSize int, block time.Duration) ([]*Record, error)

	// Claim sweeps records whose ack deadline has elapsed back into the
	// group's deliverable set. With JetStream this happens automatically on
	// the next ReadGroup call; Claim exists so stage loops can run an
	// explicit periodic sweep and log it, matching the contract a Redis
	// Streams broker would need XCLAIM for.
	Claim(ctx context.Context, stream, group string, minIdle time.Duration, batchSize int) ([]*Record, error)

	// Pending lists this process's own in-flight (delivered, unacknowledged)
	// records for group on stream.
	Pending(ctx context.Context, stream, group string) ([]PendingEntry, error)

	// StreamInfo reports the stream's size and sequence range.
	StreamInfo(ctx context.Context, stream string) (StreamInfo, error)

	// GroupInfo reports the group's delivery progress against stream.
	GroupInfo(ctx context.Context, stream, group string) (GroupInfo, error)

	// Close releases the broker's underlying connection.
	Close() error
}
