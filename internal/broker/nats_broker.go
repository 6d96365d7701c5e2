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

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/heyraven/raven-pipeline/internal/logging"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

// NATSBroker implements Broker on top of a NATS JetStream connection. Each
// stream name becomes a JetStream stream of the same name with a single
// subject equal to the stream name; each consumer group becomes a durable
// pull consumer on that stream.
type NATSBroker struct {
	conn *nats.Conn
	js   jetstream.JetStream

	mu      sync.Mutex
	pending map[string]map[string]PendingEntry // stream|group -> record id -> entry
}

// NATSBrokerConfig configures the underlying NATS connection.
type NATSBrokerConfig struct {
	URL           string
	Name          string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// NewNATSBroker connects to NATS and wraps it as a Broker.
func NewNATSBroker(cfg NATSBrokerConfig) (*NATSBroker, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.LogBrokerEvent("", "", "disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.LogBrokerEvent("", "", "reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.LogBrokerEvent("", "", "closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize jetstream: %w", err)
	}

	return &NATSBroker{
		conn:    conn,
		js:      js,
		pending: make(map[string]map[string]PendingEntry),
	}, nil
}

func (b *NATSBroker) EnsureStream(ctx context.Context, stream string) error {
	if err := b.ensureOneStream(ctx, stream); err != nil {
		return err
	}
	return b.ensureOneStream(ctx, pipeline.DLQStream(stream))
}

func (b *NATSBroker) ensureOneStream(ctx context.Context, name string) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{name},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}
	return nil
}

func (b *NATSBroker) EnsureGroup(ctx context.Context, stream, group string) error {
	js, err := b.js.Stream(ctx, stream)
	if err != nil {
		return fmt.Errorf("failed to look up stream %s: %w", stream, err)
	}

	_, err = js.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    group,
		AckPolicy:  jetstream.AckExplicitPolicy,
		MaxDeliver: 0, // unbounded at the broker; stages enforce max deliveries themselves
		AckWait:    30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (b *NATSBroker) Append(ctx context.Context, stream string, fields pipeline.Fields) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	ack, err := b.js.Publish(ctx, stream, data)
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", stream, err)
	}

	return fmt.Sprintf("%d", ack.Sequence), nil
}

func (b *NATSBroker) ReadGroup(ctx context.Context, stream, group string, batchSize int, block time.Duration) ([]*Record, error) {
	js, err := b.js.Stream(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to look up stream %s: %w", stream, err)
	}

	cons, err := js.Consumer(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to look up consumer %s on %s: %w", group, stream, err)
	}

	batch, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(block))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from %s/%s: %w", stream, group, err)
	}

	var records []*Record
	for msg := range batch.Messages() {
		rec, err := b.toRecord(stream, group, msg)
		if err != nil {
			logging.LogWarn("dropping unparseable record", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	if err := batch.Error(); err != nil && len(records) == 0 {
		return nil, fmt.Errorf("fetch batch error on %s/%s: %w", stream, group, err)
	}

	return records, nil
}

// Claim re-polls for records whose ack deadline elapsed. JetStream pull
// consumers redeliver stale records to whoever calls Fetch next, so a claim
// sweep is implemented as an ordinary fetch; see DESIGN.md for why this
// satisfies the same contract a Redis Streams XCLAIM would serve.
func (b *NATSBroker) Claim(ctx context.Context, stream, group string, minIdle time.Duration, batchSize int) ([]*Record, error) {
	return b.ReadGroup(ctx, stream, group, batchSize, 0)
}

func (b *NATSBroker) Pending(ctx context.Context, stream, group string) ([]PendingEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := stream + "|" + group
	bucket := b.pending[key]
	entries := make([]PendingEntry, 0, len(bucket))
	for _, e := range bucket {
		entries = append(entries, e)
	}
	return entries, nil
}

func (b *NATSBroker) StreamInfo(ctx context.Context, stream string) (StreamInfo, error) {
	s, err := b.js.Stream(ctx, stream)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("failed to look up stream %s: %w", stream, err)
	}

	info, err := s.Info(ctx)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("failed to get info for stream %s: %w", stream, err)
	}

	return StreamInfo{
		Name:     stream,
		Messages: info.State.Msgs,
		Bytes:    info.State.Bytes,
		FirstSeq: info.State.FirstSeq,
		LastSeq:  info.State.LastSeq,
	}, nil
}

func (b *NATSBroker) GroupInfo(ctx context.Context, stream, group string) (GroupInfo, error) {
	s, err := b.js.Stream(ctx, stream)
	if err != nil {
		return GroupInfo{}, fmt.Errorf("failed to look up stream %s: %w", stream, err)
	}

	cons, err := s.Consumer(ctx, group)
	if err != nil {
		return GroupInfo{}, fmt.Errorf("failed to look up consumer %s on %s: %w", group, stream, err)
	}

	info, err := cons.Info(ctx)
	if err != nil {
		return GroupInfo{}, fmt.Errorf("failed to get info for consumer %s on %s: %w", group, stream, err)
	}

	return GroupInfo{
		Stream:         stream,
		Name:           group,
		NumPending:     info.NumPending,
		NumAckPending:  info.NumAckPending,
		NumRedelivered: info.NumRedelivered,
	}, nil
}

func (b *NATSBroker) Close() error {
	b.conn.Close()
	return nil
}

// Health reports an error if the underlying NATS connection is not
// currently connected, for the admin server's /health endpoint.
func (b *NATSBroker) Health(ctx context.Context) error {
	if status := b.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection status: %s", status.String())
	}
	return nil
}

func (b *NATSBroker) toRecord(stream, group string, msg jetstream.Msg) (*Record, error) {
	var fields pipeline.Fields
	if err := json.Unmarshal(msg.Data(), &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	meta, err := msg.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read record metadata: %w", err)
	}

	id := fmt.Sprintf("%d", meta.Sequence.Stream)
	key := stream + "|" + group

	b.mu.Lock()
	if b.pending[key] == nil {
		b.pending[key] = make(map[string]PendingEntry)
	}
	b.pending[key][id] = PendingEntry{
		ID:            id,
		DeliveryCount: int(meta.NumDelivered),
		DeliveredAt:   time.Now().UTC(),
	}
	b.mu.Unlock()

	clearPending := func() {
		b.mu.Lock()
		delete(b.pending[key], id)
		b.mu.Unlock()
	}

	return &Record{
		ID:            id,
		Fields:        fields,
		DeliveryCount: int(meta.NumDelivered),
		ackFunc: func() error {
			clearPending()
			return msg.Ack()
		},
		nakFunc: func(delay time.Duration) error {
			clearPending()
			if delay > 0 {
				return msg.NakWithDelay(delay)
			}
			return msg.Nak()
		},
		termFunc: func() error {
			clearPending()
			return msg.Term()
		},
	}, nil
}
