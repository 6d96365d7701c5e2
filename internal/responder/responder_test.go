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
	"errors"
	"testing"
	"time"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/broker/brokertest"
	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/llmgateway"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

type fakeGateway struct {
	result llmgateway.GenerateResult
	err    error
}

func (g *fakeGateway) Generate(ctx context.Context, req llmgateway.GenerateRequest) (llmgateway.GenerateResult, error) {
	return g.result, g.err
}
func (g *fakeGateway) Health(ctx context.Context) error { return nil }
func (g *fakeGateway) Name() string                     { return "fake" }

func appendCommand(t *testing.T, fb *brokertest.FakeBroker, question, sessionUID string) *broker.Record {
	t.Helper()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamCommands)
	fb.EnsureGroup(ctx, pipeline.StreamCommands, "responder")
	fb.Append(ctx, pipeline.StreamCommands, pipeline.EncodeCommand(pipeline.Command{
		Question:   question,
		SessionUID: sessionUID,
		Timestamp:  time.Now().UTC(),
	}))
	recs, err := fb.ReadGroup(ctx, pipeline.StreamCommands, "responder", 1, 0)
	if err != nil {
		t.Fatalf("ReadGroup() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	return recs[0]
}

func TestResponder_Handler_PublishesReply(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamReplies)
	fb.EnsureGroup(ctx, pipeline.StreamReplies, "synthesizer")

	gw := &fakeGateway{result: llmgateway.GenerateResult{Text: "it's 3pm"}}
	r := New(fb, gw, NewMemoryHistory(5), config.ResponderConfig{Model: "gpt-4", EmptyReplyText: "I'm not sure."})

	rec := appendCommand(t, fb, "what time is it", "session-1")
	if err := r.Handler()(ctx, rec); err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	recs, err := fb.ReadGroup(ctx, pipeline.StreamReplies, "synthesizer", 1, 0)
	if err != nil {
		t.Fatalf("ReadGroup() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	reply, err := pipeline.DecodeReply(recs[0].Fields)
	if err != nil {
		t.Fatalf("DecodeReply() error = %v", err)
	}
	if reply.Response != "it's 3pm" {
		t.Errorf("Response = %q, want %q", reply.Response, "it's 3pm")
	}
	if reply.MessageID == "" {
		t.Error("MessageID is empty, want a minted uuid")
	}
}

func TestResponder_Handler_FallsBackToEmptyReplyOnEmptyCompletion(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamReplies)
	fb.EnsureGroup(ctx, pipeline.StreamReplies, "synthesizer")

	gw := &fakeGateway{result: llmgateway.GenerateResult{Text: ""}}
	r := New(fb, gw, NewMemoryHistory(5), config.ResponderConfig{Model: "gpt-4", EmptyReplyText: "I'm not sure."})

	rec := appendCommand(t, fb, "what time is it", "session-1")
	if err := r.Handler()(ctx, rec); err != nil {
		t.Fatalf("Handler() error = %v, want nil (empty completion degrades to EmptyReplyText)", err)
	}

	recs, _ := fb.ReadGroup(ctx, pipeline.StreamReplies, "synthesizer", 1, 0)
	reply, err := pipeline.DecodeReply(recs[0].Fields)
	if err != nil {
		t.Fatalf("DecodeReply() error = %v", err)
	}
	if reply.Response != "I'm not sure." {
		t.Errorf("Response = %q, want EmptyReplyText fallback", reply.Response)
	}
}

func TestResponder_Handler_TransientGatewayErrorIsRedelivered(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamReplies)
	fb.EnsureGroup(ctx, pipeline.StreamReplies, "synthesizer")

	gw := &fakeGateway{err: errors.New("llm unreachable")}
	r := New(fb, gw, NewMemoryHistory(5), config.ResponderConfig{Model: "gpt-4", EmptyReplyText: "I'm not sure."})

	rec := appendCommand(t, fb, "what time is it", "session-1")
	err := r.Handler()(ctx, rec)
	if err == nil {
		t.Fatal("Handler() error = nil, want error so the stage loop redelivers instead of acking")
	}

	recs, _ := fb.ReadGroup(ctx, pipeline.StreamReplies, "synthesizer", 1, 0)
	if len(recs) != 0 {
		t.Errorf("len(recs) = %d, want 0: no Reply should be published on a still-failing gateway", len(recs))
	}
}

func TestResponder_Handler_PermanentGatewayErrorIsDeadLettered(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamReplies)
	fb.EnsureGroup(ctx, pipeline.StreamReplies, "synthesizer")

	gw := &fakeGateway{err: llmgateway.NewStatusError(404, "model not found")}
	r := New(fb, gw, NewMemoryHistory(5), config.ResponderConfig{Model: "gpt-4", EmptyReplyText: "I'm not sure."})

	rec := appendCommand(t, fb, "what time is it", "session-1")
	err := r.Handler()(ctx, rec)
	if err == nil {
		t.Fatal("Handler() error = nil, want a permanent error for the stage loop to dead-letter")
	}

	recs, _ := fb.ReadGroup(ctx, pipeline.StreamReplies, "synthesizer", 1, 0)
	if len(recs) != 0 {
		t.Errorf("len(recs) = %d, want 0: no Reply should be published on a permanent gateway failure", len(recs))
	}
}

func TestResponder_Handler_RecordsHistoryTurn(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamReplies)
	fb.EnsureGroup(ctx, pipeline.StreamReplies, "synthesizer")

	hist := NewMemoryHistory(5)
	gw := &fakeGateway{result: llmgateway.GenerateResult{Text: "42"}}
	r := New(fb, gw, hist, config.ResponderConfig{Model: "gpt-4", EmptyReplyText: "I'm not sure."})

	rec := appendCommand(t, fb, "what is the answer", "session-1")
	if err := r.Handler()(ctx, rec); err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	turns, err := hist.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Answer != "42" {
		t.Errorf("turns = %+v, want one turn with answer 42", turns)
	}
}

func TestResponder_Handler_MalformedCommandIsPermanent(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	gw := &fakeGateway{result: llmgateway.GenerateResult{Text: "ok"}}
	r := New(fb, gw, NewMemoryHistory(5), config.ResponderConfig{Model: "gpt-4"})

	rec := broker.NewRecord("bad-1", pipeline.Fields{"timestamp": "not-a-time"}, 1, nil, nil, nil)
	if err := r.Handler()(context.Background(), rec); err == nil {
		t.Fatal("Handler() error = nil, want decode error")
	}
}
