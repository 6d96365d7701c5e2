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

package wakeword

import (
	"context"
	"testing"
	"time"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/broker/brokertest"
	"github.com/heyraven/raven-pipeline/internal/config"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

func testDetectorConfig() config.WakeWordConfig {
	return config.WakeWordConfig{
		PatternsFile:       "",
		FuzzyEnabled:       true,
		FuzzyMaxDistance:   2,
		MinQuestionLength:  2,
		MaxQuestionLength:  200,
		ThresholdPrimary:   0.9,
		ThresholdSecondary: 0.7,
		RateLimitMaxPerMin: 5,
		RateLimitCooldown:  0,
	}
}

func appendSegment(t *testing.T, fb *brokertest.FakeBroker, text, sessionUID string) *broker.Record {
	t.Helper()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamTranscripts)
	fb.EnsureGroup(ctx, pipeline.StreamTranscripts, "wake-detector")
	fb.Append(ctx, pipeline.StreamTranscripts, pipeline.EncodeSegment(pipeline.Segment{
		Text:       text,
		SessionUID: sessionUID,
		Timestamp:  time.Now().UTC(),
	}))
	recs, err := fb.ReadGroup(ctx, pipeline.StreamTranscripts, "wake-detector", 1, 0)
	if err != nil {
		t.Fatalf("ReadGroup() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	return recs[0]
}

func TestDetector_Handler_DispatchesCommandOnMatch(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamCommands)
	fb.EnsureGroup(ctx, pipeline.StreamCommands, "responder")

	d := NewDetector(fb, testDetectorConfig(), defaultPatterns())
	rec := appendSegment(t, fb, "hey raven what is the weather", "session-1")

	if err := d.Handler()(ctx, rec); err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	recs, err := fb.ReadGroup(ctx, pipeline.StreamCommands, "responder", 1, 0)
	if err != nil {
		t.Fatalf("ReadGroup() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}

	cmd, err := pipeline.DecodeCommand(recs[0].Fields)
	if err != nil {
		t.Fatalf("DecodeCommand() error = %v", err)
	}
	if cmd.Question != "what is the weather" {
		t.Errorf("Question = %q, want %q", cmd.Question, "what is the weather")
	}
	if cmd.SessionUID != "session-1" {
		t.Errorf("SessionUID = %q, want %q", cmd.SessionUID, "session-1")
	}
}

func TestDetector_Handler_NoMatchIsNoOp(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamCommands)
	fb.EnsureGroup(ctx, pipeline.StreamCommands, "responder")

	d := NewDetector(fb, testDetectorConfig(), defaultPatterns())
	rec := appendSegment(t, fb, "completely unrelated chatter", "session-1")

	if err := d.Handler()(ctx, rec); err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	info, err := fb.StreamInfo(ctx, pipeline.StreamCommands)
	if err != nil {
		t.Fatalf("StreamInfo() error = %v", err)
	}
	if info.Messages != 0 {
		t.Errorf("Messages = %d, want 0 when no pattern matches", info.Messages)
	}
}

func TestDetector_Handler_RateLimited(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()
	fb.EnsureStream(ctx, pipeline.StreamCommands)
	fb.EnsureGroup(ctx, pipeline.StreamCommands, "responder")

	cfg := testDetectorConfig()
	cfg.RateLimitMaxPerMin = 1
	d := NewDetector(fb, cfg, defaultPatterns())

	rec1 := appendSegment(t, fb, "hey raven what time is it", "session-1")
	if err := d.Handler()(ctx, rec1); err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	rec2 := appendSegment(t, fb, "hey raven what day is it", "session-1")
	if err := d.Handler()(ctx, rec2); err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	info, err := fb.StreamInfo(ctx, pipeline.StreamCommands)
	if err != nil {
		t.Fatalf("StreamInfo() error = %v", err)
	}
	if info.Messages != 1 {
		t.Errorf("Messages = %d, want 1 once rate limit kicks in", info.Messages)
	}
}

func TestDetector_Handler_MalformedSegmentIsPermanent(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx := context.Background()

	d := NewDetector(fb, testDetectorConfig(), defaultPatterns())
	rec := broker.NewRecord("bad-1", pipeline.Fields{"timestamp": "not-a-time"}, 1, nil, nil, nil)

	err := d.Handler()(ctx, rec)
	if err == nil {
		t.Fatal("Handler() error = nil, want decode error")
	}
}
