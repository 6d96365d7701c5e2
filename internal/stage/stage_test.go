package stage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heyraven/raven-pipeline/internal/broker"
	"github.com/heyraven/raven-pipeline/internal/broker/brokertest"
	"github.com/heyraven/raven-pipeline/internal/pipeline"
)

func testConfig(stream, group string) Config {
	return Config{
		StageName:     "test-stage",
		Stream:        stream,
		Group:         group,
		MaxDeliveries: 3,
		BatchSize:     8,
		BlockFor:      5 * time.Millisecond,
		ClaimInterval: 10 * time.Millisecond,
		MinIdle:       0,
		PoolMin:       1,
		PoolMax:       1,
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLoop_AckOnSuccess(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb.EnsureStream(ctx, "commands")
	fb.Append(ctx, "commands", pipeline.Fields{"question": "hi"})

	var handled atomic.Int32
	loop := New(fb, testConfig("commands", "responder"), func(ctx context.Context, rec *broker.Record) error {
		handled.Add(1)
		return nil
	}, nil)

	go loop.Run(ctx)

	waitUntil(t, time.Second, func() bool { return handled.Load() == 1 })

	info, err := fb.StreamInfo(ctx, "commands")
	if err != nil {
		t.Fatalf("StreamInfo() error = %v", err)
	}
	if info.Messages != 0 {
		t.Errorf("Messages = %d, want 0 after ack", info.Messages)
	}
}

func TestLoop_DeadLettersPermanentError(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb.EnsureStream(ctx, "commands")
	fb.Append(ctx, "commands", pipeline.Fields{"question": "malformed"})

	loop := New(fb, testConfig("commands", "responder"), func(ctx context.Context, rec *broker.Record) error {
		return Permanent(errors.New("unparseable"))
	}, nil)

	go loop.Run(ctx)

	waitUntil(t, time.Second, func() bool { return len(fb.DLQMessages("commands")) == 1 })

	info, err := fb.StreamInfo(ctx, "commands")
	if err != nil {
		t.Fatalf("StreamInfo() error = %v", err)
	}
	if info.Messages != 0 {
		t.Errorf("Messages = %d, want 0 once dead-lettered", info.Messages)
	}
}

func TestLoop_RedeliversThenDeadLettersAfterMaxDeliveries(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb.EnsureStream(ctx, "commands")
	fb.Append(ctx, "commands", pipeline.Fields{"question": "always fails"})

	var attempts atomic.Int32
	loop := New(fb, testConfig("commands", "responder"), func(ctx context.Context, rec *broker.Record) error {
		attempts.Add(1)
		return errors.New("llm gateway unreachable")
	}, nil)

	go loop.Run(ctx)

	waitUntil(t, 2*time.Second, func() bool { return len(fb.DLQMessages("commands")) == 1 })

	if attempts.Load() < 3 {
		t.Errorf("attempts = %d, want at least MaxDeliveries (3)", attempts.Load())
	}
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	fb := brokertest.NewFakeBroker()
	ctx, cancel := context.WithCancel(context.Background())

	fb.EnsureStream(ctx, "commands")

	done := make(chan error, 1)
	loop := New(fb, testConfig("commands", "responder"), func(ctx context.Context, rec *broker.Record) error {
		return nil
	}, nil)

	go func() { done <- loop.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run() returned nil error, want context.Canceled")
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestClampPool(t *testing.T) {
	tests := []struct {
		n, min, max, want int
	}{
		{n: 1, min: 2, max: 16, want: 2},
		{n: 8, min: 2, max: 16, want: 8},
		{n: 32, min: 2, max: 16, want: 16},
	}

	for _, tt := range tests {
		if got := clampPool(tt.n, tt.min, tt.max); got != tt.want {
			t.Errorf("clampPool(%d, %d, %d) = %d, want %d", tt.n, tt.min, tt.max, got, tt.want)
		}
	}
}
