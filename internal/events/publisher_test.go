package events_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"serpcompanion/internal/events"
	"serpcompanion/internal/frame"
	"serpcompanion/internal/protocol"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames []any
	failOn int
	calls  int
}

func (w *recordingWriter) WriteFrame(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failOn > 0 && w.calls == w.failOn {
		return errors.New("broken pipe")
	}
	w.frames = append(w.frames, v)
	return nil
}

func (w *recordingWriter) snapshot() []any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]any(nil), w.frames...)
}

func runUntilDrained(t *testing.T, pub *events.Publisher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestPublishNeverBlocksWhenFull(t *testing.T) {
	pub := events.New(&recordingWriter{}, events.Options{Capacity: 2})

	accepted := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			if pub.Emit(protocol.EventJobLog, protocol.Fields{"line": i}) {
				accepted++
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	if accepted != 2 {
		t.Fatalf("expected 2 accepted events, got %d", accepted)
	}
	if pub.Dropped() != 3 {
		t.Fatalf("expected 3 dropped events, got %d", pub.Dropped())
	}
}

func TestRunPreservesFIFOAcrossResponsesAndEvents(t *testing.T) {
	out := &recordingWriter{}
	pub := events.New(out, events.Options{Capacity: 10})

	if err := pub.Reply(context.Background(), protocol.Success("r1", map[string]any{"jobId": "j1"})); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	pub.Emit(protocol.EventJobStarted, protocol.Fields{"jobId": "j1"})
	pub.Emit(protocol.EventJobLog, protocol.Fields{"jobId": "j1", "line": "hello"})

	runUntilDrained(t, pub)

	frames := out.snapshot()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if resp, ok := frames[0].(protocol.Response); !ok || resp.ID != "r1" {
		t.Fatalf("expected response first, got %#v", frames[0])
	}
	if evt, ok := frames[1].(protocol.Event); !ok || evt.Type != protocol.EventJobStarted {
		t.Fatalf("expected job.started second, got %#v", frames[1])
	}
	if evt, ok := frames[2].(protocol.Event); !ok || evt.Type != protocol.EventJobLog {
		t.Fatalf("expected job.log third, got %#v", frames[2])
	}
}

func TestWriteErrorsDoNotStopTheLoop(t *testing.T) {
	out := &recordingWriter{failOn: 1}
	pub := events.New(out, events.Options{Capacity: 4})
	pub.Emit(protocol.EventJobLog, protocol.Fields{"line": "lost"})
	pub.Emit(protocol.EventJobLog, protocol.Fields{"line": "kept"})

	runUntilDrained(t, pub)

	frames := out.snapshot()
	if len(frames) != 1 {
		t.Fatalf("expected the second frame to be written, got %d frames", len(frames))
	}
	if pub.Written() != 1 {
		t.Fatalf("expected 1 written frame, got %d", pub.Written())
	}
}

func TestReplyWaitsForSpace(t *testing.T) {
	pub := events.New(&recordingWriter{}, events.Options{Capacity: 1})
	pub.Emit(protocol.EventJobLog, protocol.Fields{"line": "fill"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pub.Reply(ctx, protocol.Success("r1", nil)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while queue is full, got %v", err)
	}
	if pub.Dropped() != 0 {
		t.Fatalf("responses must never count as drops, got %d", pub.Dropped())
	}
}

func TestReplyUnblocksOnceWriterDrains(t *testing.T) {
	out := &recordingWriter{}
	pub := events.New(out, events.Options{Capacity: 1, Poll: 10 * time.Millisecond})
	pub.Emit(protocol.EventJobLog, protocol.Fields{"line": "fill"})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- pub.Run(ctx) }()

	replyCtx, replyCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer replyCancel()
	if err := pub.Reply(replyCtx, protocol.Success("r1", nil)); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(out.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := len(out.snapshot()); got != 2 {
		t.Fatalf("expected 2 frames, got %d", got)
	}
}

func TestReplyAfterCloseFails(t *testing.T) {
	pub := events.New(&recordingWriter{}, events.Options{})
	runUntilDrained(t, pub)
	if err := pub.Reply(context.Background(), protocol.Success("late", nil)); !errors.Is(err, events.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if pub.Emit(protocol.EventJobLog, nil) {
		t.Fatal("expected Emit to fail after close")
	}
}

func TestFramesReachTheCodec(t *testing.T) {
	var buf bytes.Buffer
	pub := events.New(frame.NewWriter(&buf), events.Options{})
	pub.Emit(protocol.EventHostReady, protocol.Fields{"version": "test"})
	runUntilDrained(t, pub)

	reader := frame.NewReader(&buf)
	var got map[string]any
	if !reader.ReadFrame(&got) {
		t.Fatalf("expected a frame, err=%v", reader.Err())
	}
	if got["kind"] != protocol.KindEvent || got["type"] != protocol.EventHostReady || got["version"] != "test" {
		t.Fatalf("unexpected frame: %#v", got)
	}
}
