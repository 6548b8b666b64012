package host

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"serpcompanion/internal/logging"
	"serpcompanion/internal/protocol"
)

type recordingReplier struct {
	mu    sync.Mutex
	log   []string
	resps []protocol.Response
}

func (r *recordingReplier) Reply(_ context.Context, resp protocol.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "reply:"+resp.ID)
	r.resps = append(r.resps, resp)
	return nil
}

func (r *recordingReplier) note(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, entry)
}

func TestDispatchUnknownType(t *testing.T) {
	replier := &recordingReplier{}
	d := NewDispatcher(replier, logging.NewNop())

	d.Dispatch(context.Background(), protocol.Request{ID: "1", Type: "bogus"})

	if len(replier.resps) != 1 {
		t.Fatalf("expected one response, got %d", len(replier.resps))
	}
	resp := replier.resps[0]
	if resp.OK || resp.Error != "unknown_type:bogus" || resp.Kind != protocol.KindResponse {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestDispatchRunsAfterReplyActionsInOrder(t *testing.T) {
	replier := &recordingReplier{}
	d := NewDispatcher(replier, logging.NewNop())
	d.Handle("start", func(_ context.Context, call *Call) (any, error) {
		call.AfterReply(func() { replier.note("first") })
		call.AfterReply(func() { replier.note("second") })
		return map[string]any{"jobId": "x"}, nil
	})

	d.Dispatch(context.Background(), protocol.Request{ID: "7", Type: "udemy.start"})

	want := []string{"reply:7", "first", "second"}
	if strings.Join(replier.log, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", replier.log, want)
	}
}

func TestDispatchAfterReplyRunsOnError(t *testing.T) {
	replier := &recordingReplier{}
	d := NewDispatcher(replier, logging.NewNop())
	d.Handle("start", func(_ context.Context, call *Call) (any, error) {
		call.AfterReply(func() { replier.note("announce") })
		return nil, errors.New("job_active:abc")
	})

	d.Dispatch(context.Background(), protocol.Request{ID: "2", Type: "start"})

	if replier.resps[0].Error != "job_active:abc" {
		t.Fatalf("unexpected error %q", replier.resps[0].Error)
	}
	if len(replier.log) != 2 || replier.log[1] != "announce" {
		t.Fatalf("unexpected log %v", replier.log)
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	replier := &recordingReplier{}
	d := NewDispatcher(replier, logging.NewNop())
	d.Handle("ping", func(context.Context, *Call) (any, error) {
		panic("boom")
	})

	d.Dispatch(context.Background(), protocol.Request{ID: "3", Type: "ping"})
	d.Dispatch(context.Background(), protocol.Request{ID: "4", Type: "ping"})

	if len(replier.resps) != 2 {
		t.Fatalf("expected a response per request, got %d", len(replier.resps))
	}
	if replier.resps[0].OK || replier.resps[0].Error != "internal_error:boom" {
		t.Fatalf("unexpected response %#v", replier.resps[0])
	}
}

func TestDispatchAsyncHandler(t *testing.T) {
	replier := &recordingReplier{}
	d := NewDispatcher(replier, logging.NewNop())
	release := make(chan struct{})
	d.HandleAsync("pickFolder", func(context.Context, *Call) (any, error) {
		<-release
		return map[string]any{"path": "/tmp"}, nil
	})
	d.Handle("ping", func(context.Context, *Call) (any, error) {
		return map[string]any{"status": "ok"}, nil
	})

	d.Dispatch(context.Background(), protocol.Request{ID: "slow", Type: "pickFolder"})
	d.Dispatch(context.Background(), protocol.Request{ID: "fast", Type: "ping"})
	close(release)
	d.Wait()

	replier.mu.Lock()
	defer replier.mu.Unlock()
	if len(replier.resps) != 2 || replier.resps[0].ID != "fast" {
		t.Fatalf("expected ping to be answered while the picker waits, got %v", replier.log)
	}
}

func TestNilResultBecomesEmptyObject(t *testing.T) {
	replier := &recordingReplier{}
	d := NewDispatcher(replier, logging.NewNop())
	d.Handle("ping", func(context.Context, *Call) (any, error) { return nil, nil })

	d.Dispatch(context.Background(), protocol.Request{ID: "5", Type: "ping"})

	result, ok := replier.resps[0].Result.(map[string]any)
	if !ok || len(result) != 0 {
		t.Fatalf("unexpected result %#v", replier.resps[0].Result)
	}
}
