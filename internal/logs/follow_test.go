package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"serpcompanion/internal/logs"
)

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *lineSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func fastOptions() logs.FollowOptions {
	return logs.FollowOptions{OpenAttempts: 40, PollInterval: 5 * time.Millisecond}
}

func TestFollowDrainsExistingFileAfterExit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-a.log")
	if err := os.WriteFile(path, []byte("one\r\ntwo\npartial"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &lineSink{}
	if err := logs.Follow(context.Background(), path, closedChan(), fastOptions(), sink.emit); err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
	got := sink.snapshot()
	want := []string{"one", "two", "partial"}
	if len(got) != len(want) {
		t.Fatalf("unexpected lines: %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestFollowWaitsForLateFileAndGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-b.log")
	exited := make(chan struct{})
	sink := &lineSink{}

	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(context.Background(), path, exited, fastOptions(), sink.emit)
	}()

	time.Sleep(30 * time.Millisecond)
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString("starting\nhalf"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if got := sink.snapshot(); len(got) != 1 || got[0] != "starting" {
		t.Fatalf("expected only the complete line so far, got %#v", got)
	}
	if _, err := file.WriteString(" done\nfinished\n"); err != nil {
		t.Fatal(err)
	}
	file.Close()
	close(exited)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not stop after the process exited")
	}
	got := sink.snapshot()
	want := []string{"starting", "half done", "finished"}
	if len(got) != len(want) {
		t.Fatalf("unexpected lines: %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestFollowGivesUpWhenFileNeverAppears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	opts := logs.FollowOptions{OpenAttempts: 3, PollInterval: time.Millisecond}

	err := logs.Follow(context.Background(), path, nil, opts, func(string) {})
	if !errors.Is(err, logs.ErrLogNotCreated) {
		t.Fatalf("expected ErrLogNotCreated, got %v", err)
	}
}

func TestFollowStopsEarlyWhenProcessExitedWithoutLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	opts := logs.FollowOptions{OpenAttempts: 1000, PollInterval: time.Millisecond}

	start := time.Now()
	err := logs.Follow(context.Background(), path, closedChan(), opts, func(string) {})
	if !errors.Is(err, logs.ErrLogNotCreated) {
		t.Fatalf("expected ErrLogNotCreated, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("expected Follow to stop promptly after exit")
	}
}

func TestFollowHonoursContextAndOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-c.log")
	if err := os.WriteFile(path, []byte("old\nnew\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sink := &lineSink{}
	opts := fastOptions()
	opts.Offset = int64(len("old\n"))

	done := make(chan error, 1)
	go func() { done <- logs.Follow(ctx, path, nil, opts, sink.emit) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := sink.snapshot(); len(got) != 1 || got[0] != "new" {
		t.Fatalf("unexpected lines: %#v", got)
	}
}

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job-d.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, offset, err := logs.LastLines(path, 2)
	if err != nil {
		t.Fatalf("LastLines returned error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}

	lines, _, err = logs.LastLines(path, 10)
	if err != nil || len(lines) != 3 || lines[0] != "a" {
		t.Fatalf("unexpected short-file result: %#v %v", lines, err)
	}

	lines, offset, err = logs.LastLines(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("expected empty result for missing file, got %#v %d %v", lines, offset, err)
	}
}
