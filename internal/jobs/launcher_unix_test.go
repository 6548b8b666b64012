//go:build !windows

package jobs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"serpcompanion/internal/jobs"
	"serpcompanion/internal/logging"
	"serpcompanion/internal/protocol"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// newExecHarness wires a supervisor to the real process launcher with the
// downloader replaced by a shell script.
func newExecHarness(t *testing.T, script string) *harness {
	t.Helper()
	h := &harness{
		cfg:      testConfig(t),
		emitter:  &recordingEmitter{},
		recorder: &recordingRecorder{},
	}
	h.cfg.Downloader.Command = writeStub(t, t.TempDir(), "udemy-dl", script)
	h.sup = jobs.NewSupervisor(h.cfg, h.emitter, logging.NewNop(), jobs.WithRecorder(h.recorder))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.sup.Shutdown(ctx)
	})
	return h
}

// processGone reports whether pid no longer runs. A zombie counts as gone:
// it was killed and only waits for its new parent to reap it.
func processGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	i := bytes.LastIndexByte(data, ')')
	return i >= 0 && i+2 < len(data) && data[i+2] == 'Z'
}

func TestExecLauncherReportsExitCode(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "exit7", "exit 7\n")
	proc, err := jobs.ExecLauncher{}.Launch(jobs.LaunchSpec{Program: stub, Env: os.Environ()})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	code, err := proc.Wait()
	if err != nil || code != 7 {
		t.Fatalf("expected exit 7, got %d %v", code, err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill after exit: %v", err)
	}
}

func TestExecLauncherDetachesStdinAndGroup(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "detached", "if read line; then exit 9; fi\nsleep 1\nexit 4\n")
	proc, err := jobs.ExecLauncher{}.Launch(jobs.LaunchSpec{Program: stub, Env: os.Environ()})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	pgid, pgErr := unix.Getpgid(proc.Pid())
	code, err := proc.Wait()
	if err != nil || code != 4 {
		t.Fatalf("expected stdin at EOF (exit 4), got %d %v", code, err)
	}
	if pgErr != nil {
		t.Fatalf("Getpgid: %v", pgErr)
	}
	if pgid != proc.Pid() {
		t.Fatalf("expected child to lead its own group, pgid %d pid %d", pgid, proc.Pid())
	}
}

func TestExecBearerRetryAgainstRealProcess(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "argv")
	h := newExecHarness(t, fmt.Sprintf(`printf '%%s\n' "$*" >> %q
echo "using token tok" >> "$SERP_LOG_FILE"
exit 3
`, argsFile))

	ticket, err := h.sup.Start(jobs.StartOptions{
		CourseURL:     "https://x.udemy.com/course/abc",
		Bearer:        "tok",
		PreferCookies: true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ticket.Release()

	failed := h.emitter.waitFor(t, protocol.EventJobFailed)
	if failed.Fields["code"] != 3 {
		t.Fatalf("unexpected job.failed fields: %#v", failed.Fields)
	}

	var retries int
	for _, evt := range h.emitter.snapshot() {
		switch evt.Type {
		case protocol.EventJobRetryBearer:
			retries++
			args := evt.Fields["args"].([]string)
			if i := slices.Index(args, "-b"); i < 0 || args[i+1] != jobs.RedactedValue {
				t.Fatalf("expected redacted -b in retry args, got %v", args)
			}
			if evt.Fields["code"] != 3 {
				t.Fatalf("unexpected retry fields: %#v", evt.Fields)
			}
		case protocol.EventJobLog:
			if line := evt.Fields["line"].(string); strings.Contains(line, "tok") && !strings.Contains(line, jobs.RedactedValue) {
				t.Fatalf("bearer leaked into job.log: %q", line)
			}
		}
	}
	if retries != 1 {
		t.Fatalf("expected exactly one retry, saw %d in %v", retries, h.emitter.types())
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read argv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two attempts, got %q", lines)
	}
	if !strings.Contains(lines[0], "--cookies-first") || strings.Contains(lines[0], "-b tok") {
		t.Fatalf("unexpected first attempt argv %q", lines[0])
	}
	if strings.Contains(lines[1], "--cookies-first") || !strings.Contains(lines[1], "-b tok") {
		t.Fatalf("unexpected retry argv %q", lines[1])
	}
}

func TestExecCancelKillsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "grandchild")
	h := newExecHarness(t, fmt.Sprintf(`sleep 30 &
echo $! > %q.tmp
mv %q.tmp %q
wait
`, pidFile, pidFile, pidFile))

	ticket, err := h.sup.Start(jobs.StartOptions{CourseURL: "https://x.udemy.com/course/abc"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ticket.Release()

	var grandchild int
	deadline := time.Now().Add(5 * time.Second)
	for grandchild == 0 && time.Now().Before(deadline) {
		if data, err := os.ReadFile(pidFile); err == nil {
			grandchild, _ = strconv.Atoi(strings.TrimSpace(string(data)))
		}
		time.Sleep(10 * time.Millisecond)
	}
	if grandchild == 0 {
		t.Fatal("stub never reported its background process")
	}

	cancelTicket, err := h.sup.Cancel(ticket.Job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	cancelTicket.Release()
	h.emitter.waitFor(t, protocol.EventJobCanceled)

	deadline = time.Now().Add(5 * time.Second)
	for !processGone(grandchild) {
		if time.Now().After(deadline) {
			t.Fatalf("background process %d survived cancel", grandchild)
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline = time.Now().Add(5 * time.Second)
	for len(h.recorder.recorded()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec := h.recorder.recorded(); len(rec) != 1 || rec[0].State != jobs.StateCanceled {
		t.Fatalf("expected canceled job in history, got %#v", rec)
	}
}
