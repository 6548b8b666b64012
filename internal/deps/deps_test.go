package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present", `echo "present version 1.2"; echo "extra"`)
	reqs := []Requirement{
		{Key: "present", Name: "Present", Command: present, VersionArgs: []string{"--version"}},
		{Key: "missing", Name: "Missing", Command: "clearly-not-present-binary"},
		{Key: "blank", Name: "Blank"},
	}

	results := CheckBinaries(context.Background(), reqs, Options{})
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Version != "present version 1.2" {
		t.Fatalf("expected first requirement to be available with version, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank detail: %q", results[2].Detail)
	}
}

func TestCheckBinariesPrefersSearchDirs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	tools := t.TempDir()
	bundled := writeStub(t, tools, "ffmpeg", `echo "ffmpeg version bundled"`)

	results := CheckBinaries(context.Background(), []Requirement{{Key: "ffmpeg", Command: "ffmpeg", VersionArgs: []string{"-version"}}}, Options{SearchDirs: []string{tools}})
	if results[0].Command != bundled {
		t.Fatalf("expected bundled binary, got %q", results[0].Command)
	}
	if results[0].Version != "ffmpeg version bundled" {
		t.Fatalf("unexpected version: %q", results[0].Version)
	}
}

func TestProbeVersionTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	slow := writeStub(t, t.TempDir(), "slow", "sleep 5")

	start := time.Now()
	got := ProbeVersion(context.Background(), slow, nil, 100*time.Millisecond)
	if got != "unavailable: timeout" {
		t.Fatalf("expected timeout, got %q", got)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("probe exceeded its timeout by too much")
	}
}

func TestProbeVersionReportsFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	failing := writeStub(t, t.TempDir(), "failing", "exit 2")
	if got := ProbeVersion(context.Background(), failing, nil, time.Second); !strings.HasPrefix(got, "unavailable:") {
		t.Fatalf("expected unavailable, got %q", got)
	}
}
