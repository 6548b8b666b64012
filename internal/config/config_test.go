package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"serpcompanion/internal/config"
)

func isolateEnv(t *testing.T) (home, root string) {
	t.Helper()
	home = t.TempDir()
	root = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("SERP_COMPANION_ROOT", root)
	t.Setenv("SERP_COMPANION_LOG_LEVEL", "")
	return home, root
}

func TestLoadDefaultConfigDerivesPathsFromRoot(t *testing.T) {
	home, root := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Paths.Root != root {
		t.Fatalf("unexpected root: got %q want %q", cfg.Paths.Root, root)
	}
	if cfg.Paths.ToolsDir != filepath.Join(root, "tools") {
		t.Fatalf("unexpected tools dir: %q", cfg.Paths.ToolsDir)
	}
	if cfg.Downloader.Script != filepath.Join(root, "main.py") {
		t.Fatalf("unexpected script: %q", cfg.Downloader.Script)
	}
	wantExe := filepath.Join(root, "bin", "udemy-downloader")
	if runtime.GOOS == "windows" {
		wantExe += ".exe"
	}
	if cfg.Downloader.PackagedExe != wantExe {
		t.Fatalf("unexpected packaged exe: %q", cfg.Downloader.PackagedExe)
	}
	if runtime.GOOS == "linux" {
		wantLogs := filepath.Join(home, ".local", "share", "serp-companion", "logs")
		if cfg.Paths.LogDir != wantLogs {
			t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
		}
	}
	if cfg.History.Path != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.History.Path)
	}
	if cfg.Host.QueueCapacity != 500 {
		t.Fatalf("expected queue capacity 500, got %d", cfg.Host.QueueCapacity)
	}
	if !cfg.Host.KillJobsOnExit {
		t.Fatal("expected kill_jobs_on_exit default true")
	}
	if len(cfg.Pairing.Ports) != len(config.DefaultPairingPorts) || cfg.Pairing.Ports[0] != 60123 {
		t.Fatalf("unexpected pairing ports: %v", cfg.Pairing.Ports)
	}
	if cfg.Pairing.HostName != "com.serp.companion" {
		t.Fatalf("unexpected host name: %q", cfg.Pairing.HostName)
	}
	if cfg.Pairing.ExecutablePath == "" {
		t.Fatal("expected executable path to be resolved")
	}
	if cfg.Downloader.Python == "" {
		t.Fatal("expected python interpreter default")
	}
}

func TestLoadPrefersVenvPython(t *testing.T) {
	_, root := isolateEnv(t)
	venv := filepath.Join(root, "venv", "bin", "python")
	if err := os.MkdirAll(filepath.Dir(venv), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(venv, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Downloader.Python != venv {
		t.Fatalf("expected venv python %q, got %q", venv, cfg.Downloader.Python)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	home, _ := isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
log_dir = "~/custom-logs"

[downloader]
command = "udemy-dl"
default_browser = "firefox"
default_log_level = "debug"

[pairing]
ports = [61000, 61001]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.LogDir != filepath.Join(home, "custom-logs") {
		t.Fatalf("expected expanded log dir, got %q", cfg.Paths.LogDir)
	}
	if cfg.Downloader.Command != "udemy-dl" {
		t.Fatalf("unexpected command: %q", cfg.Downloader.Command)
	}
	if cfg.Downloader.DefaultBrowser != "firefox" {
		t.Fatalf("unexpected browser: %q", cfg.Downloader.DefaultBrowser)
	}
	if cfg.Downloader.DefaultLogLevel != "DEBUG" {
		t.Fatalf("expected upper-cased downloader log level, got %q", cfg.Downloader.DefaultLogLevel)
	}
	if len(cfg.Pairing.Ports) != 2 || cfg.Pairing.Ports[1] != 61001 {
		t.Fatalf("unexpected ports: %v", cfg.Pairing.Ports)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadLogLevelEnvOverride(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SERP_COMPANION_LOG_LEVEL", "Warn")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	isolateEnv(t)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"duplicate port", "[pairing]\nports = [60123, 60123]\n", "more than once"},
		{"port range", "[pairing]\nports = [70000]\n", "not a valid TCP port"},
		{"queue", "[host]\nqueue_capacity = -1\n", "host.queue_capacity"},
		{"tail", "[tail]\nopen_attempts = -3\n", "tail.open_attempts"},
		{"level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"host name", "[pairing]\nhost_name = \"com serp\"\n", "pairing.host_name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestJobLogPathNamesRetryAttempts(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = "/var/log/serp"
	if got := cfg.JobLogPath("abc", 1); got != filepath.Join("/var/log/serp", "job-abc.log") {
		t.Fatalf("unexpected first attempt path: %q", got)
	}
	if got := cfg.JobLogPath("abc", 2); got != filepath.Join("/var/log/serp", "job-abc.retry1.log") {
		t.Fatalf("unexpected retry path: %q", got)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Tail.OpenAttempts != 40 || cfg.Tail.PollIntervalMillis != 250 {
		t.Fatalf("unexpected tail config: %+v", cfg.Tail)
	}
	if cfg.WriterPoll().Milliseconds() != 1000 {
		t.Fatalf("unexpected writer poll: %v", cfg.WriterPoll())
	}
}
