package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains install and working directory configuration.
type Paths struct {
	Root          string `toml:"root"`
	LogDir        string `toml:"log_dir"`
	ToolsDir      string `toml:"tools_dir"`
	DefaultOutDir string `toml:"default_out_dir"`
	StateDir      string `toml:"state_dir"`
}

// Downloader describes how the external downloader is located and invoked.
type Downloader struct {
	Command         string `toml:"command"`
	Python          string `toml:"python"`
	Script          string `toml:"script"`
	PackagedExe     string `toml:"packaged_exe"`
	DefaultBrowser  string `toml:"default_browser"`
	DefaultLogLevel string `toml:"default_log_level"`
	BearerEnv       string `toml:"bearer_env"`
}

// Host contains native messaging host tunables.
type Host struct {
	QueueCapacity       int  `toml:"queue_capacity"`
	WriterPollMillis    int  `toml:"writer_poll_ms"`
	ProbeTimeoutSeconds int  `toml:"probe_timeout_seconds"`
	KillJobsOnExit      bool `toml:"kill_jobs_on_exit"`
}

// Tail controls how job log files are followed.
type Tail struct {
	OpenAttempts       int `toml:"open_attempts"`
	PollIntervalMillis int `toml:"poll_interval_ms"`
}

// Pairing contains the loopback pairing server and manifest settings.
type Pairing struct {
	Ports          []int  `toml:"ports"`
	HostName       string `toml:"host_name"`
	Description    string `toml:"description"`
	ExecutablePath string `toml:"executable_path"`
}

// History contains configuration for the job history journal.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for diagnostic log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for SERP Companion.
//
// Configuration sections by subsystem:
//   - Paths: install root, bundled tools, logs, state, default output
//   - Downloader: executable discovery and default arguments
//   - Host: event queue sizing and diagnostic probe timeouts
//   - Tail: job log follow cadence
//   - Pairing: candidate ports and native messaging manifest fields
//   - History: SQLite journal of finished jobs
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Downloader Downloader `toml:"downloader"`
	Host       Host       `toml:"host"`
	Tail       Tail       `toml:"tail"`
	Pairing    Pairing    `toml:"pairing"`
	History    History    `toml:"history"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return expandPath("~/.config/serp-companion/config.toml")
	}
	return filepath.Join(base, "serp-companion", "config.toml"), nil
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("serp-companion.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HostLogPath is the diagnostic log written by the host itself.
func (c *Config) HostLogPath() string {
	return filepath.Join(c.Paths.LogDir, "serp-companion.log")
}

// JobLogPath is the deterministic log file handed to a downloader attempt.
func (c *Config) JobLogPath(jobID string, attempt int) string {
	if attempt <= 1 {
		return filepath.Join(c.Paths.LogDir, fmt.Sprintf("job-%s.log", jobID))
	}
	return filepath.Join(c.Paths.LogDir, fmt.Sprintf("job-%s.retry%d.log", jobID, attempt-1))
}

// CookiesPath is where extension-supplied cookies are stored for the downloader.
func (c *Config) CookiesPath() string {
	return filepath.Join(c.Paths.Root, "cookies.txt")
}

// ManifestPath is where the native messaging manifest is written before it is
// registered with the browser.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Paths.StateDir, c.Pairing.HostName+".json")
}

// ManifestLockPath guards concurrent manifest rewrites.
func (c *Config) ManifestLockPath() string {
	return filepath.Join(c.Paths.StateDir, "manifest.lock")
}

// PairLockPath enforces a single pairing server per user.
func (c *Config) PairLockPath() string {
	return filepath.Join(c.Paths.StateDir, "pair-server.lock")
}

// ProbeTimeout bounds auxiliary tool version probes.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Host.ProbeTimeoutSeconds) * time.Second
}

// WriterPoll is the writer loop's dequeue wait.
func (c *Config) WriterPoll() time.Duration {
	return time.Duration(c.Host.WriterPollMillis) * time.Millisecond
}

// TailPollInterval is the follower's sleep between reads and open attempts.
func (c *Config) TailPollInterval() time.Duration {
	return time.Duration(c.Tail.PollIntervalMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// executableName appends the platform executable suffix.
func executableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
