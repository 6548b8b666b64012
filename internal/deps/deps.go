package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single version probe.
const DefaultProbeTimeout = 5 * time.Second

// Requirement defines an auxiliary tool the downloader relies on.
type Requirement struct {
	// Key names the tool in the info response.
	Key         string
	Name        string
	Command     string
	VersionArgs []string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Key         string
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Options controls where tools are looked up and how long probes may run.
type Options struct {
	// SearchDirs are checked, in order, before PATH.
	SearchDirs []string
	Timeout    time.Duration
}

// DownloaderRequirements lists the helpers the downloader shells out to.
func DownloaderRequirements() []Requirement {
	return []Requirement{
		{Key: "ffmpeg", Name: "FFmpeg", Command: "ffmpeg", VersionArgs: []string{"-version"}, Description: "Muxes and converts media segments"},
		{Key: "aria2c", Name: "aria2", Command: "aria2c", VersionArgs: []string{"--version"}, Description: "Parallel segment downloads", Optional: true},
		{Key: "yt_dlp", Name: "yt-dlp", Command: "yt-dlp", VersionArgs: []string{"--version"}, Description: "HLS stream fetching", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements, probing the version of
// each tool it finds. Probes run sequentially, each bounded by the timeout.
func CheckBinaries(ctx context.Context, requirements []Requirement, opts Options) []Status {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Key:         req.Key,
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, ok := locate(cmd, opts.SearchDirs)
		if !ok {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			status.Version = "unavailable: not found"
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		status.Version = ProbeVersion(ctx, resolved, req.VersionArgs, opts.Timeout)
		results = append(results, status)
	}
	return results
}

// ProbeVersion runs path with args and returns the first line of its
// output. Failures are folded into an "unavailable: ..." string.
func ProbeVersion(ctx context.Context, path string, args []string, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, path, args...) //nolint:gosec
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if probeCtx.Err() == context.DeadlineExceeded {
		return "unavailable: timeout"
	}
	if err != nil {
		return "unavailable: " + err.Error()
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return "unavailable: empty output"
	}
	return first
}

// locate prefers a binary bundled in one of dirs and falls back to PATH.
func locate(command string, dirs []string) (string, bool) {
	if strings.ContainsAny(command, `/\`) {
		if info, err := os.Stat(command); err == nil && isExecutable(info) {
			return command, true
		}
		return "", false
	}
	name := command
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
			return candidate, true
		}
	}
	if resolved, err := exec.LookPath(command); err == nil {
		return resolved, true
	}
	return "", false
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
