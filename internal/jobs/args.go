package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"serpcompanion/internal/protocol"
)

// RedactedValue replaces secrets in reported argument vectors.
const RedactedValue = "***"

const (
	flagBearer       = "-b"
	flagCookiesFirst = "--cookies-first"
)

// StartOptions is the payload of a start request.
type StartOptions struct {
	CourseURL              string       `json:"courseUrl"`
	Browser                *string      `json:"browser,omitempty"`
	Quality                protocol.Int `json:"quality"`
	DownloadCaptions       bool         `json:"downloadCaptions"`
	CaptionLang            string       `json:"captionLang"`
	DownloadAssets         bool         `json:"downloadAssets"`
	OutDir                 string       `json:"outDir"`
	SkipHLS                bool         `json:"skipHls"`
	KeepVTT                bool         `json:"keepVtt"`
	ContinueLectureNumbers bool         `json:"continueLectureNumbers"`
	ConcurrentDownloads    protocol.Int `json:"concurrentDownloads"`
	CookiesTxt             string       `json:"cookiesTxt"`
	Bearer                 string       `json:"bearer"`
	PreferCookies          bool         `json:"preferCookies"`
	LogLevel               string       `json:"logLevel"`
}

// ArgDefaults supplies values used when the request leaves them out.
type ArgDefaults struct {
	Browser  string
	LogLevel string
}

// BuildArgs assembles the downloader argument vector. base is the resolved
// program and any fixed leading arguments; outDir must already be resolved.
func BuildArgs(base []string, opts StartOptions, outDir string, defaults ArgDefaults) []string {
	args := append([]string(nil), base...)
	args = append(args, "-c", strings.TrimSpace(opts.CourseURL))

	browser := defaults.Browser
	if opts.Browser != nil {
		browser = strings.TrimSpace(*opts.Browser)
	}
	if browser != "" {
		args = append(args, "--browser", browser)
	}
	if opts.Quality.Set {
		args = append(args, "-q", strconv.Itoa(opts.Quality.Value))
	}
	if opts.DownloadCaptions {
		args = append(args, "--download-captions")
		if lang := strings.TrimSpace(opts.CaptionLang); lang != "" {
			args = append(args, "-l", lang)
		}
	}
	if opts.DownloadAssets {
		args = append(args, "--download-assets")
	}
	if outDir != "" {
		args = append(args, "-o", outDir)
	}
	if opts.SkipHLS {
		args = append(args, "--skip-hls")
	}
	if opts.KeepVTT {
		args = append(args, "--keep-vtt")
	}
	if opts.ContinueLectureNumbers {
		args = append(args, "-n")
	}
	if opts.ConcurrentDownloads.Set && opts.ConcurrentDownloads.Value > 0 {
		args = append(args, "-cd", strconv.Itoa(opts.ConcurrentDownloads.Value))
	}
	logLevel := strings.TrimSpace(opts.LogLevel)
	if logLevel == "" {
		logLevel = defaults.LogLevel
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	if bearer := strings.TrimSpace(opts.Bearer); bearer != "" {
		if opts.PreferCookies {
			args = append(args, flagCookiesFirst)
		} else {
			args = append(args, flagBearer, bearer)
		}
	}
	return args
}

// RetryArgs derives the bearer retry vector: --cookies-first is replaced by
// -b <token>, or -b <token> is appended when the flag is absent.
func RetryArgs(argv []string, bearer string) []string {
	out := make([]string, 0, len(argv)+2)
	replaced := false
	for _, arg := range argv {
		if arg == flagCookiesFirst {
			if !replaced {
				out = append(out, flagBearer, bearer)
				replaced = true
			}
			continue
		}
		out = append(out, arg)
	}
	if !replaced {
		out = append(out, flagBearer, bearer)
	}
	return out
}

// Redact returns a copy of argv with the value following -b masked.
func Redact(argv []string) []string {
	out := append([]string(nil), argv...)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == flagBearer {
			out[i+1] = RedactedValue
			i++
		}
	}
	return out
}

// ResolveOutDir picks the download directory. An explicit request value
// wins; otherwise the configured default, then ~/Videos/Udemy, then
// ~/Downloads/Udemy, whichever can be created first.
func ResolveOutDir(requested, configured string) (string, error) {
	if dir := strings.TrimSpace(requested); dir != "" {
		return dir, nil
	}
	candidates := make([]string, 0, 3)
	if configured != "" {
		candidates = append(candidates, configured)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "Videos", "Udemy"),
			filepath.Join(home, "Downloads", "Udemy"),
		)
	}
	var lastErr error
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			lastErr = err
			continue
		}
		return dir, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no home directory")
	}
	return "", fmt.Errorf("resolve output directory: %w", lastErr)
}
