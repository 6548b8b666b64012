package jobs

import (
	"os"
	"runtime"
	"strings"
)

type childEnv struct {
	toolsDir  string
	logDir    string
	logFile   string
	bearerEnv string
	bearer    string
}

// build returns base with the downloader's variables applied. The tools
// directory is prepended to PATH only when it exists.
func (c childEnv) build(base []string) []string {
	out := make([]string, 0, len(base)+5)
	overrides := map[string]string{
		"PYTHONUNBUFFERED": "1",
		"SERP_LOG_DIR":     c.logDir,
		"SERP_LOG_FILE":    c.logFile,
	}
	if c.bearer != "" && c.bearerEnv != "" {
		overrides[c.bearerEnv] = c.bearer
	}
	prependTools := c.toolsDir != "" && dirExists(c.toolsDir)
	sawPath := false

	for _, entry := range base {
		key, value, _ := strings.Cut(entry, "=")
		if isPathKey(key) {
			sawPath = true
			if prependTools {
				entry = key + "=" + joinPath(c.toolsDir, value)
			}
			out = append(out, entry)
			continue
		}
		if _, replaced := lookupKey(overrides, key); replaced {
			continue
		}
		out = append(out, entry)
	}
	if !sawPath && prependTools {
		out = append(out, "PATH="+c.toolsDir)
	}
	for key, value := range overrides {
		out = append(out, key+"="+value)
	}
	return out
}

func isPathKey(key string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(key, "PATH")
	}
	return key == "PATH"
}

func lookupKey(m map[string]string, key string) (string, bool) {
	if runtime.GOOS == "windows" {
		for k, v := range m {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

func joinPath(dir, existing string) string {
	if existing == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + existing
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
