package jobs

import (
	"fmt"
	"os"

	"serpcompanion/internal/config"
)

// Downloader describes how the external downloader is invoked.
type Downloader struct {
	// Base is the program followed by fixed leading arguments.
	Base []string
	// Kind is "command", "packaged" or "script".
	Kind string
}

// ResolveDownloader selects the downloader entry point: an explicit command,
// then the packaged executable, then the Python script.
func ResolveDownloader(cfg *config.Config) (Downloader, error) {
	if cfg.Downloader.Command != "" {
		return Downloader{Base: []string{cfg.Downloader.Command}, Kind: "command"}, nil
	}
	if fileExists(cfg.Downloader.PackagedExe) {
		return Downloader{Base: []string{cfg.Downloader.PackagedExe}, Kind: "packaged"}, nil
	}
	if fileExists(cfg.Downloader.Script) {
		return Downloader{Base: []string{cfg.Downloader.Python, "-u", cfg.Downloader.Script}, Kind: "script"}, nil
	}
	return Downloader{}, fmt.Errorf("%w: %s", ErrDownloaderMissing, cfg.Downloader.Script)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
