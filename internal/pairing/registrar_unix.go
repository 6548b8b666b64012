//go:build !windows

package pairing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"serpcompanion/internal/fileutil"
)

// DirRegistrar copies the manifest into browser NativeMessagingHosts
// directories. A directory is only used when its browser profile root exists.
type DirRegistrar struct {
	Dirs []string
}

// DefaultRegistrar returns the directory registrar for the current user's
// Chromium-family browsers.
func DefaultRegistrar() Registrar {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirRegistrar{}
	}
	return DirRegistrar{Dirs: browserHostDirs(home)}
}

func browserHostDirs(home string) []string {
	if runtime.GOOS == "darwin" {
		support := filepath.Join(home, "Library", "Application Support")
		return []string{
			filepath.Join(support, "Google", "Chrome", "NativeMessagingHosts"),
			filepath.Join(support, "Chromium", "NativeMessagingHosts"),
			filepath.Join(support, "BraveSoftware", "Brave-Browser", "NativeMessagingHosts"),
		}
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = filepath.Join(home, ".config")
	}
	return []string{
		filepath.Join(configDir, "google-chrome", "NativeMessagingHosts"),
		filepath.Join(configDir, "chromium", "NativeMessagingHosts"),
		filepath.Join(configDir, "BraveSoftware", "Brave-Browser", "NativeMessagingHosts"),
	}
}

// Register writes <hostName>.json into every directory whose browser is
// installed. It fails when no browser directory was usable.
func (r DirRegistrar) Register(hostName, _ string, manifest []byte) error {
	var (
		errs    []error
		written int
	)
	for _, dir := range r.Dirs {
		if _, err := os.Stat(filepath.Dir(dir)); err != nil {
			continue
		}
		target := filepath.Join(dir, hostName+".json")
		if err := fileutil.WriteFileAtomic(target, manifest, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		written++
	}
	if written > 0 {
		return nil
	}
	if len(errs) == 0 {
		return errors.New("no supported browser profile directory found")
	}
	return errors.Join(errs...)
}
