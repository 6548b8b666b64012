package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	defaultDownloaderBrowser   = "chrome"
	defaultDownloaderLogLevel  = "INFO"
	defaultBearerEnv           = "UDEMY_BEARER"
	defaultQueueCapacity       = 500
	defaultWriterPollMillis    = 1000
	defaultProbeTimeoutSeconds = 5
	defaultTailOpenAttempts    = 40
	defaultTailPollMillis      = 250
	defaultHostName            = "com.serp.companion"
	defaultHostDescription     = "SERP Companion Native Host"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 14
	appDirName                 = "serp-companion"
)

// DefaultPairingPorts lists the loopback ports tried in order by both the
// pairing server and the extension.
var DefaultPairingPorts = []int{60123, 53123, 54123, 55123, 56123, 47123, 42123, 23123}

// Default returns a Config populated with repository defaults. Empty path
// fields are derived during normalization.
func Default() Config {
	ports := make([]int, len(DefaultPairingPorts))
	copy(ports, DefaultPairingPorts)
	return Config{
		Downloader: Downloader{
			DefaultBrowser:  defaultDownloaderBrowser,
			DefaultLogLevel: defaultDownloaderLogLevel,
			BearerEnv:       defaultBearerEnv,
		},
		Host: Host{
			QueueCapacity:       defaultQueueCapacity,
			WriterPollMillis:    defaultWriterPollMillis,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			KillJobsOnExit:      true,
		},
		Tail: Tail{
			OpenAttempts:       defaultTailOpenAttempts,
			PollIntervalMillis: defaultTailPollMillis,
		},
		Pairing: Pairing{
			Ports:       ports,
			HostName:    defaultHostName,
			Description: defaultHostDescription,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

// defaultRoot derives the install root from the running executable. Packaged
// builds live in <root>/bin (or Contents/MacOS inside an app bundle).
func defaultRoot() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	switch filepath.Base(dir) {
	case "bin", "MacOS":
		return filepath.Dir(dir)
	default:
		return dir
	}
}

func defaultLogDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "SERP Companion")
	case "windows":
		if base, err := os.UserCacheDir(); err == nil {
			return filepath.Join(base, "SERP Companion", "logs")
		}
		return filepath.Join(home, "AppData", "Local", "SERP Companion", "logs")
	default:
		return filepath.Join(dataHome(home), appDirName, "logs")
	}
}

func defaultStateDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "SERP Companion")
	case "windows":
		if base, err := os.UserCacheDir(); err == nil {
			return filepath.Join(base, "SERP Companion")
		}
		return filepath.Join(home, "AppData", "Local", "SERP Companion")
	default:
		return filepath.Join(dataHome(home), appDirName)
	}
}

func dataHome(home string) string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && base != "" {
		return base
	}
	return filepath.Join(home, ".local", "share")
}

func defaultPython(root string) string {
	candidates := []string{
		filepath.Join(root, "venv", "Scripts", "python.exe"),
		filepath.Join(root, "venv", "bin", "python"),
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}
