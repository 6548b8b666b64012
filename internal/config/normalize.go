package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDownloader(); err != nil {
		return err
	}
	if err := c.normalizePairing(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeHost()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("SERP_COMPANION_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.Root = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.Root) == "" {
		c.Paths.Root = defaultRoot()
	}
	if c.Paths.Root, err = expandPath(c.Paths.Root); err != nil {
		return fmt.Errorf("paths.root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir()
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ToolsDir) == "" {
		c.Paths.ToolsDir = filepath.Join(c.Paths.Root, "tools")
	}
	if c.Paths.ToolsDir, err = expandPath(c.Paths.ToolsDir); err != nil {
		return fmt.Errorf("paths.tools_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.DefaultOutDir, err = expandPath(strings.TrimSpace(c.Paths.DefaultOutDir)); err != nil {
		return fmt.Errorf("paths.default_out_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDownloader() error {
	var err error
	c.Downloader.Command = strings.TrimSpace(c.Downloader.Command)
	if c.Downloader.Command != "" && strings.ContainsAny(c.Downloader.Command, `/\`) {
		if c.Downloader.Command, err = expandPath(c.Downloader.Command); err != nil {
			return fmt.Errorf("downloader.command: %w", err)
		}
	}
	if strings.TrimSpace(c.Downloader.Script) == "" {
		c.Downloader.Script = filepath.Join(c.Paths.Root, "main.py")
	}
	if c.Downloader.Script, err = expandPath(c.Downloader.Script); err != nil {
		return fmt.Errorf("downloader.script: %w", err)
	}
	if strings.TrimSpace(c.Downloader.PackagedExe) == "" {
		c.Downloader.PackagedExe = filepath.Join(c.Paths.Root, "bin", executableName("udemy-downloader"))
	}
	if c.Downloader.PackagedExe, err = expandPath(c.Downloader.PackagedExe); err != nil {
		return fmt.Errorf("downloader.packaged_exe: %w", err)
	}
	c.Downloader.Python = strings.TrimSpace(c.Downloader.Python)
	if c.Downloader.Python == "" {
		c.Downloader.Python = defaultPython(c.Paths.Root)
	}
	c.Downloader.DefaultBrowser = strings.TrimSpace(c.Downloader.DefaultBrowser)
	c.Downloader.DefaultLogLevel = strings.ToUpper(strings.TrimSpace(c.Downloader.DefaultLogLevel))
	if c.Downloader.DefaultLogLevel == "" {
		c.Downloader.DefaultLogLevel = defaultDownloaderLogLevel
	}
	c.Downloader.BearerEnv = strings.TrimSpace(c.Downloader.BearerEnv)
	if c.Downloader.BearerEnv == "" {
		c.Downloader.BearerEnv = defaultBearerEnv
	}
	return nil
}

func (c *Config) normalizePairing() error {
	c.Pairing.HostName = strings.TrimSpace(c.Pairing.HostName)
	if c.Pairing.HostName == "" {
		c.Pairing.HostName = defaultHostName
	}
	c.Pairing.Description = strings.TrimSpace(c.Pairing.Description)
	if c.Pairing.Description == "" {
		c.Pairing.Description = defaultHostDescription
	}
	if len(c.Pairing.Ports) == 0 {
		c.Pairing.Ports = append([]int(nil), DefaultPairingPorts...)
	}
	c.Pairing.ExecutablePath = strings.TrimSpace(c.Pairing.ExecutablePath)
	if c.Pairing.ExecutablePath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("pairing.executable_path: %w", err)
		}
		c.Pairing.ExecutablePath = exe
	}
	var err error
	if c.Pairing.ExecutablePath, err = expandPath(c.Pairing.ExecutablePath); err != nil {
		return fmt.Errorf("pairing.executable_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.StateDir, "history.db")
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeHost() {
	if c.Host.QueueCapacity == 0 {
		c.Host.QueueCapacity = defaultQueueCapacity
	}
	if c.Host.WriterPollMillis == 0 {
		c.Host.WriterPollMillis = defaultWriterPollMillis
	}
	if c.Host.ProbeTimeoutSeconds == 0 {
		c.Host.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if c.Tail.OpenAttempts == 0 {
		c.Tail.OpenAttempts = defaultTailOpenAttempts
	}
	if c.Tail.PollIntervalMillis == 0 {
		c.Tail.PollIntervalMillis = defaultTailPollMillis
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("SERP_COMPANION_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
