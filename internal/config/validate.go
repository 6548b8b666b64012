package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateHost(); err != nil {
		return err
	}
	if err := c.validateTail(); err != nil {
		return err
	}
	if err := c.validatePairing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.Root) == "" {
		return errors.New("paths.root must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateHost() error {
	if c.Host.QueueCapacity < 1 {
		return errors.New("host.queue_capacity must be positive")
	}
	if c.Host.WriterPollMillis < 1 {
		return errors.New("host.writer_poll_ms must be positive")
	}
	if c.Host.ProbeTimeoutSeconds < 1 {
		return errors.New("host.probe_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTail() error {
	if c.Tail.OpenAttempts < 1 {
		return errors.New("tail.open_attempts must be positive")
	}
	if c.Tail.PollIntervalMillis < 1 {
		return errors.New("tail.poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validatePairing() error {
	if len(c.Pairing.Ports) == 0 {
		return errors.New("pairing.ports must list at least one port")
	}
	seen := make(map[int]struct{}, len(c.Pairing.Ports))
	for _, port := range c.Pairing.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("pairing.ports: %d is not a valid TCP port", port)
		}
		if _, dup := seen[port]; dup {
			return fmt.Errorf("pairing.ports: %d listed more than once", port)
		}
		seen[port] = struct{}{}
	}
	if strings.ContainsAny(c.Pairing.HostName, " /\\") {
		return fmt.Errorf("pairing.host_name %q must not contain spaces or path separators", c.Pairing.HostName)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
