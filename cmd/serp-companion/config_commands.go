package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"serpcompanion/internal/config"
	"serpcompanion/internal/jobs"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the companion configuration",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample config.toml",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configTarget(targetPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if !overwrite {
				_, err := os.Stat(target)
				switch {
				case err == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(err, os.ErrNotExist):
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			writeLines(out, []string{
				"Next steps:",
				"  1. Point [downloader] command (or [paths] root) at the course downloader.",
				"  2. Register the host: serp-companion manifest install --ext-id <extension id>",
				"  3. Check the result: serp-companion --config " + target + " config validate",
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Where to write config.toml (default: user config dir)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func configTarget(flagValue string) (string, error) {
	if target := strings.TrimSpace(flagValue); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and show what the host will use",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(path))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Config path: %s\n", resolved)
			} else {
				fmt.Fprintf(out, "Config path: %s (not found, using defaults)\n", resolved)
			}
			fmt.Fprintln(out, renderTable([]string{"Section", "Setting", "Value"}, configRows(cfg), nil, isTerminal(out)))

			dl, dlErr := jobs.ResolveDownloader(cfg)
			if dlErr != nil {
				fmt.Fprintf(out, "Warning: no downloader found (%s); start requests will fail\n", jobs.WireError(dlErr))
				if strict {
					return fmt.Errorf("downloader: %w", dlErr)
				}
			} else {
				fmt.Fprintf(out, "Downloader: %s\n", strings.Join(dl.Base, " "))
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when no downloader entry point can be resolved")
	return cmd
}

func configRows(cfg *config.Config) [][]string {
	ports := make([]string, 0, len(cfg.Pairing.Ports))
	for _, port := range cfg.Pairing.Ports {
		ports = append(ports, strconv.Itoa(port))
	}
	historyPath := "disabled"
	if cfg.History.Enabled {
		historyPath = cfg.History.Path
	}
	return [][]string{
		{"paths", "root", cfg.Paths.Root},
		{"paths", "log_dir", cfg.Paths.LogDir},
		{"paths", "state_dir", cfg.Paths.StateDir},
		{"paths", "default_out_dir", cfg.Paths.DefaultOutDir},
		{"downloader", "default_browser", cfg.Downloader.DefaultBrowser},
		{"host", "kill_jobs_on_exit", yesNo(cfg.Host.KillJobsOnExit)},
		{"pairing", "host_name", cfg.Pairing.HostName},
		{"pairing", "ports", strings.Join(ports, ", ")},
		{"history", "path", historyPath},
		{"logging", "level", cfg.Logging.Level},
	}
}
