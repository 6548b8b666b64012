package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"serpcompanion/internal/deps"
	"serpcompanion/internal/jobs"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show resolved paths and helper tool versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color := isTerminal(out)

			downloader := "missing"
			if dl, err := jobs.ResolveDownloader(cfg); err == nil {
				downloader = fmt.Sprintf("%s (%s)", dl.Kind, dl.Base[0])
			}
			paths := [][]string{
				{"Version", version},
				{"Go", runtime.Version()},
				{"Root", cfg.Paths.Root},
				{"Log directory", cfg.Paths.LogDir},
				{"Tools directory", cfg.Paths.ToolsDir},
				{"Downloader", downloader},
				{"Downloader script", fmt.Sprintf("%s (exists: %s)", cfg.Downloader.Script, yesNo(pathExists(cfg.Downloader.Script)))},
				{"Manifest", fmt.Sprintf("%s (exists: %s)", cfg.ManifestPath(), yesNo(pathExists(cfg.ManifestPath())))},
				{"History", cfg.History.Path},
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, paths, nil, color))

			statuses := deps.CheckBinaries(cmd.Context(), deps.DownloaderRequirements(), deps.Options{
				SearchDirs: []string{cfg.Paths.ToolsDir},
				Timeout:    cfg.ProbeTimeout(),
			})
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				rows = append(rows, []string{status.Name, yesNo(status.Available), yesNo(status.Optional), status.Version})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Available", "Optional", "Version"}, rows, nil, color))
			return nil
		},
	}
}

func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
