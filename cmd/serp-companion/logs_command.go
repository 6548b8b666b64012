package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"serpcompanion/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var attempt int

	cmd := &cobra.Command{
		Use:   "logs <jobId>",
		Short: "Print a job's downloader log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID := strings.TrimSpace(args[0])
			if jobID == "" {
				return errors.New("job id is required")
			}
			if attempt < 1 {
				return fmt.Errorf("--attempt must be at least 1")
			}
			path := cfg.JobLogPath(jobID, attempt)

			tail, offset, err := logs.LastLines(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writeLines(out, tail)
			if !follow {
				if len(tail) == 0 && !pathExists(path) {
					return fmt.Errorf("no log file for job %s at %s", jobID, path)
				}
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = logs.Follow(runCtx, path, nil, logs.FollowOptions{
				Offset:       offset,
				PollInterval: cfg.TailPollInterval(),
			}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().IntVar(&attempt, "attempt", 1, "Downloader attempt (2 selects the bearer retry log)")
	return cmd
}
