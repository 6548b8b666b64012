package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"serpcompanion/internal/history"
	"serpcompanion/internal/host"
	"serpcompanion/internal/jobs"
	"serpcompanion/internal/logging"
)

func runHost(cmd *cobra.Command, ctx *commandContext, args []string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.hostLogger()
	if err != nil {
		return err
	}

	attrs := []logging.Attr{logging.String("version", version), logging.Int("pid", os.Getpid())}
	if len(args) > 0 {
		attrs = append(attrs, logging.String("origin", args[0]))
	}
	logger.Info("native host starting", logging.Args(attrs...)...)

	opts := host.Options{Version: version}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logging.WarnWithContext(logger, "job history unavailable", "history_open_failed",
				logging.String("path", cfg.History.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "finished jobs will not be journaled"),
				logging.String(logging.FieldErrorHint, "delete the history database if its schema is outdated"),
			)
		} else {
			defer store.Close()
			opts.Recorder = jobs.Recorder(store)
		}
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := host.New(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), logger, opts)
	if err := h.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("native host stopped")
	return nil
}
