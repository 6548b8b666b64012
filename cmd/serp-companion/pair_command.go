package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"serpcompanion/internal/events"
	"serpcompanion/internal/frame"
	"serpcompanion/internal/pairing"
)

func newPairServerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "pair-server",
		Aliases: []string{"pair"},
		Short:   "Serve the loopback pairing endpoint used to register the extension",
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPairServer(cmd, ctx)
		},
	}
}

// runPairServer reports its address as a framed event on stdout, the same way
// the host does, so an installer can read it with the protocol codec.
func runPairServer(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.hostLogger()
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub := events.New(frame.NewWriter(cmd.OutOrStdout()), events.Options{
		Capacity: cfg.Host.QueueCapacity,
		Poll:     cfg.WriterPoll(),
		Logger:   logger,
	})
	server := pairing.NewServer(cfg, pairing.NewInstaller(cfg, nil, logger), pub, logger)

	writerCtx, stopWriter := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return pub.Run(writerCtx)
	})
	group.Go(func() error {
		defer stopWriter()
		err := server.Run(groupCtx)
		if errors.Is(err, pairing.ErrAlreadyRunning) {
			logger.Info("pairing server already running; exiting")
			return nil
		}
		return err
	})
	return group.Wait()
}
