package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var pairServer bool

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "serp-companion [origin]",
		Short: "Native messaging companion for the SERP browser extension",
		Long: "Without a subcommand serp-companion runs as a native messaging host. " +
			"The browser passes the calling extension origin as an argument; it is logged and otherwise ignored.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Chrome on Windows appends --parent-window=<handle>.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if pairServer {
				return runPairServer(cmd, ctx)
			}
			if isTerminal(cmd.InOrStdin()) {
				fmt.Fprintln(cmd.ErrOrStderr(), "serp-companion expects to be started by the browser; stdin is a terminal. See `serp-companion --help`.")
			}
			return runHost(cmd, ctx, args)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().BoolVar(&pairServer, "pair-server", false, "Run the loopback pairing server (same as the pair-server command)")
	_ = rootCmd.Flags().MarkHidden("pair-server")

	rootCmd.AddCommand(newPairServerCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newManifestCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
