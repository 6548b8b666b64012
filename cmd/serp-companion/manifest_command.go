package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"serpcompanion/internal/pairing"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Native messaging manifest utilities",
	}
	manifestCmd.AddCommand(newManifestInstallCommand(ctx))
	return manifestCmd
}

func newManifestInstallCommand(ctx *commandContext) *cobra.Command {
	var extIDs []string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write and register the manifest for one or more extension ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(extIDs) == 0 {
				return errors.New("at least one --ext-id is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			installer := pairing.NewInstaller(cfg, nil, ctx.cliLogger())
			path, err := installer.Install(cmd.Context(), extIDs...)
			if err != nil {
				if path != "" {
					return fmt.Errorf("manifest written to %s but not registered: %w", path, err)
				}
				return fmt.Errorf("install manifest: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Manifest written to %s\n", path)
			for _, id := range extIDs {
				fmt.Fprintf(out, "Allowed origin: %s\n", pairing.ExtensionOrigin(id))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&extIDs, "ext-id", nil, "Extension id allowed to launch the host (repeatable)")
	return cmd
}
