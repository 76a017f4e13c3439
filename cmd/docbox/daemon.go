package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docboxhq/docbox/internal/client"
	"github.com/docboxhq/docbox/internal/version"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	var addr string
	var authToken string

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start the DocBox client with the local control plane",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			slog.Info("docbox", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			if authToken == "" {
				authToken = cfg.ClientToken
			}

			daemon, err := client.New(cfg, &client.ControlPlaneConfig{
				Addr:      addr,
				AuthToken: authToken,
			})
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("daemon", "error", err)
				return err
			}
			return nil
		},
	}

	daemonCmd.Flags().StringVarP(&addr, "http-addr", "a", "localhost:7438", "Address to bind the control plane")
	daemonCmd.Flags().StringVar(&authToken, "http-token", "", "Access token for the control plane")

	return daemonCmd
}
