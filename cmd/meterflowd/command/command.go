// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package command defines the meterflowd command tree.
package command

import (
	"bytes"
	"context"
	"os"

	"github.com/meterflow/meterflow"
	"github.com/meterflow/meterflow/app"
	"github.com/meterflow/meterflow/appbuilder"
	"github.com/meterflow/meterflow/config"

	"github.com/spf13/cobra"
)

// envPrefix namespaces the environment config source,
// e.g. METERFLOW_API_HOST overrides api.host.
const envPrefix = "METERFLOW"

// New returns the root meterflowd command.
func New() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "meterflowd",
		Short:        "Telemetry ingestion API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the service config file")

	cmd.AddCommand(
		workerCommand(&configPath),
		dbsyncCommand(&configPath),
		expirerCommand(&configPath),
	)
	return cmd
}

// serve runs the parent process: it binds the socket and supervises
// the worker pool.
func serve(ctx context.Context, configPath string) error {
	srcs, err := configSources(configPath)
	if err != nil {
		return err
	}

	a := appbuilder.Recover(meterflow.AppBuilderFunc[app.Config](func(ctx context.Context, cfg app.Config) (meterflow.App, error) {
		built, err := app.Builder(configPath).Build(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return app.Recover(app.WithSignalNotifications(built, os.Interrupt)), nil
	}))
	return meterflow.Run(ctx, a, srcs...)
}

// workerCommand is the hidden entry point the supervisor re-executes
// the binary with. The worker serves over the socket it inherited.
func workerCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func dbsyncCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dbsync",
		Short: "Migrate the storage backend schema to the current version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd.Context(), *configPath, app.UpgradeSchema)
		},
	}
}

func expirerCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "expirer",
		Short: "Purge samples older than the configured time to live",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(cmd.Context(), *configPath, app.PurgeExpired)
		},
	}
}

// withConfig reads and unmarshals the config sources, then hands the
// config to f. Used by the one-shot maintenance subcommands.
func withConfig(ctx context.Context, configPath string, f func(context.Context, app.Config) error) error {
	srcs, err := configSources(configPath)
	if err != nil {
		return err
	}

	builder := meterflow.AppBuilderFunc[app.Config](func(ctx context.Context, cfg app.Config) (meterflow.App, error) {
		return appFunc(func(ctx context.Context) error {
			return f(ctx, cfg)
		}), nil
	})
	return meterflow.Run(ctx, builder, srcs...)
}

type appFunc func(context.Context) error

func (f appFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// configSources builds the config sources in precedence order: the
// optional config file first, then environment overrides on top.
func configSources(configPath string) ([]config.Source, error) {
	var srcs []config.Source
	if configPath != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, config.FromYaml(bytes.NewReader(b)))
	}
	return append(srcs, config.FromEnv(envPrefix)), nil
}
