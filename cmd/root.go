package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plcdash-server/internal/app"
	"plcdash-server/internal/config"
	"plcdash-server/internal/logging"
)

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:           appName,
		Short:         "Live dashboard for Siemens S7-1200 humidity and temperature telemetry",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("http-addr", "", "listen address (default 0.0.0.0:5000)")
	flags.String("telemetry-url", "", "telemetry source URL")
	flags.String("log-level", "", "debug, info, warn or error")

	bind := map[string]string{
		"config_file":   "config",
		"http_addr":     "http-addr",
		"telemetry_url": "telemetry-url",
		"log_level":     "log-level",
	}
	for key, name := range bind {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	})

	return root
}

func serve(parent context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, closeLog := logging.New(cfg, version, appName)
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}()
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		return err
	}

	slog.Info("shutting down")
	return nil
}
