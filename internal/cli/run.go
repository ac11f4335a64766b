package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"autosync/internal/app"
	"autosync/internal/config"
	"autosync/internal/logging"
	"autosync/internal/version"
)

type runOptions struct {
	listen   string
	logLevel string
	token    string
	noReload bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the configured roots and sync changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "status API address, overrides the settings file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warning or error")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv(tokenEnv), "bearer token required by the status API")
	cmd.Flags().BoolVar(&opts.noReload, "no-reload", false, "do not reload the settings file when it changes")
	return cmd
}

func runService(cmd *cobra.Command, opts *runOptions) error {
	path := configPath(cmd)
	settings, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		settings.Listen = opts.listen
	}
	if opts.logLevel != "" {
		settings.LogLevel = opts.logLevel
	}
	level, ok := logging.ParseLevel(settings.LogLevel)
	if !ok {
		return fmt.Errorf("log level %q: %w", settings.LogLevel, config.ErrInvalidSetting)
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), level, cmd.ErrOrStderr())
	for _, key := range settings.Unknown {
		logger.Warn("unknown setting ignored", map[string]string{"key": key})
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopWatching := watchShutdownSignals(logger, cancel, signals)
	defer stopWatching()

	service, err := app.New(ctx, settings, app.Options{
		Logger:    logger,
		AuthToken: opts.token,
	})
	if service == nil {
		return err
	}
	if err != nil {
		logger.ErrorErr(err, "some roots failed to start", nil)
	}
	defer service.Close()

	if !opts.noReload {
		if err := service.WatchConfig(path, config.Load); err != nil {
			logger.Warn("config reload disabled", map[string]string{logging.FieldError: err.Error()})
		}
	}

	info := version.Get()
	logger.Info("autosync started", map[string]string{
		"version": info.Version,
		"config":  path,
		"roots":   strconv.Itoa(len(settings.Roots)),
		"listen":  settings.Listen,
	})
	return service.Serve(settings.Listen)
}
