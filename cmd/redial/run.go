package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"redial/pkg/core"
	"redial/pkg/metrics"
	"redial/pkg/reconnect"
	"redial/pkg/transport"
)

type runOptions struct {
	configPath  string
	metricsAddr string
	logLevel    string
	connect     bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a session and read commands from stdin",
		Long: `Start a session and read commands from stdin.

Commands: connect, disconnect, leave, status, interval <duration>,
attempts <n>, reset, help, quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.connect, "connect", false, "connect immediately instead of waiting for the connect command")
	return cmd
}

func run(ctx context.Context, opts *runOptions, in io.Reader, out io.Writer) error {
	config, err := core.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		config.MetricsAddr = opts.metricsAddr
	}
	if opts.logLevel != "" {
		config.LogLevel = opts.logLevel
		if err := config.Validate(); err != nil {
			return err
		}
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	recorder := metrics.NewRecorder()

	if config.MetricsAddr != "" {
		server := metrics.NewServer(config.MetricsAddr, recorder)
		server.SetLogger(logger)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("metrics server shutdown failed")
			}
		}()
	}

	w := &syncWriter{w: out}
	c, err := newConsole(newSessionFactory(config, logger, recorder, w), w, reconnect.DefaultPollPeriod)
	if err != nil {
		return err
	}
	c.onDetach = recorder.Forget
	c.Start(ctx)

	if opts.connect {
		if _, err := c.Execute(ctx, "connect"); err != nil {
			c.Close()
			return err
		}
	}

	err = c.Run(ctx, in)

	c.Close()
	fmt.Fprintln(w, "Shutting down...")
	return err
}

// newSessionFactory builds sessions from config, each over its own link and
// reporting to recorder.
func newSessionFactory(config *core.Config, logger zerolog.Logger, recorder *metrics.Recorder, w io.Writer) sessionFactory {
	return func() (*reconnect.Manager, transport.Link, error) {
		link, err := transport.New(config, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create transport: %w", err)
		}

		session, err := reconnect.New(config, link)
		if err != nil {
			return nil, nil, fmt.Errorf("create session: %w", err)
		}
		session.SetLogger(logger)
		if recorder != nil {
			session.SetObserver(recorder)
		}
		session.OnExhausted(func(s core.Snapshot) {
			fmt.Fprintf(w, "[EXHAUSTED] gave up after %d failed attempts\n", s.ReconnectCount)
		})
		return session, link, nil
	}
}

func printStates(updates <-chan core.Snapshot, w io.Writer) {
	last := core.ConnectionState(-1)
	for snap := range updates {
		if snap.State == last {
			continue
		}
		last = snap.State
		fmt.Fprintf(w, "[STATE] %s (reconnects: %d)\n", snap.State, snap.ReconnectCount)
	}
}
