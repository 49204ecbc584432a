package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/app"
	"github.com/tonydantona/practice-routines-api/internal/config"
	logpkg "github.com/tonydantona/practice-routines-api/internal/logger"
	"github.com/tonydantona/practice-routines-api/internal/version"
)

// options are the persistent flags shared by every command.
type options struct {
	env     string
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:gocritic // stop() already called
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "routines",
		Short:        "Guitar practice routines: pick, search and track what you practice",
		Long:         "Without a subcommand, routines starts the interactive menu.",
		Version:      version.String(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMenu(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "configuration environment (config/<env>.yaml)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second,
		"timeout for each operation, 0 disables")

	root.AddCommand(
		newServeCmd(opts),
		newBuildCmd(opts),
		newListCmd(opts),
		newSearchCmd(opts),
		newRandomCmd(opts),
		newCompleteCmd(opts),
		newUncompleteCmd(opts),
		newMenuCmd(opts),
	)
	return root
}

// session is the wired application for one command run.
type session struct {
	cfg    config.Config
	app    *app.App
	logger *zap.Logger
}

// setup loads configuration, creates the logger and wires the app. logEnv
// selects the logger flavor: the config environment for the server, "cli"
// for terminal commands.
func setup(ctx context.Context, opts *options, logEnv string) (*session, error) {
	cfg, err := config.Load(opts.env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var logger *zap.Logger
	if logEnv == "cli" {
		logger, err = logpkg.NewLogger(logEnv)
	} else {
		logger, err = logpkg.NewLogger(logEnv, cfg.Logging.Level)
	}
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Debug("Effective configuration", zap.Any("config", cfg.Summary()))

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &session{cfg: cfg, app: a, logger: logger}, nil
}

// opContext attaches the session logger and, when set, the operation timeout.
func (s *session) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = logpkg.ContextWithLogger(ctx, s.logger)
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (s *session) close() {
	s.app.Close()
	_ = s.logger.Sync()
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := setup(cmd.Context(), opts, opts.env)
			if err != nil {
				return err
			}
			defer s.close()

			return serve(cmd.Context(), s.cfg, s.app, s.logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, a *app.App, logger *zap.Logger) error {
	logger.Info("Starting practice routines API",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.Any("config", cfg.Summary()),
	)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.HTTPHandler(),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func runMenu(cmd *cobra.Command, opts *options) error {
	s, err := setup(cmd.Context(), opts, "cli")
	if err != nil {
		return err
	}
	defer s.close()

	ctx := logpkg.ContextWithLogger(cmd.Context(), s.logger)
	return s.app.Menu(cmd.InOrStdin(), cmd.OutOrStdout()).WithTimeout(opts.timeout).Run(ctx)
}

func newMenuCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Start the interactive menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMenu(cmd, opts)
		},
	}
}
