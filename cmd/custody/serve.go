package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/custody/pkg/api"
)

const shutdownTimeout = 15 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the custody HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, addr, cmd)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, addr string, cmd *cobra.Command) error {
	cfg, profile, logger, err := loadSettings(rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, profile, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.startAnchoring(ctx)

	opts := []api.Option{
		api.WithTelemetry(a.telemetry),
		api.WithDefaultShareDays(profile.DefaultShareDays),
		api.WithMaxUpload(profile.Admission.MaxSize),
		api.WithLogger(logger.With("component", "api")),
	}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, api.WithRateLimiter(api.NewPrincipalRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
	}
	if addr == "" {
		addr = ":" + cfg.Port
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a.catalog, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "custody listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
