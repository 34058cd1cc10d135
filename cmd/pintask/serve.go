package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and reconciliation triggers",
		Long: `Start the pintask service.

Examples:
  pintask serve
  pintask serve --config ./config.yaml --migrate
  PINTASK_STORE_DRIVER=postgres DATABASE_URL=postgres://... pintask serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving (postgres only)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, migrate bool) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}

	repo, db, err := openRepository(ctx, cfg, log, migrate)
	if err != nil {
		return err
	}

	app, err := newApplication(cfg, log, repo, db, nil)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return err
	}
	defer app.shutdown()

	if err := app.start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveUntilDone(ctx, server, cfg.Server.ShutdownTimeout, log)
}

// serveUntilDone runs server until ctx is cancelled or the listener fails,
// then shuts it down gracefully within timeout.
func serveUntilDone(ctx context.Context, server *http.Server, timeout time.Duration, log *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server shutdown completed")
	return nil
}
