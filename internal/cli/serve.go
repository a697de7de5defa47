package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/web"
	"github.com/spf13/cobra"
)

func (a *App) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the import API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *App) runServe(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	a.logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	store, release, err := a.connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer release()

	core.MaxFileSize = cfg.Import.MaxFileSize
	limiter := core.NewBatchLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	engine := core.NewEngine(store, core.Options{
		Logger:  a.logger,
		Level:   a.level,
		Limiter: limiter,
		Timeout: cfg.Import.Timeout,
	})

	a.logger.Info("entities registered", "count", core.EntityCount())

	server := web.NewServer(engine, limiter, cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := limiter.Status(); status.Active > 0 {
		a.logger.Info("waiting for imports to complete", "active", status.Active, "entities", status.Entities)
		if err := limiter.WaitForDrain(shutdownCtx); err != nil {
			a.logger.Warn("imports did not complete in time", "error", err)
		} else {
			a.logger.Info("all imports completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown error", "error", err)
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
