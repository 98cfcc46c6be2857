package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"statwatch/internal/config"
	"statwatch/internal/logging"
	"statwatch/internal/routes"
	"statwatch/internal/services"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logger)
		if err != nil {
			return errors.Wrap(err, "init logger")
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func newStatsSource(cfg config.SourceConfig, logger *zap.Logger) services.StatsSource {
	if cfg.Mode == config.SourceAPI {
		logger.Info("using remote stats source", zap.String("base_url", cfg.BaseURL))
		return services.NewAPIStatsSource(cfg.BaseURL, cfg.Token, cfg.Timeout)
	}
	logger.Info("using local stats source", zap.String("host", cfg.LocalHostID))
	return services.NewLocalStatsSource(cfg.LocalHostID, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Logger.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cache := services.NewSnapshotCache()
	orchestrator := services.NewOrchestrator(newStatsSource(cfg.Source, logger), cache, logger)
	defer orchestrator.Close()

	if cfg.Cache.Sweep != "" {
		sweeper, err := services.NewCacheSweeper(cfg.Cache.Sweep, cache, logger)
		if err != nil {
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	router := routes.NewRouter(cfg.Server, routes.Dependencies{
		Auth:         services.NewAuthService(cfg.Auth.Secret, cfg.Auth.TokenExpiry, logger),
		Orchestrator: orchestrator,
		Cache:        cache,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("statwatch listening", zap.String("addr", cfg.Server.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
