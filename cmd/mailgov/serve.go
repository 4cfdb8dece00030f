package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "github.com/EfG-Haigerseelbach/ct-plesk-email/internal/auth/jwt"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/cache"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/storage"
	httptransport "github.com/EfG-Haigerseelbach/ct-plesk-email/internal/transport/http"
)

// governedCacheTTL 受管邮箱列表缓存时间
const governedCacheTTL = 5 * time.Minute

func newServeCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	governed := cache.NewLocalCache[[]domain.InventoryEntity](1, governedCacheTTL)
	defer governed.Close()

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Runs:           a.runs,
		Inventory:      a.inventory,
		Remover:        a.provisioner,
		JWTManager:     jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry),
		Metrics:        a.metrics,
		Health:         a.health,
		GovernedCache:  governed,
		RunTimeout:     cfg.Schedule.RunTimeout,
		Logger:         a.log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// 手动触发的对账在请求内同步执行
		WriteTimeout: cfg.Schedule.RunTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		schedule(groupCtx, a, governed.Clear)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		a.log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	return group.Wait()
}

// schedule 按固定间隔运行对账，直到 ctx 取消
func schedule(ctx context.Context, a *app, afterRun func()) {
	interval := a.cfg.Schedule.Interval
	if interval <= 0 && !a.cfg.Schedule.RunOnStart {
		a.log.Info("scheduled reconciliation disabled")
		return
	}

	runOnce := func() {
		runCtx, cancel := a.runContext(ctx)
		defer cancel()

		_, err := a.runs.Run(runCtx, domain.TriggerSchedule)
		afterRun()
		switch {
		case errors.Is(err, storage.ErrLocked):
			a.log.Info("scheduled reconciliation skipped, another run holds the lock")
		case err != nil:
			a.log.Error("scheduled reconciliation failed", zap.Error(err))
		}
	}

	if a.cfg.Schedule.RunOnStart {
		runOnce()
	}
	if interval <= 0 {
		return
	}

	a.log.Info("scheduled reconciliation enabled", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
