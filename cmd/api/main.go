package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"anoint-auth/internal/app"
	"anoint-auth/internal/config"
	apihttp "anoint-auth/internal/http"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("app init", zap.Error(err))
	}
	defer a.Close()

	authHandler := apihttp.NewAuthHandler(logger, a.Cache, cfg.IsProduction())
	router := apihttp.NewRouter(logger, authHandler, apihttp.RouterDeps{
		Sessions:              a.Identity,
		GatewayFor:            a.Gateway,
		Cache:                 a.Cache,
		Metrics:               a.Metrics,
		MetricsHandler:        promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		SecureCookies:         cfg.IsProduction(),
		AuthRequestsPerMinute: cfg.AuthRequestsPerMinute,
		TrustedProxies:        cfg.TrustedProxies,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
