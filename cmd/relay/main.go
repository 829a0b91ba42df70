package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quizrelay/relay/internal/config"
	"github.com/quizrelay/relay/internal/health"
	"github.com/quizrelay/relay/internal/hub"
	"github.com/quizrelay/relay/internal/ids"
	"github.com/quizrelay/relay/internal/lifecycle"
	"github.com/quizrelay/relay/internal/logging"
	"github.com/quizrelay/relay/internal/middleware"
	"github.com/quizrelay/relay/internal/ratelimit"
	"github.com/quizrelay/relay/internal/registry"
	"github.com/quizrelay/relay/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load() // no .env in most deployments; env vars carry config instead

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	logger := logging.GetLogger()
	defer logger.Sync()

	reg := registry.New()
	tracker := transport.NewTracker()
	minter := ids.NewMinter()

	restoreLimiter, err := ratelimit.NewRestoreLimiter(cfg)
	if err != nil {
		logger.Fatal("building restore limiter", zap.Error(err))
	}
	connectLimiter, err := ratelimit.NewConnectLimiter(cfg)
	if err != nil {
		logger.Fatal("building connect limiter", zap.Error(err))
	}

	h := hub.New(reg, tracker, minter, restoreLimiter, cfg.AllowedOrigins)
	lc := lifecycle.New(tracker, reg)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go lc.Run(sweepCtx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.AllowedOrigins}
	corsConfig.AllowAllOrigins = cfg.AllowedOrigins == "*"
	router.Use(cors.New(corsConfig))

	healthHandler := health.NewHandler()
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", connectLimiter.Middleware(), h.ServeWs)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("relay listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	lc.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("relay exited")
}
