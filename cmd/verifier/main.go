package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/cache"
	"github.com/blockbase-labs/oid4vc-suite/internal/didkey"
	"github.com/blockbase-labs/oid4vc-suite/internal/proof"
	"github.com/blockbase-labs/oid4vc-suite/internal/verifier"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
	"github.com/blockbase-labs/oid4vc-suite/pkg/logging"
	"github.com/blockbase-labs/oid4vc-suite/pkg/middleware"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateVerifier(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting verifier", zap.String("version", version))

	store, err := newSessionStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	var resolver didkey.Resolver = didkey.MethodRouter{}
	if cfg.Verifier.ResolverURL != "" {
		resolver = didkey.MethodRouter{Fallback: didkey.NewUniversalResolver(cfg.Verifier.ResolverURL)}
	}

	ttl := time.Duration(cfg.SessionStore.TTLSeconds) * time.Second
	requests, err := verifier.NewRequestEngine(store, &cfg.Verifier, ttl, logger)
	if err != nil {
		logger.Fatal("Failed to initialize request engine", zap.Error(err))
	}

	validator := verifier.NewSubmissionValidator(store, proof.NewValidator(resolver, logger), resolver, logger)
	handlers := verifier.NewHandlers(&cfg.Verifier, requests, validator, logger)

	router := newRouter(cfg, logger)
	handlers.Register(router)

	srv := &http.Server{
		Addr:         cfg.Verifier.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Verifier listening", zap.String("address", cfg.Verifier.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down verifier...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Verifier exited")
}

func newSessionStore(cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	if cfg.SessionStore.Type == "redis" {
		return cache.NewRedisStore(&cache.RedisConfig{
			Address:   cfg.SessionStore.Redis.Address,
			Password:  cfg.SessionStore.Redis.Password,
			DB:        cfg.SessionStore.Redis.DB,
			KeyPrefix: cfg.SessionStore.Redis.KeyPrefix,
		}, logger)
	}
	return cache.NewMemoryStore(logger), nil
}

func newRouter(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	return router
}
