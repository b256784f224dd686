package main

import (
	"CommentThreads/internal/auth"
	"CommentThreads/internal/cache"
	"CommentThreads/internal/config"
	"CommentThreads/internal/events"
	"CommentThreads/internal/repository"
	"CommentThreads/internal/router"
	"CommentThreads/internal/router/handlers"
	"CommentThreads/internal/service"
	"CommentThreads/pkg/logger"
	"context"
	"errors"
	"go.uber.org/zap"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load("./config/config.yaml")
	if err != nil {
		panic(err)
	}
	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo service.Repository
	if cfg.MasterDSN != "" {
		pg, err := repository.NewRepository(cfg.MasterDSN, cfg.SlaveDSNs, cfg.MigratePath, log)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		repo = pg
	} else {
		log.Warn("master_dsn not set, comments are kept in memory only")
		repo = repository.NewInMemoryRepository()
	}

	opts := service.Options{}
	if cfg.Cache.Enabled {
		rc, err := cache.NewRedis(ctx, cfg.Cache, log)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		opts.Cache = rc
	}
	publisher, err := events.New(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer publisher.Close()
	opts.Events = publisher

	if cfg.JWTSecret == "" {
		log.Warn("jwt_secret not set, every bearer token will be rejected")
	}

	serviceComment := service.NewService(repo, cfg.Comments, log, opts)
	handlersComment := handlers.NewCommentHandler(serviceComment)
	rout := router.NewRouter(ginMode(cfg.LogLevel), handlersComment, auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}, log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rout.GetEngine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to listen and server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down server", zap.Error(err))
	}
}

func ginMode(logLevel string) string {
	if logLevel == "debug" {
		return "debug"
	}
	return "release"
}
