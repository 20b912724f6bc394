package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bar-pos/internal/auth"
	"bar-pos/internal/cache"
	"bar-pos/internal/config"
	"bar-pos/internal/database"
	"bar-pos/internal/events"
	"bar-pos/internal/handlers"
	"bar-pos/internal/logger"
	"bar-pos/internal/middleware"
	"bar-pos/internal/remotestore"
)

func main() {
	config.LoadEnv()
	cfg := config.LoadServer()
	if err := logger.Setup(logger.Config{Directory: cfg.LogDir, FileFormat: "server-%s.log"}); err != nil {
		logger.LogFatal("logger setup: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Repository
	var (
		repo    remotestore.Repository
		cleanup = func() {}
	)
	switch cfg.Backend {
	case "mysql":
		db, err := database.Connect(cfg.DSN, 5)
		if err != nil {
			logger.LogFatal("%v", err)
		}
		repo = database.NewGormRepository(db)
		if sqlDB, err := db.DB(); err == nil {
			cleanup = func() { _ = sqlDB.Close() }
		}
	case "mongo":
		m, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.LogFatal("%v", err)
		}
		repo = m
		cleanup = func() { _ = m.Close(context.Background()) }
	case "memory":
		logger.LogWarn("DB_BACKEND=memory: nothing survives a restart")
		repo = remotestore.NewMemoryRepository()
	default:
		logger.LogFatal("unknown DB_BACKEND %q (mysql, mongo or memory)", cfg.Backend)
	}
	defer cleanup()

	opts := []remotestore.Option{remotestore.WithTrialPeriod(cfg.TrialPeriod)}

	// 2. Optional append dedup in Redis
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr)
		if err := cache.Ping(ctx, rdb); err != nil {
			logger.LogWarn("redis unavailable, appends are deduplicated by the database only: %v", err)
		} else {
			opts = append(opts, remotestore.WithDeduper(cache.NewDedup(rdb)))
		}
		defer rdb.Close()
	}

	// 3. Optional sync events to Kafka
	var prod *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = events.NewProducer(cfg.KafkaBrokers, 256)
		prod.Start(ctx)
		opts = append(opts, remotestore.WithPublisher(prod))
		logger.LogInfo("publishing sync events to %s on %v", events.Topic, cfg.KafkaBrokers)
	}

	svc := remotestore.New(repo, opts...)

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	middleware.InitMetrics(reg)

	// 5. Nightly trial expiry
	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(1).Day().At("00:05").Do(func() {
		n, err := svc.ExpireTrials(context.Background())
		if err != nil {
			logger.LogError("expire trials: %v", err)
			return
		}
		logger.LogInfo("expired %d trial subscriptions", n)
	}); err != nil {
		logger.LogFatal("schedule trial expiry: %v", err)
	}
	s.StartAsync()

	// 6. HTTP
	h := handlers.New(svc, auth.NewTokens(cfg.JWTSecret, 24*time.Hour), handlers.Options{
		UploadDir:         cfg.UploadDir,
		BaseURL:           cfg.BaseURL,
		AllowRegistration: cfg.AllowRegistration,
		CORSOrigins:       cfg.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.NewRouter(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.LogInfo("server starting on %s (%s backend)", cfg.HTTPAddr, cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogFatal("listen: %v", err)
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.LogInfo("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogError("http shutdown: %v", err)
	}
	s.Stop()
	if prod != nil {
		prod.Close()
		cancel()
		prod.WaitClosed()
	}
}
