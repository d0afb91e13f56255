package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rando/backend/internal/api/handler"
	"rando/backend/internal/api/middleware"
	"rando/backend/internal/chathub"
	"rando/backend/internal/config"
	"rando/backend/internal/friends"
	"rando/backend/internal/localization"
	"rando/backend/internal/logger"
	"rando/backend/internal/migrations"
	"rando/backend/internal/moderation"
	"rando/backend/internal/scheduler"
	"rando/backend/internal/storage"
	"rando/backend/internal/telegram"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	// 1. База даних
	if cfg.Database.Driver == "postgres" && cfg.Database.MigrateOnStart {
		if err := migrations.Run(cfg.Database.DSN, cfg.Database.MigrationsPath); err != nil {
			return nil, nil, err
		}
	}
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver == "sqlite" {
		if err := storage.AutoMigrate(db); err != nil {
			return nil, nil, err
		}
	}

	// 2. Redis (необов'язковий)
	if !cfg.Redis.Enabled {
		return db, nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, err
	}
	return db, rdb, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
	zap.L().Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, rdb, err := setupDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if rdb != nil {
		defer rdb.Close()
	}
	zap.L().Info("dependencies ready",
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("redis", rdb != nil))

	store := storage.NewStorageService(db, rdb)

	loc, err := localization.NewLocalizer(cfg.LocalesPath)
	if err != nil {
		return err
	}

	var notifier chathub.Notifier
	var redisNotifier *chathub.RedisNotifier
	if rdb != nil {
		redisNotifier = chathub.NewRedisNotifier(rdb)
		notifier = redisNotifier
	} else {
		notifier = chathub.NewBroker()
	}

	mod := moderation.NewService(store, nil, nil)
	var bot *telegram.BotService
	if cfg.Telegram.Enabled() {
		alerts, err := telegram.NewAlertService(cfg.Telegram)
		if err != nil {
			// reports still work without the moderators' chat
			zap.L().Warn("telegram moderation disabled", zap.Error(err))
		} else {
			mod.Alerts = alerts
			bot = telegram.NewBotService(alerts, mod)
		}
	}

	sessions := chathub.NewSessionService(store, notifier, loc, nil)
	matcher := chathub.NewMatcherService(store, notifier, sessions, cfg.Matchmaking, nil)
	friendsSvc := friends.NewService(store, notifier, nil)
	sessions.Reports = mod
	sessions.Friends = friendsSvc
	hub := chathub.NewManagerService(notifier, matcher, sessions)

	sched, err := scheduler.New(nil)
	if err != nil {
		return err
	}
	if err := sched.ScheduleSweep(matcher, cfg.Matchmaking.SweepInterval); err != nil {
		return err
	}

	h := handler.NewHandler(hub, matcher, sessions, friendsSvc, middleware.NewTokenIssuer(cfg.JWT), loc)
	h.Ping = sqlDB.PingContext
	server := &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        handler.NewRouter(h, cfg),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	if redisNotifier != nil {
		g.Go(func() error { return redisNotifier.Listen(gctx) })
	}
	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}
	g.Go(func() error {
		zap.L().Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
