// Command server runs the classhub realtime coordination server: rooms,
// chats, collaborative documents and the due-event scheduler behind one
// HTTP/WebSocket listener.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"classhub/internal/collab"
	"classhub/internal/core"
	"classhub/internal/mailer"
	httpProtocol "classhub/internal/protocols/http"
	wsProtocol "classhub/internal/protocols/websocket"
	"classhub/internal/realtime"
	"classhub/internal/repository"
	"classhub/internal/scheduler"
	"classhub/pkg/config"
	"classhub/pkg/database"
	"classhub/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:   "classhub",
		Short: "Realtime classroom coordination server",
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "./configs/development.yaml", "path to config file")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServer(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})

	logger.Info("Starting classhub server...")

	pool, err := database.NewPGXPool(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		Timeout:         cfg.Database.Timeout,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	logger.Info("Connected to PostgreSQL database")

	// Optional Redis connection; the scheduler tick guard degrades
	// gracefully without it.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("Redis unavailable, scheduler tick guard disabled: %v", err)
			rdb = nil
		} else {
			logger.Info("Connected to Redis")
		}
		defer func() {
			if rdb != nil {
				rdb.Close()
			}
		}()
	}

	// Repositories
	userRepo := repository.NewUserRepository(pool)
	lessonRepo := repository.NewLessonRepository(pool)
	namespaceRepo := repository.NewNamespaceRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	collabDocRepo := repository.NewCollabDocRepository(pool)
	statsRepo := repository.NewStatsRepository(pool)

	// Core services
	authSvc := core.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Issuer)
	overviewSvc := core.NewOverviewService(statsRepo, eventRepo)
	mail := mailer.NewLogMailer()

	// Realtime registries
	rooms := realtime.NewRoomRegistry(cfg.Realtime.MaxChatMessages)
	docs := collab.NewRegistry(collabDocRepo, cfg.Collab.MaxInstances)

	// Transport
	dispatcher := wsProtocol.NewDispatcher(rooms, docs, namespaceRepo)
	wsHandler := wsProtocol.NewHandler(
		dispatcher,
		authSvc,
		rooms,
		cfg.Realtime.AllowedOrigins,
		cfg.Realtime.RateLimitPerSecond,
		cfg.Realtime.RateLimitBurst,
	)
	httpServer := httpProtocol.NewServer(wsHandler, docs)

	// Background workers: the due-event scheduler and the periodic
	// document save both ride one cron runner.
	sched := scheduler.New(eventRepo, lessonRepo, overviewSvc, mail, rdb, nil, cfg.Scheduler.Interval)

	runner := cron.New()
	if _, err := runner.AddFunc(everySpec(cfg.Scheduler.Interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.Interval)
		defer cancel()
		sched.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("schedule event worker: %w", err)
	}
	if _, err := runner.AddFunc(everySpec(cfg.Collab.SaveInterval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Collab.SaveInterval)
		defer cancel()
		docs.SavePending(ctx)
	}); err != nil {
		return fmt.Errorf("schedule document saves: %w", err)
	}
	runner.Start()
	logger.Info("Background workers started")

	// HTTP listener with graceful shutdown.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: httpServer.Router(),
	}
	go func() {
		logger.Infof("Starting HTTP/WebSocket server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infof("Received signal: %v", sig)

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}

	cronCtx := runner.Stop()
	<-cronCtx.Done()

	// Flush dirty document instances before the pool closes.
	docs.SavePending(shutdownCtx)
	logger.Infof("Flushed pending document saves (%d still dirty)", docs.PendingCount())

	logger.Info("Shutdown complete")
	return nil
}

// everySpec renders a duration as a cron "@every" spec.
func everySpec(d time.Duration) string {
	if d <= 0 {
		d = time.Minute
	}
	return "@every " + d.String()
}
