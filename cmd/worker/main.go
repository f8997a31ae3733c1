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

	"mailer/internal/adapters/cache"
	"mailer/internal/adapters/database"
	httpAdapter "mailer/internal/adapters/http"
	"mailer/internal/adapters/queue"
	"mailer/internal/app"
	"mailer/internal/config"
	"mailer/internal/domain"
	"mailer/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// jobQueue is a job source that can also enqueue.
type jobQueue interface {
	domain.JobSource
	domain.JobPublisher
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogConsole).With().Str("app", cfg.AppName).Logger()
	logr.Info().Str("queue_driver", cfg.QueueDriver).Str("queue", cfg.QueueName).Msg("starting mailer worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logr.Fatal().Err(err).Msg("failed to connect database pool")
	}
	defer dbPool.Close()

	db, err := database.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		logr.Fatal().Err(err).Msg("failed to connect database")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logr.Fatal().Err(err).Msg("failed to connect redis")
	}

	source, err := newJobQueue(ctx, cfg, redisClient, logr)
	if err != nil {
		logr.Fatal().Err(err).Msg("failed to open job source")
	}
	defer source.Close()

	schedules := database.NewPostgresScheduleRepository(dbPool)
	records := database.NewPostgresRecordRepository(db)
	cacheStore := cache.NewRedisStore(redisClient)

	// syncs must outlive the signal so the final flush can still persist
	syncCtx, cancelSync := context.WithCancel(context.Background())
	defer cancelSync()

	counters := app.NewCounterStore()
	throttles := app.NewThrottleRegistry(syncCtx, cfg.SyncLeading, logger.Component(logr, "throttle"))
	consumer := app.NewJobConsumer(
		counters,
		throttles,
		app.NewCacheSynchronizer(cacheStore),
		app.NewScheduleAggregator(schedules),
		records,
		cacheStore,
		app.NewLogSender(logger.Component(logr, "sender")),
		cfg.SyncInterval,
		logger.Component(logr, "consumer"),
	)

	worker := app.NewWorkerService(ctx, source, consumer.Handle, app.WorkerOptions{
		Workers:        cfg.WorkerCount,
		DequeueTimeout: cfg.DequeueTimeout,
		RatePerSec:     cfg.WorkerRatePerSec,
	}, logger.Component(logr, "worker"))

	resync := app.NewSyncRunner(throttles, counters, cfg.ResyncSpec, logger.Component(logr, "resync"))
	go func() {
		if err := resync.Start(ctx); err != nil {
			logr.Error().Err(err).Msg("resync runner exited")
		}
	}()

	jobService := app.NewJobService(schedules, records, counters, throttles)
	httpSrv := startHTTPServer(cfg, httpAdapter.NewJobHandler(jobService, source), logr)

	if err := worker.Run(); err != nil && err != context.Canceled {
		logr.Error().Err(err).Msg("worker exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := worker.Stop(shutdownCtx); err != nil {
		logr.Warn().Err(err).Msg("worker did not stop in time")
	}
	throttles.Flush(shutdownCtx)
	logr.Info().Int("jobs", counters.Len()).Msg("pending syncs flushed")

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logr.Error().Err(err).Msg("failed to shutdown http server")
	}
	logr.Info().Msg("mailer worker stopped")
}

func newJobQueue(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logr zerolog.Logger) (jobQueue, error) {
	switch cfg.QueueDriver {
	case config.QueueDriverRedis:
		source := queue.NewRedisJobSource(redisClient, cfg.QueueName)
		moved, err := source.Recover(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover in-flight deliveries: %w", err)
		}
		if moved > 0 {
			logr.Warn().Int("deliveries", moved).Msg("requeued deliveries left in flight")
		}
		return source, nil
	case config.QueueDriverAMQP:
		return queue.NewAMQPJobSource(cfg.AMQPURL, cfg.QueueName, cfg.WorkerCount*2)
	case config.QueueDriverNSQ:
		return queue.NewNSQJobSource(cfg.NSQDAddr, cfg.QueueName, cfg.NSQChannel, cfg.WorkerCount, logger.Component(logr, "nsq"))
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.QueueDriver)
	}
}

func startHTTPServer(cfg *config.Config, jobHandler *httpAdapter.JobHandler, logr zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.AppName,
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/jobs/:id/progress", jobHandler.GetProgress)
		v1.GET("/jobs/:id/records", jobHandler.ListRecords)
		v1.GET("/stats", jobHandler.Stats)
		v1.POST("/messages", jobHandler.EnqueueMessage)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}
	go func() {
		logr.Info().Str("port", cfg.HTTPPort).Msg("starting ops http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error().Err(err).Msg("http server error")
		}
	}()
	return srv
}
