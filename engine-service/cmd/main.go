package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pricewatch/engine-service/internal/app/engine/config"
	"pricewatch/engine-service/internal/app/engine/handler"
	"pricewatch/engine-service/internal/app/engine/infrastructure"
	infrahttp "pricewatch/engine-service/internal/app/engine/infrastructure/http"
	"pricewatch/engine-service/internal/app/engine/infrastructure/messaging"
	"pricewatch/engine-service/internal/app/engine/processor"
	"pricewatch/engine-service/internal/app/engine/repository"
	"pricewatch/engine-service/internal/app/engine/service"
	"pricewatch/pkg/logger"
)

const serviceName = "engine-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(serviceName, cfg.Log.Level)

	if cfg.Log.LogstashAddr != "" {
		closer, err := logger.InitLogstash(cfg.Log.LogstashAddr, serviceName, cfg.Log.Level)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to Logstash, using stdout only")
		} else {
			defer closer.Close()
			logger.Info().Str("logstash_addr", cfg.Log.LogstashAddr).Msg("Connected to Logstash")
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// === REDIS ===
	// Кэш рекомендаций и время последнего пакетного прогона
	redisClient, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()
	logger.Info().Str("address", cfg.Redis.Address()).Msg("Connected to Redis")

	store := repository.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	cacheRepo := repository.NewCacheRepository(store, cfg.Cache.StaleRetention, time.Now)
	batchStateRepo := repository.NewBatchStateRepository(store)

	// === POSTGRESQL ===
	// Архив наблюдений нужен только для прогрева ledger при старте
	var (
		db      *gorm.DB
		archive repository.PricePointRepository
	)
	if cfg.Database.Enabled() {
		db, err = connectDB(cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		if err := repository.AutoMigrate(db); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate price point archive")
		}
		archive = repository.NewPricePointRepository(db)
		logger.Info().Str("database", cfg.Database.DBName).Msg("Connected to PostgreSQL")
	} else {
		logger.Warn().Msg("DB_HOST is empty, price point archive disabled")
	}

	// === ВНЕШНИЕ КАНАЛЫ ===
	aiClient := infrahttp.NewAIClient(cfg.AI.URL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout)
	barkClient := infrahttp.NewBarkClient(cfg.Bark.URL, cfg.Bark.DefaultKey, cfg.Bark.Timeout)

	var publisher infrastructure.AlertPublisher
	if cfg.Kafka.Enabled {
		producer := messaging.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
		defer producer.Close()
		publisher = producer
		logger.Info().Str("topic", cfg.Kafka.AlertTopic).Msg("Initialized Kafka alert producer")
	}

	dispatcher := infrastructure.NewNotificationDispatcher(barkClient, publisher)

	// === ДВИЖОК ===
	engine := service.NewEngine(cfg.EngineOptions(), service.Dependencies{
		AI:       aiClient,
		Cache:    cacheRepo,
		Archive:  archive,
		Notifier: dispatcher,
	})
	dispatcher.SetNamer(engine)

	if restored, err := engine.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore ledgers, starting empty")
	} else if restored > 0 {
		logger.Info().Int("points", restored).Msg("Ledgers warmed up from archive")
	}

	// === KAFKA CONSUMER ===
	var consumer *processor.KafkaConsumer
	if cfg.Kafka.Enabled {
		consumer = processor.NewKafkaConsumer(
			cfg.Kafka.Brokers,
			cfg.Kafka.PriceTopic,
			cfg.Kafka.GroupID,
			cfg.Kafka.MinBytes,
			cfg.Kafka.MaxBytes,
			engine,
		)
		consumer.Start(ctx)
		logger.Info().
			Str("topic", cfg.Kafka.PriceTopic).
			Str("group", cfg.Kafka.GroupID).
			Msg("Kafka price consumer started")
	}

	// === ПЛАНИРОВЩИК ===
	runAt, _ := cfg.Scheduler.RunAtTime()
	scheduler := processor.NewBatchScheduler(engine, batchStateRepo, runAt, cfg.Scheduler.Period, time.Now)
	if err := scheduler.Start(ctx, cfg.Scheduler.CheckSchedule); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start batch scheduler")
	}
	engine.SetScheduleReporter(scheduler)
	logger.Info().
		Str("run_at", runAt.String()).
		Dur("period", cfg.Scheduler.Period).
		Str("check_schedule", cfg.Scheduler.CheckSchedule).
		Msg("Batch scheduler started")

	// === HTTP ===
	engineHandler := handler.NewEngineHandler(engine)
	healthHandler := handler.NewHealthCheckHandler(db, redisClient, engine)
	router := handler.SetupRoutes(engineHandler, healthHandler, cfg.HTTP.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("address", cfg.HTTP.Address()).
			Msg("Starting Engine Service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// === GRACEFUL SHUTDOWN ===
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down Engine Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	if consumer != nil {
		consumer.Stop()
	}
	scheduler.Stop()
	stop()

	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Engine shutdown incomplete")
	}

	if db != nil {
		closeDB(db)
	}

	logger.Info().Msg("Engine Service stopped gracefully")
}

// connectDB устанавливает соединение с PostgreSQL используя GORM
func connectDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	// Retry logic для устойчивости при запуске в Docker
	var db *gorm.DB
	var err error

	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
		if err == nil {
			sqlDB, sqlErr := db.DB()
			if sqlErr != nil {
				err = sqlErr
			} else if pingErr := sqlDB.Ping(); pingErr != nil {
				err = pingErr
			} else {
				sqlDB.SetMaxOpenConns(10)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
				sqlDB.SetConnMaxIdleTime(1 * time.Minute)
				return db, nil
			}
		}
		logger.Warn().
			Int("attempt", i+1).
			Err(err).
			Msg("Failed to connect to database, retrying...")
		time.Sleep(3 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect after 10 attempts: %w", err)
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing database connection")
	}
}

// connectRedis устанавливает соединение с Redis
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	for i := 0; i < 10; i++ {
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		logger.Warn().Int("attempt", i+1).Msg("Failed to connect to Redis, retrying...")
		time.Sleep(3 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to Redis after 10 attempts")
}
