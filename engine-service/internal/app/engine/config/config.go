package config

import (
	"fmt"
	"time"

	"pricewatch/engine-service/internal/app/engine/processor"
	"pricewatch/engine-service/internal/app/engine/service"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит все настройки Engine Service
type Config struct {
	HTTP            HTTPConfig
	Log             LogConfig
	Redis           RedisConfig
	Database        DatabaseConfig
	Kafka           KafkaConfig
	AI              AIConfig
	Bark            BarkConfig
	Scheduler       SchedulerConfig
	Cache           CacheConfig
	Rules           RulesConfig
	Ledger          LedgerConfig
	Recommendations RecommendationsConfig
}

type HTTPConfig struct {
	Port            string        `envconfig:"HTTP_PORT" default:"8085"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"0s"` // 0 - без лимита, нужен потоку событий
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"HTTP_ALLOWED_ORIGINS"`
}

type LogConfig struct {
	Level        string `envconfig:"LOG_LEVEL" default:"info"`
	LogstashAddr string `envconfig:"LOGSTASH_ADDR"`
}

// RedisConfig - Redis хранит кэш рекомендаций и состояние планировщика
type RedisConfig struct {
	Host      string `envconfig:"REDIS_HOST" default:"localhost"`
	Port      string `envconfig:"REDIS_PORT" default:"6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"pricewatch:"`
}

// DatabaseConfig - архив наблюдений цен в PostgreSQL. Пустой Host отключает архив
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName   string `envconfig:"DB_NAME" default:"pricewatch"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

type KafkaConfig struct {
	Brokers    []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	PriceTopic string   `envconfig:"KAFKA_PRICE_TOPIC" default:"price_events"`
	AlertTopic string   `envconfig:"KAFKA_ALERT_TOPIC" default:"price_alerts"`
	GroupID    string   `envconfig:"KAFKA_GROUP_ID" default:"engine-service-group"`
	MinBytes   int      `envconfig:"KAFKA_MIN_BYTES" default:"1"`
	MaxBytes   int      `envconfig:"KAFKA_MAX_BYTES" default:"10000000"`
	Enabled    bool     `envconfig:"KAFKA_ENABLED" default:"true"`
}

type AIConfig struct {
	URL     string        `envconfig:"AI_URL" default:"http://localhost:8090/v1/generate"`
	APIKey  string        `envconfig:"AI_API_KEY"`
	Model   string        `envconfig:"AI_MODEL"`
	Timeout time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
}

type BarkConfig struct {
	URL        string        `envconfig:"BARK_URL" default:"https://api.day.app"`
	DefaultKey string        `envconfig:"BARK_DEFAULT_KEY"`
	Timeout    time.Duration `envconfig:"BARK_TIMEOUT" default:"10s"`
}

// SchedulerConfig - пакетный прогон рекомендаций
type SchedulerConfig struct {
	RunAt         string        `envconfig:"SCHEDULER_RUN_AT" default:"03:00"`
	Period        time.Duration `envconfig:"SCHEDULER_PERIOD" default:"24h"`
	CheckSchedule string        `envconfig:"SCHEDULER_CHECK_SCHEDULE" default:"@every 1m"`
	Concurrency   int           `envconfig:"SCHEDULER_CONCURRENCY" default:"4"`
}

type CacheConfig struct {
	TTL               time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	StaleRetention    time.Duration `envconfig:"CACHE_STALE_RETENTION" default:"72h"`
	GenerationTimeout time.Duration `envconfig:"CACHE_GENERATION_TIMEOUT" default:"2m"`
}

type RulesConfig struct {
	DropThresholdPercent float64       `envconfig:"RULE_DROP_THRESHOLD_PERCENT" default:"15"`
	DealTTL              time.Duration `envconfig:"RULE_DEAL_TTL" default:"48h"`
	AlertRetention       time.Duration `envconfig:"RULE_ALERT_RETENTION" default:"168h"`
}

type LedgerConfig struct {
	DropWindow    time.Duration `envconfig:"LEDGER_DROP_WINDOW" default:"0s"` // 0 - вся история
	MaxPoints     int           `envconfig:"LEDGER_MAX_POINTS" default:"0"`
	HistoryLimit  int           `envconfig:"LEDGER_HISTORY_LIMIT" default:"30"`
	RestoreWindow time.Duration `envconfig:"LEDGER_RESTORE_WINDOW" default:"2160h"`
	RestoreLimit  int           `envconfig:"LEDGER_RESTORE_LIMIT" default:"0"`
}

type RecommendationsConfig struct {
	ConfidenceFloor float64       `envconfig:"RECOMMENDATIONS_CONFIDENCE_FLOOR" default:"0.5"`
	DefaultLimit    int           `envconfig:"RECOMMENDATIONS_DEFAULT_LIMIT" default:"20"`
	BuyWindow       time.Duration `envconfig:"RECOMMENDATIONS_BUY_WINDOW" default:"168h"`
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые envconfig не может проверить сам
func (c *Config) Validate() error {
	if _, err := c.Scheduler.RunAtTime(); err != nil {
		return fmt.Errorf("invalid SCHEDULER_RUN_AT: %w", err)
	}
	if c.Scheduler.Period <= 0 {
		return fmt.Errorf("SCHEDULER_PERIOD must be positive")
	}
	if c.Rules.DropThresholdPercent <= 0 || c.Rules.DropThresholdPercent >= 100 {
		return fmt.Errorf("RULE_DROP_THRESHOLD_PERCENT must be in (0, 100)")
	}
	if c.Recommendations.ConfidenceFloor < 0 || c.Recommendations.ConfidenceFloor > 1 {
		return fmt.Errorf("RECOMMENDATIONS_CONFIDENCE_FLOOR must be in [0, 1]")
	}
	return nil
}

// DSN возвращает строку подключения к PostgreSQL в формате libpq
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Enabled - включен ли архив наблюдений
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// Address возвращает адрес Redis в формате host:port
func (c *RedisConfig) Address() string {
	return c.Host + ":" + c.Port
}

func (c *HTTPConfig) Address() string {
	return ":" + c.Port
}

func (c *SchedulerConfig) RunAtTime() (processor.ClockTime, error) {
	return processor.ParseClockTime(c.RunAt)
}

// EngineOptions переводит настройки в параметры движка
func (c *Config) EngineOptions() service.Options {
	return service.Options{
		Rules: service.RuleConfig{
			DropThresholdPercent: c.Rules.DropThresholdPercent,
			DealTTL:              c.Rules.DealTTL,
		},
		LedgerDropWindow:  c.Ledger.DropWindow,
		LedgerMaxPoints:   c.Ledger.MaxPoints,
		HistoryLimit:      c.Ledger.HistoryLimit,
		CacheTTL:          c.Cache.TTL,
		GenerationTimeout: c.Cache.GenerationTimeout,
		BuyWindow:         c.Recommendations.BuyWindow,
		ConfidenceFloor:   c.Recommendations.ConfidenceFloor,
		DefaultLimit:      c.Recommendations.DefaultLimit,
		BatchConcurrency:  c.Scheduler.Concurrency,
		AlertRetention:    c.Rules.AlertRetention,
		RestoreWindow:     c.Ledger.RestoreWindow,
		RestoreLimit:      c.Ledger.RestoreLimit,
	}
}
