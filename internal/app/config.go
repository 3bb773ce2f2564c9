package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	LockDriverLocal    = "local"
	LockDriverRedis    = "redis"
	LockDriverPostgres = "postgres"

	envPrefix = "LEDGER"
)

// Config настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	LockDriver    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	OutboxMaxAttempts    int
	// OutboxMaxFailedPolls сколько циклов событие держит свой агрегат до пометки failed.
	OutboxMaxFailedPolls int
	OutboxRetryDelay     time.Duration
	OutboxRetention      time.Duration

	// WorkerLocations привязка сотрудников к точкам для memory-хранилища
	// и начальная загрузка для postgres: "u1=loc-spb:Санкт-Петербург;u2=...".
	WorkerLocations map[string]domain.Location

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает базовые адреса и параметры фоновых воркеров.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:             ":50051",
		MetricsAddr:          ":9090",
		StorageDriver:        StorageDriverMemory,
		PostgresAutoMigrate:  true,
		LockDriver:           LockDriverLocal,
		RedisAddr:            "localhost:6379",
		LockTTL:              10 * time.Second,
		KafkaTopic:           "ledger.events",
		OutboxPollInterval:   time.Second,
		OutboxBatchSize:      100,
		OutboxMaxAttempts:    3,
		OutboxMaxFailedPolls: 5,
		OutboxRetryDelay:     100 * time.Millisecond,
		OutboxRetention:      72 * time.Hour,
		WorkerLocations:      map[string]domain.Location{},
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// LoadConfig читает .env (если есть) и переменные окружения LEDGER_*.
// Переменные окружения имеют приоритет над .env.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	// Отсутствующий .env не ошибка.
	_ = godotenv.Load(envFiles...)

	defaults := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("grpc_addr", defaults.GRPCAddr)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)
	v.SetDefault("storage_driver", defaults.StorageDriver)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("postgres_auto_migrate", defaults.PostgresAutoMigrate)
	v.SetDefault("lock_driver", defaults.LockDriver)
	v.SetDefault("redis_addr", defaults.RedisAddr)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("lock_ttl", defaults.LockTTL)
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", defaults.KafkaTopic)
	v.SetDefault("outbox_poll_interval", defaults.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", defaults.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", defaults.OutboxMaxAttempts)
	v.SetDefault("outbox_max_failed_polls", defaults.OutboxMaxFailedPolls)
	v.SetDefault("outbox_retry_delay", defaults.OutboxRetryDelay)
	v.SetDefault("outbox_retention", defaults.OutboxRetention)
	v.SetDefault("worker_locations", "")
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)

	locations, err := ParseWorkerLocations(v.GetString("worker_locations"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		GRPCAddr:             v.GetString("grpc_addr"),
		MetricsAddr:          v.GetString("metrics_addr"),
		StorageDriver:        strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		PostgresDSN:          strings.TrimSpace(v.GetString("postgres_dsn")),
		PostgresAutoMigrate:  v.GetBool("postgres_auto_migrate"),
		LockDriver:           strings.ToLower(strings.TrimSpace(v.GetString("lock_driver"))),
		RedisAddr:            v.GetString("redis_addr"),
		RedisPassword:        v.GetString("redis_password"),
		RedisDB:              v.GetInt("redis_db"),
		LockTTL:              v.GetDuration("lock_ttl"),
		KafkaBrokers:         splitList(v.GetString("kafka_brokers")),
		KafkaTopic:           v.GetString("kafka_topic"),
		OutboxPollInterval:   v.GetDuration("outbox_poll_interval"),
		OutboxBatchSize:      v.GetInt("outbox_batch_size"),
		OutboxMaxAttempts:    v.GetInt("outbox_max_attempts"),
		OutboxMaxFailedPolls: v.GetInt("outbox_max_failed_polls"),
		OutboxRetryDelay:     v.GetDuration("outbox_retry_delay"),
		OutboxRetention:      v.GetDuration("outbox_retention"),
		WorkerLocations:      locations,
		LogLevel:             v.GetString("log_level"),
		LogFormat:            strings.ToLower(v.GetString("log_format")),
	}
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность драйверов.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres storage requires LEDGER_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.LockDriver {
	case LockDriverLocal:
	case LockDriverRedis:
		if c.RedisAddr == "" {
			return errors.New("redis lock requires LEDGER_REDIS_ADDR")
		}
	case LockDriverPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			return errors.New("postgres lock requires postgres storage")
		}
	default:
		return fmt.Errorf("unsupported lock driver %q", c.LockDriver)
	}
	return nil
}

// ParseWorkerLocations разбирает список "user=locationID:Город" через ';' или ','.
func ParseWorkerLocations(raw string) (map[string]domain.Location, error) {
	result := make(map[string]domain.Location)
	for _, entry := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' }) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, location, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("worker location %q: want user=id:name", entry)
		}
		id, name, ok := strings.Cut(location, ":")
		user, id, name = strings.TrimSpace(user), strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || user == "" || id == "" || name == "" {
			return nil, fmt.Errorf("worker location %q: want user=id:name", entry)
		}
		result[user] = domain.Location{ID: id, Name: name}
	}
	return result, nil
}

func splitList(raw string) []string {
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
