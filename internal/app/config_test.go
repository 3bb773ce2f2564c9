package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if cfg.LockDriver != LockDriverLocal {
		t.Errorf("expected LockDriver %s, got %s", LockDriverLocal, cfg.LockDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.OutboxPollInterval <= 0 || cfg.OutboxBatchSize <= 0 || cfg.OutboxMaxAttempts <= 0 {
		t.Errorf("outbox worker defaults must be positive: %+v", cfg)
	}
	if cfg.OutboxRetention != 72*time.Hour {
		t.Errorf("expected OutboxRetention 72h, got %s", cfg.OutboxRetention)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory local", mutate: func(*Config) {}},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "LEDGER_POSTGRES_DSN",
		},
		{
			name: "postgres with dsn and advisory locks",
			mutate: func(c *Config) {
				c.StorageDriver = StorageDriverPostgres
				c.PostgresDSN = "postgres://ledger@localhost/ledger"
				c.LockDriver = LockDriverPostgres
			},
		},
		{
			name:    "advisory locks need postgres",
			mutate:  func(c *Config) { c.LockDriver = LockDriverPostgres },
			wantErr: "postgres lock requires postgres storage",
		},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.LockDriver = LockDriverRedis
				c.RedisAddr = ""
			},
			wantErr: "LEDGER_REDIS_ADDR",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "unknown lock",
			mutate:  func(c *Config) { c.LockDriver = "etcd" },
			wantErr: "unsupported lock driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("LEDGER_GRPC_ADDR", ":6000")
	t.Setenv("LEDGER_STORAGE_DRIVER", "Postgres")
	t.Setenv("LEDGER_POSTGRES_DSN", "postgres://ledger@localhost/ledger")
	t.Setenv("LEDGER_POSTGRES_AUTO_MIGRATE", "false")
	t.Setenv("LEDGER_LOCK_DRIVER", "redis")
	t.Setenv("LEDGER_REDIS_ADDR", "redis:6379")
	t.Setenv("LEDGER_LOCK_TTL", "3s")
	t.Setenv("LEDGER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LEDGER_OUTBOX_BATCH_SIZE", "25")
	t.Setenv("LEDGER_OUTBOX_RETENTION", "24h")
	t.Setenv("LEDGER_WORKER_LOCATIONS", "u1=loc-spb:Санкт-Петербург")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.GRPCAddr != ":6000" {
		t.Errorf("GRPCAddr = %s", cfg.GRPCAddr)
	}
	if cfg.StorageDriver != StorageDriverPostgres {
		t.Errorf("StorageDriver = %s", cfg.StorageDriver)
	}
	if cfg.PostgresAutoMigrate {
		t.Error("PostgresAutoMigrate must be false")
	}
	if cfg.LockDriver != LockDriverRedis || cfg.RedisAddr != "redis:6379" || cfg.LockTTL != 3*time.Second {
		t.Errorf("unexpected lock settings: %s %s %s", cfg.LockDriver, cfg.RedisAddr, cfg.LockTTL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.OutboxBatchSize != 25 {
		t.Errorf("OutboxBatchSize = %d", cfg.OutboxBatchSize)
	}
	if cfg.OutboxRetention != 24*time.Hour {
		t.Errorf("OutboxRetention = %s", cfg.OutboxRetention)
	}
	if cfg.OutboxPollInterval != time.Second {
		t.Errorf("OutboxPollInterval default lost: %s", cfg.OutboxPollInterval)
	}
	if got := cfg.WorkerLocations["u1"]; got != (domain.Location{ID: "loc-spb", Name: "Санкт-Петербург"}) {
		t.Errorf("WorkerLocations[u1] = %+v", got)
	}
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LEDGER_METRICS_ADDR=:9999\nLEDGER_LOG_FORMAT=JSON\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv не перезаписывает уже заданные переменные.
	t.Setenv("LEDGER_METRICS_ADDR", "")
	_ = os.Unsetenv("LEDGER_METRICS_ADDR")
	t.Setenv("LEDGER_LOG_FORMAT", "text")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MetricsAddr != ":9999" {
		t.Errorf("MetricsAddr = %s, want value from .env", cfg.MetricsAddr)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %s, environment must win over .env", cfg.LogFormat)
	}
}

func TestLoadConfig_InvalidDriver(t *testing.T) {
	t.Setenv("LEDGER_STORAGE_DRIVER", "sqlite")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestParseWorkerLocations(t *testing.T) {
	got, err := ParseWorkerLocations(" u1=loc-spb:Санкт-Петербург; u2=loc-msk:Москва ,")
	if err != nil {
		t.Fatalf("ParseWorkerLocations failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got["u2"].Name != "Москва" || got["u2"].ID != "loc-msk" {
		t.Fatalf("unexpected u2 location: %+v", got["u2"])
	}

	empty, err := ParseWorkerLocations("")
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty input: %v %v", empty, err)
	}

	for _, raw := range []string{"u1", "u1=loc-spb", "=loc:Город", "u1=:Город"} {
		if _, err := ParseWorkerLocations(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}
