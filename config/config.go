package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service bootstrap configuration. Values come from an
// optional yaml file with environment overrides on top.
type Config struct {
	HTTPPort          int
	DatabaseURL       string
	DBMaxConns        int32
	RedisURL          string
	KafkaBrokers      []string
	JWTSecret         string
	ReviewCacheTTL    time.Duration
	OutboxPollEvery   time.Duration
	OutboxBatchSize   int
	OutboxWorkerCount int
}

type configFile struct {
	Service struct {
		HTTPPort int `yaml:"http_port"`
	} `yaml:"service"`
	Database struct {
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
}

// Load reads the yaml file at path (if present) and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPPort:          8080,
		ReviewCacheTTL:    30 * time.Second,
		OutboxPollEvery:   2 * time.Second,
		OutboxBatchSize:   100,
		OutboxWorkerCount: 2,
	}

	if raw, err := os.ReadFile(path); err == nil {
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		cfg.DatabaseURL = f.Database.URL
		cfg.DBMaxConns = f.Database.MaxConns
		cfg.RedisURL = f.Redis.URL
		cfg.KafkaBrokers = f.Kafka.Brokers
	}

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}
	cfg.ReviewCacheTTL = time.Duration(envInt("REVIEW_CACHE_TTL_SECONDS", int(cfg.ReviewCacheTTL.Seconds()))) * time.Second
	cfg.OutboxPollEvery = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollEvery.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxWorkerCount = envInt("OUTBOX_WORKERS", cfg.OutboxWorkerCount)

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func splitCSV(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if s := raw[start:i]; s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	return out
}
