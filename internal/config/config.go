package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/chatguessr.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// RedisURL enables the streak code cache when set.
	RedisURL         string        `env:"REDIS_URL"`
	ResolverCacheTTL time.Duration `env:"RESOLVER_CACHE_TTL" envDefault:"720h"`

	SettingsPath string `env:"SETTINGS_PATH" envDefault:"settings.yaml"`
	RegionsPath  string `env:"REGIONS_PATH"`

	GeoGuessrURL   string        `env:"GEOGUESSR_URL" envDefault:"https://www.geoguessr.com"`
	GeoGuessrNCFA  string        `env:"GEOGUESSR_NCFA"`
	SeedRetries    uint64        `env:"SEED_RETRIES" envDefault:"5"`
	SeedRetryDelay time.Duration `env:"SEED_RETRY_DELAY" envDefault:"500ms"`

	FinalizeConcurrency int `env:"FINALIZE_CONCURRENCY" envDefault:"10"`

	BackupDir         string `env:"BACKUP_DIR" envDefault:"data/backups"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.FinalizeConcurrency < 1 {
		return nil, fmt.Errorf("FINALIZE_CONCURRENCY must be at least 1")
	}
	return &cfg, nil
}
