package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	DBUrl     string `env:"DB_URL"`
	JWTSecret string `env:"JWT_SECRET"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisChannel  string `env:"REDIS_CHANNEL" envDefault:"leaderboard:fanout"`

	PipelineShards    int           `env:"PIPELINE_SHARDS" envDefault:"0"`
	FanoutBuffer      int           `env:"FANOUT_BUFFER" envDefault:"1024"`
	SubscriberBuffer  int           `env:"SUBSCRIBER_BUFFER" envDefault:"64"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"2s"`

	// StaticGames lists the active games when DB_URL is empty.
	StaticGames []string `env:"STATIC_GAMES" envSeparator:","`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using environment variables.")
	}
	return Parse()
}

// Parse reads the configuration from the process environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.PipelineShards < 0 {
		return fmt.Errorf("PIPELINE_SHARDS must not be negative")
	}
	if c.FanoutBuffer <= 0 || c.SubscriberBuffer <= 0 {
		return fmt.Errorf("FANOUT_BUFFER and SUBSCRIBER_BUFFER must be positive")
	}
	if c.ReconcileInterval <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL and READ_TIMEOUT must be positive")
	}
	return nil
}

// NewLogger builds a production JSON logger at LOG_LEVEL.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
