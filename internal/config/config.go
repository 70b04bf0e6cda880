// Package config loads the service configuration from an optional YAML file,
// applies environment overrides, and validates the result. Defaults run a
// single instance against local Redis with metrics disabled.
package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/hyp3rd/ewrap"
	"gopkg.in/yaml.v3"

	"github.com/hyp3rd/roomcast/pkg/metrics"
)

// Defaults.
const (
	DefaultHTTPAddr  = ":3000"
	DefaultRedisAddr = "localhost:6379"

	DefaultBreakerThreshold      = 5
	DefaultBreakerTimeoutSeconds = 60

	DefaultRedisBreakerThreshold      = 3
	DefaultRedisBreakerTimeoutSeconds = 30

	DefaultPingIntervalSeconds   = 10
	DefaultHealthIntervalSeconds = 30
)

// RedisConfig holds the connection settings for the backing store and bus.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// BreakerConfig holds one circuit breaker's tuning.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failureThreshold" validate:"gte=1"`
	TimeoutSeconds   int `yaml:"timeoutSeconds" validate:"gte=1"`
}

// MetricsConfig holds the sharded time-series sink settings.
type MetricsConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Bucket  string                `yaml:"bucket" validate:"required_if=Enabled true"`
	Shards  []metrics.ShardConfig `yaml:"shards" validate:"required_if=Enabled true,dive"`
}

// Config is the full service configuration.
type Config struct {
	HTTPAddr   string `yaml:"httpAddr" validate:"required"`
	InstanceID string `yaml:"instanceId"`

	Redis RedisConfig `yaml:"redis"`

	Breaker      BreakerConfig `yaml:"breaker"`
	RedisBreaker BreakerConfig `yaml:"redisBreaker"`

	Metrics MetricsConfig `yaml:"metrics"`

	PingIntervalSeconds   int `yaml:"pingIntervalSeconds" validate:"gte=1"`
	HealthIntervalSeconds int `yaml:"healthIntervalSeconds" validate:"gte=1"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		HTTPAddr: DefaultHTTPAddr,
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Breaker: BreakerConfig{
			FailureThreshold: DefaultBreakerThreshold,
			TimeoutSeconds:   DefaultBreakerTimeoutSeconds,
		},
		RedisBreaker: BreakerConfig{
			FailureThreshold: DefaultRedisBreakerThreshold,
			TimeoutSeconds:   DefaultRedisBreakerTimeoutSeconds,
		},
		PingIntervalSeconds:   DefaultPingIntervalSeconds,
		HealthIntervalSeconds: DefaultHealthIntervalSeconds,
	}
}

// Load builds the configuration: defaults, then the YAML file when path is
// non-empty, then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return nil, ewrap.Wrap(err, "read config file")
		}

		err = yaml.Unmarshal(raw, cfg)
		if err != nil {
			return nil, ewrap.Wrap(err, "parse config file")
		}
	}

	cfg.applyEnv()

	err := validator.New().Struct(cfg)
	if err != nil {
		return nil, ewrap.Wrap(err, "validate config")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ROOMCAST_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}

	if v := os.Getenv("ROOMCAST_INSTANCE_ID"); v != "" {
		c.InstanceID = v
	}

	if v := os.Getenv("ROOMCAST_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	if v := os.Getenv("ROOMCAST_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	if v := os.Getenv("ROOMCAST_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err == nil {
			c.Redis.DB = db
		}
	}

	if v := os.Getenv("ROOMCAST_METRICS_BUCKET"); v != "" {
		c.Metrics.Bucket = v
	}
}
