package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/karma-passport/internal/ratelimit"
	"github.com/ZanzyTHEbar/karma-passport/internal/resilience"
	"github.com/ZanzyTHEbar/karma-passport/internal/security"
)

// Version is reported by /health
const Version = "1.0.0"

// ConfigEnv names the optional YAML config file
const ConfigEnv = "KARMA_CONFIG"

// Config holds the server configuration
type Config struct {
	Server struct {
		Port            string        `yaml:"port" validate:"required,numeric"`
		GinMode         string        `yaml:"gin_mode" validate:"oneof=debug release test"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
		TrustedProxies  []string      `yaml:"trusted_proxies"`
		Compression     bool          `yaml:"compression"`
	} `yaml:"server"`

	Model struct {
		Path     string        `yaml:"path" validate:"required"`
		CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	} `yaml:"model"`

	Log struct {
		Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	} `yaml:"log"`

	RateLimit struct {
		PerMinute int `yaml:"per_minute" validate:"gte=0"`
		Redis     struct {
			Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db" validate:"gte=0"`
		} `yaml:"redis"`
	} `yaml:"rate_limit"`

	Security security.Config `yaml:"security"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8000"
	cfg.Server.GinMode = "release"
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.Compression = true
	cfg.Model.Path = "model/karma_model.json"
	cfg.Model.CacheTTL = 15 * time.Minute
	cfg.Log.Level = "info"
	cfg.RateLimit.PerMinute = ratelimit.DefaultConfig().IPLimitPerMin
	cfg.Security = security.DefaultConfig()
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file named
// by KARMA_CONFIG and environment overrides, then validates it.
func Load() (*Config, error) {
	return load(os.Getenv(ConfigEnv), os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("PORT", &c.Server.Port)
	str("GIN_MODE", &c.Server.GinMode)
	str("MODEL_PATH", &c.Model.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("REDIS_ADDR", &c.RateLimit.Redis.Addr)
	str("REDIS_PASSWORD", &c.RateLimit.Redis.Password)

	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.Security.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("TRUSTED_PROXIES"); ok && v != "" {
		c.Server.TrustedProxies = splitList(v)
	}

	for _, apply := range []func() error{
		func() error { return boolean("ENABLE_HSTS", &c.Security.EnableHSTS) },
		func() error { return boolean("ENABLE_COMPRESSION", &c.Server.Compression) },
		func() error { return integer("RATE_LIMIT_PER_MIN", &c.RateLimit.PerMinute) },
		func() error { return integer("REDIS_DB", &c.RateLimit.Redis.DB) },
		func() error { return duration("CACHE_TTL", &c.Model.CacheTTL) },
		func() error { return duration("REQUEST_TIMEOUT", &c.Security.RequestTimeout) },
		func() error { return duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout) },
	} {
		if err := apply(); err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration with struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RateLimiter returns the rate limiter settings derived from the config
func (c *Config) RateLimiter() ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	rl.IPLimitPerMin = c.RateLimit.PerMinute
	return rl
}

// Redis returns the Redis connection options
func (c *Config) Redis() ratelimit.RedisOptions {
	return ratelimit.RedisOptions{
		Addr:     c.RateLimit.Redis.Addr,
		Password: c.RateLimit.Redis.Password,
		DB:       c.RateLimit.Redis.DB,
		Retry:    resilience.DefaultRetryConfig(),
	}
}

var validate = validator.New()
