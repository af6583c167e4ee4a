package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-bank-gate/model"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Cookie    CookieConfig    `mapstructure:"cookie"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	// Env is "production", "staging", "development" or "local". The refresh
	// cookie is only sent without the Secure flag in development and local.
	Env string `mapstructure:"env" validate:"required"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// DSN returns the postgres URL form used by golang-migrate.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// OpTimeout bounds every single round trip to the coordination store.
	OpTimeout time.Duration `mapstructure:"op_timeout" validate:"gt=0"`
}

type JWTConfig struct {
	SecretKey  string        `mapstructure:"secret_key" validate:"required,min=32"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" validate:"gtfield=AccessTTL"`
}

type CookieConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	Path string `mapstructure:"path" validate:"required"`
}

type RateLimitConfig struct {
	General   PolicyConfig `mapstructure:"general"`
	Auth      PolicyConfig `mapstructure:"auth"`
	AuthPaths []string     `mapstructure:"auth_paths" validate:"min=1,dive,startswith=/"`
}

type PolicyConfig struct {
	MaxRequests int           `mapstructure:"max_requests" validate:"gt=0"`
	Window      time.Duration `mapstructure:"window" validate:"gte=1s"`
	KeyPrefix   string        `mapstructure:"key_prefix" validate:"required"`
}

// Policy converts the configured values into a governor policy.
func (p PolicyConfig) Policy(name string) model.RateLimitPolicy {
	return model.RateLimitPolicy{
		Name:        name,
		MaxRequests: p.MaxRequests,
		Window:      p.Window,
		KeyPrefix:   p.KeyPrefix,
	}
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	switch strings.ToLower(c.Server.Env) {
	case "development", "local":
		return false
	}
	return true
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "production")
	v.SetDefault("log.level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bank")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "bank")
	v.SetDefault("database.migrations_path", "file://db/migrations")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.op_timeout", "500ms")

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.access_ttl", "15m")
	v.SetDefault("jwt.refresh_ttl", "168h")

	v.SetDefault("cookie.name", "refreshToken")
	v.SetDefault("cookie.path", "/api/auth")

	v.SetDefault("rate_limit.general.max_requests", 100)
	v.SetDefault("rate_limit.general.window", "60s")
	v.SetDefault("rate_limit.general.key_prefix", "rate_limit:general")
	v.SetDefault("rate_limit.auth.max_requests", 5)
	v.SetDefault("rate_limit.auth.window", "60s")
	v.SetDefault("rate_limit.auth.key_prefix", "rate_limit:auth")
	v.SetDefault("rate_limit.auth_paths", []string{"/api/auth/login", "/api/auth/refresh", "/api/auth/logout"})
}

// LoadConfig reads config.yml from path (if present), applies environment
// overrides such as JWT_SECRET_KEY or REDIS_HOST and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
