// Package config loads the service configuration from defaults, an optional
// config.yaml and RANDO_* environment variables, and validates the result.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration marks every load or validation failure.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Mode        string            `mapstructure:"mode" validate:"oneof=dev release test"`
	LocalesPath string            `mapstructure:"locales_path"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN            string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns   int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret" validate:"required,min=16"`
	Issuer string        `mapstructure:"issuer" validate:"required"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	FileName   string `mapstructure:"file_name"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MatchmakingConfig holds the queue timing knobs.
type MatchmakingConfig struct {
	QueueTTL          time.Duration `mapstructure:"queue_ttl" validate:"gt=0"`
	SearchTimeout     time.Duration `mapstructure:"search_timeout" validate:"gt=0"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	ClaimAttempts     int           `mapstructure:"claim_attempts" validate:"gte=1,lte=20"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" validate:"gt=0"`
	Burst int     `mapstructure:"burst" validate:"gte=1"`
}

type TelegramConfig struct {
	Token           string `mapstructure:"token"`
	ModeratorChatID int64  `mapstructure:"moderator_chat_id"`
}

// Enabled reports whether moderation alerts can be sent.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ModeratorChatID != 0
}

const (
	DefaultQueueTTL          = 5 * time.Minute
	DefaultSearchTimeout     = 30 * time.Second
	DefaultReconcileInterval = 5 * time.Second
	DefaultSweepInterval     = time.Minute
	DefaultClaimAttempts     = 5
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "dev")
	v.SetDefault("locales_path", "locales")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	// search long-polls for up to the search timeout
	v.SetDefault("http.write_timeout", 45*time.Second)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=user password=password dbname=randodb port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.migrate_on_start", false)
	// empty means the migrations embedded in the binary
	v.SetDefault("database.migrations_path", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6380")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "dev-secret-change-me-please")
	v.SetDefault("jwt.issuer", "rando-service")
	v.SetDefault("jwt.ttl", 72*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_name", "logs/rando.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("matchmaking.queue_ttl", DefaultQueueTTL)
	v.SetDefault("matchmaking.search_timeout", DefaultSearchTimeout)
	v.SetDefault("matchmaking.reconcile_interval", DefaultReconcileInterval)
	v.SetDefault("matchmaking.sweep_interval", DefaultSweepInterval)
	v.SetDefault("matchmaking.claim_attempts", DefaultClaimAttempts)

	v.SetDefault("rate_limit.rps", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.moderator_chat_id", 0)
}

// Load reads configuration from defaults, ./config.yaml (optional) and
// RANDO_* environment variables, e.g. RANDO_DATABASE_DSN.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("RANDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate checks struct tags and the cross-field timing rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Matchmaking.ReconcileInterval >= c.Matchmaking.SearchTimeout {
		return fmt.Errorf("matchmaking.reconcile_interval (%s) must be shorter than search_timeout (%s)",
			c.Matchmaking.ReconcileInterval, c.Matchmaking.SearchTimeout)
	}
	if c.Matchmaking.SearchTimeout >= c.Matchmaking.QueueTTL {
		return fmt.Errorf("matchmaking.search_timeout (%s) must be shorter than queue_ttl (%s)",
			c.Matchmaking.SearchTimeout, c.Matchmaking.QueueTTL)
	}
	return nil
}
