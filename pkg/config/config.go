package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the chat server, read from the
// environment (optionally seeded from a .env file).
type Config struct {
	Env      string
	Port     string
	LogLevel string

	TLS      TLSConfig
	CORS     CORSConfig
	Database DatabaseConfig
	Store    StoreConfig
	Auth     AuthConfig
	Agent    AgentConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	SendGrid SendGridConfig
	Limits   LimitsConfig
}

type TLSConfig struct {
	Enabled         bool
	CertPath        string
	KeyPath         string
	CertPEM         string
	KeyPEM          string
	AllowSelfSigned bool
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type DatabaseConfig struct {
	URL                string
	MaxConns           int32
	MinConns           int32
	MaxConnIdleTime    time.Duration
	ApplySchemaOnStart bool
	SchemaPath         string
}

// StoreConfig selects the backend for identities and messages.
// Driver is "postgres" or "pebble".
type StoreConfig struct {
	Driver     string
	PebblePath string
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	TokenCacheTTL time.Duration
}

// AgentConfig describes the single console account allowed to read the roster.
type AgentConfig struct {
	Email        string
	Name         string
	PasswordHash string
}

type RedisConfig struct {
	Addr     string
	PoolSize int
}

type RabbitMQConfig struct {
	URL   string
	Queue string
}

type SendGridConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

type LimitsConfig struct {
	SendRatePerSecond float64
	SendBurst         int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENABLE_TLS", false)
	v.SetDefault("TLS_SELF_SIGNED", true)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("CORS_ALLOW_CREDENTIALS", false)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", "5m")
	v.SetDefault("APPLY_SCHEMA_ON_START", true)
	v.SetDefault("SCHEMA_PATH", "pkg/db/schema.sql")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("PEBBLE_PATH", "data/chat")
	v.SetDefault("TOKEN_TTL", "720h")
	v.SetDefault("TOKEN_CACHE_TTL", "10m")
	v.SetDefault("AGENT_NAME", "Support")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("RABBITMQ_QUEUE", "chat.events")
	v.SetDefault("SEND_RATE_PER_SEC", 2.0)
	v.SetDefault("SEND_BURST", 5)
}

// Load reads .env (if present) and the process environment into a Config.
func Load() (*Config, error) {
	// a missing .env file is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	if env == "" {
		env = strings.ToLower(strings.TrimSpace(v.GetString("ENV")))
	}
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Env:      env,
		Port:     v.GetString("SERVER_PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),
		TLS: TLSConfig{
			Enabled:         v.GetBool("ENABLE_TLS"),
			CertPath:        v.GetString("TLS_CERT_PATH"),
			KeyPath:         v.GetString("TLS_KEY_PATH"),
			CertPEM:         v.GetString("TLS_CERT"),
			KeyPEM:          v.GetString("TLS_KEY"),
			AllowSelfSigned: v.GetBool("TLS_SELF_SIGNED"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			AllowCredentials: v.GetBool("CORS_ALLOW_CREDENTIALS"),
		},
		Database: DatabaseConfig{
			URL:                v.GetString("DATABASE_URL"),
			MaxConns:           v.GetInt32("DB_MAX_CONNS"),
			MinConns:           v.GetInt32("DB_MIN_CONNS"),
			MaxConnIdleTime:    v.GetDuration("DB_MAX_CONN_IDLE_TIME"),
			ApplySchemaOnStart: v.GetBool("APPLY_SCHEMA_ON_START"),
			SchemaPath:         v.GetString("SCHEMA_PATH"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
			PebblePath: v.GetString("PEBBLE_PATH"),
		},
		Auth: AuthConfig{
			JWTSecret:     v.GetString("JWT_SECRET"),
			TokenTTL:      v.GetDuration("TOKEN_TTL"),
			TokenCacheTTL: v.GetDuration("TOKEN_CACHE_TTL"),
		},
		Agent: AgentConfig{
			Email:        strings.ToLower(strings.TrimSpace(v.GetString("AGENT_EMAIL"))),
			Name:         v.GetString("AGENT_NAME"),
			PasswordHash: v.GetString("AGENT_PASSWORD_HASH"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   v.GetString("RABBITMQ_URL"),
			Queue: v.GetString("RABBITMQ_QUEUE"),
		},
		SendGrid: SendGridConfig{
			APIKey:      v.GetString("SENDGRID_API_KEY"),
			SenderEmail: v.GetString("SENDGRID_SENDER_EMAIL"),
			SenderName:  v.GetString("SENDGRID_SENDER_NAME"),
		},
		Limits: LimitsConfig{
			SendRatePerSecond: v.GetFloat64("SEND_RATE_PER_SEC"),
			SendBurst:         v.GetInt("SEND_BURST"),
		},
	}

	// TLS is enforced in production
	if cfg.Env == "production" {
		cfg.TLS.Enabled = true
	}
	if cfg.Port == "" {
		if cfg.TLS.Enabled {
			cfg.Port = "8443"
		} else {
			cfg.Port = "8080"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot safely run with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case "pebble":
		if c.Store.PebblePath == "" {
			return fmt.Errorf("PEBBLE_PATH is required for the pebble store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Env == "production" {
		if c.TLS.CertPath == "" || c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
		}
	}
	if c.Limits.SendRatePerSecond <= 0 || c.Limits.SendBurst <= 0 {
		return fmt.Errorf("SEND_RATE_PER_SEC and SEND_BURST must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
