package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	v := newTestViper(map[string]any{
		"JWT_SECRET":   "s3cret",
		"DATABASE_URL": "postgres://localhost/chat",
	})

	cfg, err := fromViper(v)

	require.NoError(t, err)
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, int32(10), cfg.Database.MaxConns)
	require.Equal(t, 5*time.Minute, cfg.Database.MaxConnIdleTime)
	require.Equal(t, "chat.events", cfg.RabbitMQ.Queue)
}

func TestFromViper_MissingSecret(t *testing.T) {
	v := newTestViper(map[string]any{"DATABASE_URL": "postgres://localhost/chat"})

	_, err := fromViper(v)

	require.EqualError(t, err, "JWT_SECRET is required")
}

func TestFromViper_PebbleDoesNotNeedDatabase(t *testing.T) {
	v := newTestViper(map[string]any{
		"JWT_SECRET":   "s3cret",
		"STORE_DRIVER": "Pebble",
		"PEBBLE_PATH":  "/tmp/chat",
	})

	cfg, err := fromViper(v)

	require.NoError(t, err)
	require.Equal(t, "pebble", cfg.Store.Driver)
}

func TestFromViper_UnknownDriver(t *testing.T) {
	v := newTestViper(map[string]any{"JWT_SECRET": "s3cret", "STORE_DRIVER": "mongo"})

	_, err := fromViper(v)

	require.Error(t, err)
}

func TestFromViper_ProductionForcesTLS(t *testing.T) {
	v := newTestViper(map[string]any{
		"JWT_SECRET":    "s3cret",
		"DATABASE_URL":  "postgres://localhost/chat",
		"APP_ENV":       "production",
		"TLS_CERT_PATH": "/etc/cert.pem",
		"TLS_KEY_PATH":  "/etc/key.pem",
	})

	cfg, err := fromViper(v)

	require.NoError(t, err)
	require.True(t, cfg.TLS.Enabled)
	require.Equal(t, "8443", cfg.Port)
}

func TestFromViper_ProductionRequiresCertificates(t *testing.T) {
	v := newTestViper(map[string]any{
		"JWT_SECRET":   "s3cret",
		"DATABASE_URL": "postgres://localhost/chat",
		"APP_ENV":      "production",
	})

	_, err := fromViper(v)

	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"https://a.io", "https://b.io"}, splitList(" https://a.io, ,https://b.io "))
	require.Equal(t, []string{"*"}, splitList(" , "))
}
