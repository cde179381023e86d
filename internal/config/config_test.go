package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DB_DRIVER", "WEBHOOK_TIMEOUT", "WEBHOOK_RETRIES", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	require.Equal(t, ":8080", c.HTTPAddr)
	require.Equal(t, "sqlite", c.DBDriver)
	require.Equal(t, 10*time.Second, c.WebhookTimeout)
	require.Equal(t, 2, c.WebhookRetries)
	require.Equal(t, []string{"http://localhost:3000"}, c.CORSOrigins)
	require.Equal(t, "*/10 * * * *", c.NoticeRetrySpec)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("WEBHOOK_RETRIES", "x")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CERT_SWEEP_SPEC", "@hourly")
	t.Setenv("NOTICE_RETRY_SPEC", "@every 1m")

	c := FromEnv()
	require.Equal(t, "postgres", c.DBDriver)
	require.Equal(t, 3*time.Second, c.WebhookTimeout)
	require.Equal(t, 2, c.WebhookRetries)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
	require.Equal(t, "@hourly", c.CertSweepSpec)
	require.Equal(t, "@every 1m", c.NoticeRetrySpec)
}

func TestLogger(t *testing.T) {
	l := Config{LogLevel: "debug", LogFormat: "json"}.Logger()
	require.Equal(t, logrus.DebugLevel, l.Level)
	require.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l = Config{LogLevel: "loud"}.Logger()
	require.Equal(t, logrus.InfoLevel, l.Level)
	require.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}
