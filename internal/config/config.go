package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr string

	DBDriver string // sqlite|postgres
	DBDSN    string

	AuthSecret string // HMAC key for issued tokens
	TokenTTL   time.Duration

	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	LogLevel  string
	LogFormat string // text|json

	WebhookURL     string // empty disables result notices
	WebhookSecret  string
	WebhookTimeout time.Duration
	WebhookRetries int

	CertSweepSpec   string // empty disables the sweep
	NoticeRetrySpec string // redelivery of failed result notices
	SiteID          string
}

// FromEnv loads .env when present, then reads the process environment.
func FromEnv() Config {
	_ = godotenv.Load()
	return Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		DBDriver:        envOr("DB_DRIVER", "sqlite"),
		DBDSN:           envOr("DB_DSN", ""),
		AuthSecret:      envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		TokenTTL:        envDuration("TOKEN_TTL", 12*time.Hour),
		AdminUser:       envOr("ADMIN_USER", "admin"),
		AdminPassHash:   os.Getenv("ADMIN_PASS_HASH"),
		CORSOrigins:     csvOr("CORS_ORIGINS", "http://localhost:3000"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "text"),
		WebhookURL:      os.Getenv("RESULTS_WEBHOOK_URL"),
		WebhookSecret:   os.Getenv("RESULTS_WEBHOOK_SECRET"),
		WebhookTimeout:  envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookRetries:  envInt("WEBHOOK_RETRIES", 2),
		CertSweepSpec:   envOr("CERT_SWEEP_SPEC", "*/15 * * * *"),
		NoticeRetrySpec: envOr("NOTICE_RETRY_SPEC", "*/10 * * * *"),
		SiteID:          envOr("SITE_ID", "local"),
	}
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c Config) Logger() *logrus.Logger {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	var f logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if strings.EqualFold(c.LogFormat, "json") {
		f = &logrus.JSONFormatter{}
	}
	return &logrus.Logger{
		Out:       os.Stderr,
		Formatter: f,
		Hooks:     make(logrus.LevelHooks),
		Level:     lvl,
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
