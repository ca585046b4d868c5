// Package database opens the PostgreSQL pool that backs the account store.
package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes how to reach PostgreSQL. When URL is set it wins over the
// discrete fields.
type Config struct {
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	ApplicationName  string
	StatementTimeout time.Duration

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// ConfigFromEnv reads DATABASE_URL or the DB_* variables.
// Unparseable numbers and durations fall back to their defaults.
func ConfigFromEnv() Config {
	return Config{
		URL:              os.Getenv("DATABASE_URL"),
		Host:             envString("DB_HOST", "localhost"),
		Port:             envInt("DB_PORT", 5432),
		User:             envString("DB_USER", "gallery"),
		Password:         envString("DB_PASSWORD", "localdev"),
		Database:         envString("DB_NAME", "gallery"),
		SSLMode:          envString("DB_SSL_MODE", "disable"),
		ApplicationName:  envString("DB_APPLICATION_NAME", "gallery-account"),
		StatementTimeout: envDuration("DB_STATEMENT_TIMEOUT", 5*time.Second),
		MaxConns:         int32(envInt("DB_MAX_CONNS", 10)), //nolint:gosec // small operator-provided value
		MinConns:         int32(envInt("DB_MIN_CONNS", 2)),  //nolint:gosec // small operator-provided value
		MaxConnLifetime:  envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

// ConnectionString returns the PostgreSQL URL, escaping credentials.
func (c Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Connect opens a pool and pings it once.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolConfig.MaxConns {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.StatementTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func envString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
