// Package database opens the Postgres pool behind the document store.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds pool settings. Zero values fall back to defaults.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	return c
}

// Pool is a sized sqlx pool that doubles as a readiness check.
type Pool struct {
	db          *sqlx.DB
	pingTimeout time.Duration
	logger      *slog.Logger
}

// Open connects to cfg.DSN and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Pool, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	p := Wrap(db, cfg, logger)
	if err := p.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	p.logger.Info("database connected",
		slog.Int("max_open_conns", db.Stats().MaxOpenConnections),
	)
	return p, nil
}

// Wrap applies the pool limits of cfg to an already opened handle.
func Wrap(db *sqlx.DB, cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return &Pool{db: db, pingTimeout: cfg.PingTimeout, logger: logger}
}

func (p *Pool) DB() *sqlx.DB { return p.db }

// Ping checks the connection within the configured timeout.
func (p *Pool) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.pingTimeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}
	stats := p.db.Stats()
	p.logger.Info("closing database pool",
		slog.Int("open_connections", stats.OpenConnections),
		slog.Int64("wait_count", stats.WaitCount),
	)
	return p.db.Close()
}
