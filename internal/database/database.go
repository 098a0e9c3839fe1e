// Package database owns the Postgres connection pool and scopes per-job
// sessions on it.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

// Querier is the subset of a pooled connection used by the gate and the
// persistence coordinator. *pgxpool.Conn and pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Provider hands out scoped database sessions.
type Provider interface {
	// WithSession acquires a connection, runs fn on it and always returns
	// the connection to the pool.
	WithSession(ctx context.Context, fn func(ctx context.Context, q Querier) error) error
	Ping(ctx context.Context) error
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the pgxpool-backed Provider. One per process.
type Pool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPool connects a pool using cfg.
func NewPool(ctx context.Context, cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Pool{pool: pool, logger: logger.Named("database")}, nil
}

// WithSession implements Provider.
func (p *Pool) WithSession(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return scraper.NewError(scraper.KindConnection, "acquire connection", err)
	}
	defer conn.Release()
	return fn(ctx, conn)
}

// Ping checks that the database answers.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (p *Pool) Close() {
	p.pool.Close()
}
