// Package pg owns the PostgreSQL connection handle. The handle is constructed
// once at process start, injected into the stores that need it, and closed at
// shutdown; nothing in the codebase reaches for a global connection.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the pooled connection with a defined lifecycle.
type DB struct {
	db *sql.DB
}

// Open connects to PostgreSQL with pool defaults tuned for short
// request/response work. Adjust under load tests.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Handle exposes the raw *sql.DB for stores and probes.
func (d *DB) Handle() *sql.DB { return d.db }

// Ping verifies connectivity; used by the readiness probe.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
