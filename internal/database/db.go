package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"upkeep-bknd/internal/config"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// sessionParams are SET on every new pooled connection. A DSN carrying its
// own session parameters replaces the whole set.
var sessionParams = map[string]interface{}{
	"statement_timeout":                   "30s",
	"idle_in_transaction_session_timeout": "60s",
}

func newConnector(dsn string) *pgdriver.Connector {
	return pgdriver.NewConnector(
		pgdriver.WithConnParams(sessionParams),
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(30*time.Second),
		pgdriver.WithDialTimeout(15*time.Second),
		pgdriver.WithReadTimeout(30*time.Second),
		pgdriver.WithWriteTimeout(30*time.Second),
	)
}

// New connects to Postgres and returns a Bun DB handle.
func New(dsn string, cfg *config.Config) (*bun.DB, error) {
	sqldb := sql.OpenDB(newConnector(dsn))
	db := Wrap(sqldb)

	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(10)
	sqldb.SetConnMaxLifetime(5 * time.Minute)
	sqldb.SetConnMaxIdleTime(10 * time.Minute)

	// Optional query logging
	if cfg.BunDebug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Wrap builds a bun handle over an existing *sql.DB. The providers table
// carries a generated geography column the models never map, so unknown
// columns are discarded on scan.
func Wrap(sqldb *sql.DB) *bun.DB {
	return bun.NewDB(sqldb, pgdialect.New(), bun.WithDiscardUnknownColumns())
}
