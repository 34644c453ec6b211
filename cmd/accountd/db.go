package main

import (
	"context"
	"database/sql"

	auth "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// openDB opens the configured database and applies migrations
func openDB(ctx context.Context, cfg Config) (*bun.DB, error) {
	var (
		sqldb   *sql.DB
		err     error
		db      *bun.DB
		dialect string
	)

	switch cfg.DBDriver {
	case "postgres":
		sqldb, err = sql.Open("pgx", cfg.DBDSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
		dialect = "postgres"
	default:
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DBDSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
		}
		// sqlite serializes writers
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		dialect = "sqlite3"
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reach database")
	}

	if err := auth.Migrate(ctx, sqldb, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
