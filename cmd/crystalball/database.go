package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// setupDatabases opens both Postgres handles: a pgx pool for the prediction
// store and a database/sql handle for the outbox reader, which shares its
// driver with the pq LISTEN connection.
func setupDatabases(ctx context.Context, dsn string) (*pgxpool.Pool, *sql.DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to open outbox database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		pool.Close()
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping outbox database connection: %w", err)
	}

	log.Info().Msg("connected to database")
	return pool, db, nil
}
