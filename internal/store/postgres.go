package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// PostgresCredentials keeps the device store in PostgreSQL.
type PostgresCredentials struct {
	pool      *pgxpool.Pool
	container *sqlstore.Container
}

// NewPostgresCredentials connects with a pool and runs the device store
// migrations.
func NewPostgresCredentials(ctx context.Context, databaseURL string, log waLog.Logger) (*PostgresCredentials, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	container := sqlstore.NewWithDB(stdlib.OpenDBFromPool(pool), "postgres", log)
	if err := container.Upgrade(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("upgrade device store: %w", err)
	}

	return &PostgresCredentials{pool: pool, container: container}, nil
}

// Device returns the first stored device, or a new unpaired one.
func (s *PostgresCredentials) Device(ctx context.Context) (*wastore.Device, error) {
	return s.container.GetFirstDevice(ctx)
}

// Reset deletes every stored device.
func (s *PostgresCredentials) Reset(ctx context.Context) error {
	return deleteDevices(ctx, s.container)
}

// Dir returns "" since nothing is kept on disk.
func (s *PostgresCredentials) Dir() string {
	return ""
}

// Ping checks the database connection.
func (s *PostgresCredentials) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresCredentials) Close() error {
	s.pool.Close()
	return nil
}
