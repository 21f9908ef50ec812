package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// sqliteFile is the database file kept inside the credential directory.
const sqliteFile = "store.db"

// SQLiteCredentials keeps the device store in a SQLite file inside a
// dedicated directory. Deleting the directory discards the credentials; the
// store notices and starts over with an empty database.
type SQLiteCredentials struct {
	dir string
	log waLog.Logger

	mu        sync.Mutex
	db        *sql.DB
	container *sqlstore.Container
}

// NewSQLiteCredentials opens (or creates) the credential store in dir.
// If dir is empty, defaults to "wa_auth".
func NewSQLiteCredentials(ctx context.Context, dir string, log waLog.Logger) (*SQLiteCredentials, error) {
	if dir == "" {
		dir = "wa_auth"
	}

	s := &SQLiteCredentials{dir: dir, log: log}
	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// open creates the directory and database and runs the device store
// migrations. Callers hold mu, except during construction.
func (s *SQLiteCredentials) open(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+s.path()+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}

	container := sqlstore.NewWithDB(db, "sqlite3", s.log)
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return fmt.Errorf("upgrade device store: %w", err)
	}

	s.db = db
	s.container = container
	return nil
}

func (s *SQLiteCredentials) path() string {
	return filepath.Join(s.dir, sqliteFile)
}

// reopenIfMissing starts a fresh database when the file was removed behind
// our back.
func (s *SQLiteCredentials) reopenIfMissing(ctx context.Context) error {
	if _, err := os.Stat(s.path()); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if s.db != nil {
		s.db.Close()
	}
	return s.open(ctx)
}

// Device returns the first stored device, or a new unpaired one.
func (s *SQLiteCredentials) Device(ctx context.Context) (*wastore.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reopenIfMissing(ctx); err != nil {
		return nil, err
	}
	return s.container.GetFirstDevice(ctx)
}

// Reset deletes the stored devices and the whole credential directory, then
// recreates an empty store.
func (s *SQLiteCredentials) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reopenIfMissing(ctx); err != nil {
		return err
	}
	if err := deleteDevices(ctx, s.container); err != nil {
		return err
	}

	s.db.Close()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove credential dir: %w", err)
	}
	return s.open(ctx)
}

// Dir returns the credential directory.
func (s *SQLiteCredentials) Dir() string {
	return s.dir
}

// Ping checks the database connection.
func (s *SQLiteCredentials) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteCredentials) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
