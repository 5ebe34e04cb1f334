package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/paths"
)

//go:embed schema.sql
var schemaSQL string

// Store serves reads and the processing-time write path for dataset
// versions. It is stateless apart from the path resolver: each
// operation opens the target version's query database, so concurrent
// operations against different versions share nothing.
type Store struct {
	resolver *paths.Resolver
}

// New creates a store over the given path resolver.
func New(resolver *paths.Resolver) *Store {
	return &Store{resolver: resolver}
}

// Resolver exposes the store's path resolver for collaborators
// that remove or inspect a version's on-disk directory, such as
// lifecycle deletion and failure cleanup.
func (s *Store) Resolver() *paths.Resolver {
	return s.resolver
}

// openRead opens a version's query database read-only. A missing or
// unopenable database is a *NotReadyError: the version either never
// finished processing or its files are gone.
func (s *Store) openRead(v model.DataSetVersion) (*sql.DB, error) {
	path := s.resolver.QueryDBPath(v.DataSetID, v.Version)

	if _, err := os.Stat(path); err != nil {
		return nil, &NotReadyError{
			DataSetID: v.DataSetID,
			Version:   v.Version,
			Reason:    fmt.Sprintf("query database missing: %v", err),
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, &NotReadyError{
			DataSetID: v.DataSetID,
			Version:   v.Version,
			Reason:    fmt.Sprintf("open query database: %v", err),
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &NotReadyError{
			DataSetID: v.DataSetID,
			Version:   v.Version,
			Reason:    fmt.Sprintf("query database unreadable: %v", err),
		}
	}

	return db, nil
}

// openWrite creates/opens a version's query database for the
// processing write path and applies pragmas and the static schema.
func (s *Store) openWrite(ctx context.Context, v model.DataSetVersion) (*sql.DB, error) {
	path := s.resolver.QueryDBPath(v.DataSetID, v.Version)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open query database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect query database: %w", err)
	}

	// SQLite only supports one writer; the version pipeline is the
	// sole writer of its directory so a single connection suffices.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
