// Package store holds all cross-invocation state: dedup records, per-feed
// change tokens, persisted insights, and the dynamic core thesis. Pipeline
// invocations are stateless; everything that must survive a run lives here.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/timshannon/badgerhold/v4"
)

// Store wraps the badgerhold connection shared by all record types.
type Store struct {
	db *badgerhold.Store
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying badgerhold store for collaborators that keep
// their own record types in the same database (the vector index).
func (s *Store) DB() *badgerhold.Store {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
