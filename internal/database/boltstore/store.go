// Package boltstore keeps the per-browser session slot in a bbolt file so a
// signed-in user survives a server restart.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BucketSessions maps the session_id cookie to a JSON session snapshot.
var BucketSessions = []byte("sessions")

var buckets = [][]byte{BucketSessions}

type Store struct {
	db   *bolt.DB
	path string
}

// Options configures the bbolt file.
type Options struct {
	// Path of the database file; parent directories are created.
	Path string
	// Timeout waiting for the file lock. Zero means 5s.
	Timeout time.Duration
	// FileMode of a newly created file. Zero means 0600.
	FileMode os.FileMode
}

// DefaultOptions points at sessions.db in the working directory.
func DefaultOptions() Options {
	return Options{
		Path:     "sessions.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Path == "" {
		o.Path = d.Path
	}
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.FileMode == 0 {
		o.FileMode = d.FileMode
	}
	return o
}

// Open opens or creates the database and its buckets.
func Open(opts Options) (*Store, error) {
	opts = opts.withDefaults()

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}

	if err := db.Update(createBuckets); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: opts.Path}, nil
}

func createBuckets(tx *bolt.Tx) error {
	for _, b := range buckets {
		if _, err := tx.CreateBucketIfNotExists(b); err != nil {
			return fmt.Errorf("create bucket %s: %w", b, err)
		}
	}
	return nil
}

// Path is the file backing the store.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SessionStore returns the session persister backed by this database.
func (s *Store) SessionStore() *SessionStore {
	return &SessionStore{db: s.db, now: time.Now}
}
