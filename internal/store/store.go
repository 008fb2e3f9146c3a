package store

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store backs the config, status and audit repositories with one postgres
// connection pool. credentialsKey decrypts store credential blobs and is
// never written back.
type Store struct {
	db             *sqlx.DB
	credentialsKey []byte
}

// NewStore creates a new database store. credentialsKeyHex is the
// hex-encoded AES-256 key for credential blobs; it may be empty when no
// store uses encrypted credentials.
func NewStore(databaseURL, credentialsKeyHex string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var key []byte
	if credentialsKeyHex != "" {
		key, err = hex.DecodeString(credentialsKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials key: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(key))
		}
	}

	return &Store{db: db, credentialsKey: key}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}
