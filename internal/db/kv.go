package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/snapfood/internal/errors"
)

// KV is the SQLite-backed kv.Store. Each Save is a single UPSERT statement,
// so a key holds either the old or the new bytes, never a mix.
type KV struct {
	db *sql.DB
}

// NewKV wraps an initialized database.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

// Load returns the value under key.
func (s *KV) Load(key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewInternal(err)
	}
	return data, true, nil
}

// Save replaces the value under key.
func (s *KV) Save(key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, key, data, time.Now().Unix()); err != nil {
		return errors.NewPersistence(key, err)
	}
	return nil
}
