// Package settings persists per-isolation preferences in a local bbolt
// database. Each isolation key gets its own bucket, named by the same
// ThreeLayer_<key> convention the rest of the system uses, so
// preferences for one (client, worker, project) triple never leak into
// another.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/trilayer/trilayer/internal/isolation"
)

// Store is an isolation-namespaced key-value preference store with an
// explicit open/close lifecycle.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the settings database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("settings: create data dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("settings: open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// group resolves the bucket name for an isolation key.
func group(isolationKey string) []byte {
	return []byte(isolation.SettingsGroup(isolationKey))
}

// Set stores one value under the isolation key's namespace.
func (s *Store) Set(isolationKey, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(group(isolationKey))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Get reads one value, returning fallback when the namespace or key
// does not exist.
func (s *Store) Get(isolationKey, key, fallback string) (string, error) {
	value := fallback
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(group(isolationKey))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

// Remove deletes one key. Removing a key that does not exist is not an
// error.
func (s *Store) Remove(isolationKey, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(group(isolationKey))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// SetAll stores several values under one namespace in a single
// transaction.
func (s *Store) SetAll(isolationKey string, values map[string]string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(group(isolationKey))
		if err != nil {
			return err
		}
		for k, v := range values {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAll returns every value stored under one namespace. A missing
// namespace yields an empty map.
func (s *Store) GetAll(isolationKey string) (map[string]string, error) {
	out := map[string]string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(group(isolationKey))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
