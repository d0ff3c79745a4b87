package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// BoltStore keeps entries in a single bbolt file, keyed by the BLAKE3 hash
// of the cache key.
type BoltStore struct {
	db     *bbolt.DB
	now    func() time.Time
	logger *slog.Logger
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string, opts ...Option) (*BoltStore, error) {
	o := newOptions(opts)

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", bucketEntries, err)
	}

	o.logger.Debug("opened cache database", "path", path)
	return &BoltStore{db: db, now: o.now, logger: o.logger}, nil
}

// decodeEntry unmarshals a stored entry. The result does not alias data.
func decodeEntry(data []byte, key string) (Entry, bool) {
	if data == nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != key {
		return Entry{}, false
	}
	return e, true
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	id := []byte(HashKey(key))

	var e Entry
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		e, ok = decodeEntry(tx.Bucket(bucketEntries).Get(id), key)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if !e.Expired(s.now()) {
		return e.Value, true, nil
	}

	// Delete under a write transaction, unless a concurrent Set refreshed it.
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		current, found := decodeEntry(b.Get(id), key)
		if found && !current.Expired(s.now()) {
			e, ok = current, true
			return nil
		}
		ok = false
		return b.Delete(id)
	})
	if err != nil {
		return nil, false, fmt.Errorf("deleting expired cache entry: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (s *BoltStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(NewEntry(key, value, ttl, s.now()))
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(HashKey(key)), data)
	})
}

func (s *BoltStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *BoltStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(HashKey(key)))
	})
}

// Clear drops and recreates the entries bucket.
func (s *BoltStore) Clear(context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEntries)
		return err
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	s.logger.Debug("closing cache database")
	return s.db.Close()
}
