// Package cache defines the key/value store the scripture service caches
// responses in, together with its in-process, file, bbolt and Redis
// implementations.
package cache

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
)

// Store is a TTL key/value store. Expired entries are reported absent and
// removed when read. A ttl <= 0 stores an entry that never expires.
// Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value for key. ok is false on a miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Has reports whether Get would hit.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry owned by the store.
	Clear(ctx context.Context) error
}

// Entry is the envelope persisted by the file and bbolt stores.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// NewEntry builds an entry expiring ttl after now.
func NewEntry(key string, value []byte, ttl time.Duration, now time.Time) Entry {
	e := Entry{Key: key, Value: value}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// HashKey returns the hex BLAKE3-256 digest of key. It names files and
// bbolt keys so that arbitrary cache keys map to safe identifiers.
func HashKey(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// options holds the settings shared by the store constructors. Each store
// reads only the fields that apply to it.
type options struct {
	now      func() time.Time
	logger   *slog.Logger
	compress bool
	prefix   string
}

// Option configures a store.
type Option func(*options)

// WithNow sets the clock used for expiry.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCompression zstd-compresses payloads written by the file store.
func WithCompression(enabled bool) Option {
	return func(o *options) {
		o.compress = enabled
	}
}

// WithPrefix namespaces the keys of the Redis store.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		now:    time.Now,
		logger: slog.Default(),
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
