package bible

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JohnPlummer/jp-go-bible/cache"
)

// DefaultVersion is the translation used until SetVersion is called.
const DefaultVersion = "nvi"

// DefaultCacheTTL is how long fetched DTOs stay cached.
const DefaultCacheTTL = time.Hour

// Fetcher returns the JSON body for an API path. *Client implements it.
type Fetcher interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// Service validates references, serves DTOs from the cache and fetches
// misses through a Fetcher. It is safe for concurrent use.
type Service struct {
	client  Fetcher
	store   cache.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	version string
}

// ServiceOption is a functional option for configuring a Service.
type ServiceOption func(*Service)

// WithStore sets the cache. The default stores nothing.
func WithStore(store cache.Store) ServiceOption {
	return func(s *Service) {
		s.store = store
	}
}

// WithCacheTTL sets the TTL of cached DTOs. A ttl <= 0 never expires.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithVersion sets the initial translation.
func WithVersion(version string) ServiceOption {
	return func(s *Service) {
		s.version = version
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceMetrics records cache lookups.
func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service over client.
func NewService(client Fetcher, opts ...ServiceOption) *Service {
	s := &Service{
		client:  client,
		store:   cache.NewNullStore(),
		ttl:     DefaultCacheTTL,
		logger:  slog.Default(),
		version: DefaultVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = cache.NewNullStore()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SetVersion switches the active translation. Entries cached under the
// previous version stay addressable by their own keys.
func (s *Service) SetVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
}

// Version returns the active translation.
func (s *Service) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Store returns the cache in use.
func (s *Service) Store() cache.Store {
	return s.store
}

// Books lists every book.
func (s *Service) Books(ctx context.Context) ([]BookInfo, error) {
	return cached(ctx, s, "books", "books", NewBookList)
}

// Versions lists every translation.
func (s *Service) Versions(ctx context.Context) ([]Version, error) {
	return cached(ctx, s, "versions", "versions", NewVersionList)
}

// Chapter returns a chapter of book in the active translation.
func (s *Service) Chapter(ctx context.Context, book Book, chapter int) (Chapter, error) {
	if chapter < 1 {
		return Chapter{}, &InvalidChapterError{Chapter: chapter}
	}
	if err := book.Validate(); err != nil {
		return Chapter{}, err
	}

	version := s.Version()
	key := fmt.Sprintf("chapter:%s:%s:%d", version, book, chapter)
	path := fmt.Sprintf("verses/%s/%s/%d", version, book, chapter)
	return cached(ctx, s, key, path, NewChapter)
}

// Verse returns a single verse in the active translation. An invalid
// chapter is reported before an invalid verse.
func (s *Service) Verse(ctx context.Context, book Book, chapter, verse int) (Verse, error) {
	if chapter < 1 {
		return Verse{}, &InvalidChapterError{Chapter: chapter}
	}
	if verse < 1 {
		return Verse{}, &InvalidVerseError{Verse: verse}
	}
	if err := book.Validate(); err != nil {
		return Verse{}, err
	}

	version := s.Version()
	key := fmt.Sprintf("verse:%s:%s:%d:%d", version, book, chapter, verse)
	path := fmt.Sprintf("verses/%s/%s/%d/%d", version, book, chapter, verse)
	return cached(ctx, s, key, path, NewVerse)
}

// ClearCache removes every cached entry.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// cached serves key from the store, or fetches path, builds the DTO and
// stores it. Cache failures are logged and never fail the call.
func cached[T any](ctx context.Context, s *Service, key, path string, build func([]byte) (T, error)) (T, error) {
	var zero T

	if v, ok := lookup[T](ctx, s, key); ok {
		return v, nil
	}

	body, err := s.client.Get(ctx, path)
	if err != nil {
		return zero, err
	}

	v, err := build(body)
	if err != nil {
		s.logger.Error("unexpected api response shape", "path", path, "error", err)
		return zero, &APIResponseError{Path: path, Body: body, Err: err}
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("encoding cache entry failed", "key", key, "error", err)
		return v, nil
	}
	if err := s.store.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return v, nil
}

func lookup[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var v T

	data, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.observeCache(CacheError)
		s.logger.Warn("cache read failed", "key", key, "error", err)
		return v, false
	}
	if !ok {
		s.metrics.observeCache(CacheMiss)
		s.logger.Debug("cache miss", "key", key)
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		s.metrics.observeCache(CacheError)
		s.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return v, false
	}

	s.metrics.observeCache(CacheHit)
	s.logger.Debug("cache hit", "key", key)
	return v, true
}
