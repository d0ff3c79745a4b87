package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const fileExt = ".cache"

// zstd frame magic number.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// DefaultFileDir is the directory used by NewFileStore when dir is empty.
func DefaultFileDir() string {
	return filepath.Join(os.TempDir(), "holy_bible_cache")
}

// FileStore keeps one file per key in a directory. File names are the
// BLAKE3 hash of the key; writes go to a temporary file that is renamed
// into place.
type FileStore struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu sync.RWMutex
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	o := newOptions(opts)
	if dir == "" {
		dir = DefaultFileDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	s := &FileStore{
		dir:    dir,
		now:    o.now,
		logger: o.logger,
	}

	// The decoder is always available so compressed files stay readable
	// after compression is switched off.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	s.decoder = dec

	if o.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		s.encoder = enc
	}

	return s, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, HashKey(key)+fileExt)
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok, err := s.read(key)
	s.mu.RUnlock()
	if err != nil || !ok {
		return nil, false, err
	}

	if !e.Expired(s.now()) {
		return e.Value, true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check: another writer may have refreshed the entry meanwhile.
	e, ok, err = s.read(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if !e.Expired(s.now()) {
		return e.Value, true, nil
	}
	if err := s.remove(key); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// read loads the entry for key. Missing, corrupt and colliding files are
// all misses; a later Set overwrites them.
func (s *FileStore) read(key string) (Entry, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cache file: %w", err)
	}

	if bytes.HasPrefix(data, zstdMagic) {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			s.logger.Warn("discarding unreadable cache file", "key", key, "error", err)
			return Entry{}, false, nil
		}
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		s.logger.Warn("discarding corrupt cache file", "key", key, "error", err)
		return Entry{}, false, nil
	}
	if e.Key != key {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := json.Marshal(NewEntry(key, value, ttl, s.now()))
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if s.encoder != nil {
		data = s.encoder.EncodeAll(data, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(key)
}

func (s *FileStore) remove(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

// Clear removes every cache file in the directory.
func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return fmt.Errorf("listing cache files: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the zstd encoder and decoder.
func (s *FileStore) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.encoder != nil {
		return s.encoder.Close()
	}
	return nil
}
