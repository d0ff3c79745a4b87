package cache

import (
	"context"
	"time"
)

// NullStore stores nothing. Every lookup is a miss.
type NullStore struct{}

// NewNullStore returns a store that never caches.
func NewNullStore() NullStore {
	return NullStore{}
}

func (NullStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NullStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NullStore) Has(context.Context, string) (bool, error) { return false, nil }

func (NullStore) Delete(context.Context, string) error { return nil }

func (NullStore) Clear(context.Context) error { return nil }
