package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"dontforget/internal/domain"
)

// ScopedStore namespaces every key under a prefix, giving each guest session
// or owner its own view of a shared store.
type ScopedStore struct {
	inner  domain.Store
	prefix string
}

func Scoped(inner domain.Store, prefix string) *ScopedStore {
	return &ScopedStore{inner: inner, prefix: prefix}
}

func (s *ScopedStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *ScopedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.key(key))
}

func (s *ScopedStore) Set(ctx context.Context, key string, value []byte) error {
	return s.inner.Set(ctx, s.key(key), value)
}

func (s *ScopedStore) SetMany(ctx context.Context, values map[string][]byte) error {
	scoped := make(map[string][]byte, len(values))
	for k, v := range values {
		scoped[s.key(k)] = v
	}
	return s.inner.SetMany(ctx, scoped)
}

func (s *ScopedStore) Remove(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = s.key(k)
	}
	return s.inner.Remove(ctx, scoped...)
}

// GetJSON decodes the value at key into out. It reports false when the key
// is absent.
func GetJSON(ctx context.Context, store domain.Store, key string, out any) (bool, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, store domain.Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}

// SetManyJSON encodes every value first and writes them in one batch.
func SetManyJSON(ctx context.Context, store domain.Store, values map[string]any) error {
	batch := make(map[string][]byte, len(values))
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		batch[key] = raw
	}
	return store.SetMany(ctx, batch)
}
