// Package cache persists the grouping snapshot, the pagination cursor and
// message previews behind a pluggable byte store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var ErrNotFound = errors.New("cache entry not found")

// Store is a flat key/value namespace. Put must replace a value atomically
// from the view of a concurrent Get.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,200}$`)

func checkKey(key string) error {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("invalid cache key %q", key)
	}
	return nil
}
