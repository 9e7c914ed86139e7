package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jyothri/inboxsweep/model"
)

const (
	listKey       = "list"
	paginationKey = "pagination"
	previewPrefix = "email_"

	SnapshotTTL   = 24 * time.Hour
	PaginationTTL = time.Hour
	PreviewTTL    = 24 * time.Hour
)

type envelope struct {
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

// Cache is the typed view over a Store. Entries older than their TTL, or that
// fail to decode, read as a miss.
type Cache struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	return c.put(ctx, listKey, snap)
}

// LoadSnapshot reports ok=false on a miss. SavedAt is taken from the envelope.
func (c *Cache) LoadSnapshot(ctx context.Context) (model.Snapshot, bool) {
	var snap model.Snapshot
	savedAt, ok := c.get(ctx, listKey, SnapshotTTL, &snap)
	if !ok {
		return model.Snapshot{}, false
	}
	snap.SavedAt = savedAt
	if snap.Grouping == nil {
		snap.Grouping = model.Grouping{}
	}
	return snap, true
}

func (c *Cache) SavePagination(ctx context.Context, state model.PaginationState) error {
	return c.put(ctx, paginationKey, state)
}

func (c *Cache) LoadPagination(ctx context.Context) (model.PaginationState, bool) {
	var state model.PaginationState
	savedAt, ok := c.get(ctx, paginationKey, PaginationTTL, &state)
	if !ok {
		return model.PaginationState{}, false
	}
	state.SavedAt = savedAt
	return state, true
}

func (c *Cache) DeletePagination(ctx context.Context) error {
	return c.store.Delete(ctx, paginationKey)
}

func (c *Cache) SavePreview(ctx context.Context, p model.Preview) error {
	return c.put(ctx, previewPrefix+p.ID, p)
}

func (c *Cache) LoadPreview(ctx context.Context, id string) (model.Preview, bool) {
	var p model.Preview
	if _, ok := c.get(ctx, previewPrefix+id, PreviewTTL, &p); !ok {
		return model.Preview{}, false
	}
	return p, true
}

func (c *Cache) DeletePreview(ctx context.Context, id string) error {
	return c.store.Delete(ctx, previewPrefix+id)
}

// Invalidate drops the list snapshot and the pagination cursor.
func (c *Cache) Invalidate(ctx context.Context) error {
	var errs []error
	for _, key := range []string{listKey, paginationKey} {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (c *Cache) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	blob, err := json.Marshal(envelope{SavedAt: c.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode envelope for %s: %w", key, err)
	}
	if err := c.store.Put(ctx, key, blob); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string, ttl time.Duration, v any) (time.Time, bool) {
	blob, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false
	}
	if err != nil {
		slog.Warn("Cache read failed, treating as miss", "key", key, "error", err)
		return time.Time{}, false
	}
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		slog.Warn("Corrupt cache entry, treating as miss", "key", key, "error", err)
		return time.Time{}, false
	}
	age := c.now().Sub(env.SavedAt)
	if age >= ttl {
		slog.Debug("Cache entry expired", "key", key, "age", age.Round(time.Second))
		return time.Time{}, false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		slog.Warn("Corrupt cache payload, treating as miss", "key", key, "error", err)
		return time.Time{}, false
	}
	return env.SavedAt, true
}
