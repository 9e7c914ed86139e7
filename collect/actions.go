package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jyothri/inboxsweep/cache"
	"github.com/jyothri/inboxsweep/mailbox"
	"github.com/jyothri/inboxsweep/model"
)

// cacheWriteTimeout bounds cache cleanup that must outlive the request.
const cacheWriteTimeout = 10 * time.Second

// Actions applies bulk mutations and invalidates the listing afterwards.
type Actions struct {
	src   mailbox.Source
	cache *cache.Cache
}

func NewActions(src mailbox.Source, c *cache.Cache) *Actions {
	return &Actions{src: src, cache: c}
}

type ActionResult struct {
	Requested int `json:"requested"`
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
}

// Apply runs kind against every id. Individual failures are logged and
// skipped; the snapshot and cursor are invalidated regardless.
func (a *Actions) Apply(ctx context.Context, ids []string, kind model.ActionKind) (ActionResult, error) {
	var apply func(id string) error
	switch kind {
	case model.ActionRead:
		apply = func(id string) error { return a.src.ModifyLabels(ctx, id, []string{mailbox.LabelUnread}) }
	case model.ActionArchive:
		apply = func(id string) error { return a.src.ModifyLabels(ctx, id, []string{mailbox.LabelInbox}) }
	case model.ActionTrash:
		apply = func(id string) error {
			if err := a.src.Trash(ctx, id); err != nil {
				return err
			}
			if err := a.detached(ctx, func(ctx context.Context) error { return a.cache.DeletePreview(ctx, id) }); err != nil {
				slog.Warn("Failed to drop cached preview", "message_id", id, "error", err)
			}
			return nil
		}
	default:
		return ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}

	res := ActionResult{Requested: len(ids)}
	for _, id := range ids {
		if err := apply(id); err != nil {
			res.Failed++
			slog.Error("Action failed, skipping message",
				"action", string(kind),
				"message_id", id,
				"error", err)
			continue
		}
		res.Applied++
	}

	if err := a.detached(ctx, a.cache.Invalidate); err != nil {
		slog.Warn("Failed to invalidate listing cache", "error", err)
	}
	slog.Info("Applied action",
		"action", string(kind),
		"requested", res.Requested,
		"applied", res.Applied,
		"failed", res.Failed)
	return res, nil
}

// detached runs fn on a context that survives cancellation of ctx, so a
// client hanging up mid-batch still leaves the cache consistent.
func (a *Actions) detached(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	return fn(ctx)
}
