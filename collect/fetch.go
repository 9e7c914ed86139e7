// Package collect walks the unread listing in the background, serves the
// grouped view and applies bulk actions.
package collect

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jyothri/inboxsweep/cache"
	"github.com/jyothri/inboxsweep/mailbox"
	"github.com/jyothri/inboxsweep/model"
	"github.com/jyothri/inboxsweep/notification"
)

type Options struct {
	// PageSize bounds each page of the background walk and of FetchMore.
	PageSize int
	// InitialPageSize bounds the page Listing fetches on a cold cache.
	InitialPageSize int
	// MaxTotal stops the walk once this many messages are held. Zero means no limit.
	MaxTotal  int
	PageDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.InitialPageSize <= 0 {
		o.InitialPageSize = 50
	}
	if o.MaxTotal < 0 {
		o.MaxTotal = 0
	}
	return o
}

// Fetcher drives the paginated walk over a Source and keeps the cache and the
// tracker current.
type Fetcher struct {
	base    context.Context
	src     mailbox.Source
	cache   *cache.Cache
	tracker *notification.Tracker
	opts    Options
}

// NewFetcher returns a Fetcher whose background walks run under ctx.
func NewFetcher(ctx context.Context, src mailbox.Source, c *cache.Cache, tracker *notification.Tracker, opts Options) *Fetcher {
	return &Fetcher{
		base:    ctx,
		src:     src,
		cache:   c,
		tracker: tracker,
		opts:    opts.withDefaults(),
	}
}

// Start launches a detached walk beginning at resumeToken with the messages
// of carried already held. It returns ErrFetchInProgress when a walk is active.
func (f *Fetcher) Start(resumeToken string, carried model.Snapshot) error {
	if !f.tracker.TryStart() {
		return ErrFetchInProgress
	}
	f.tracker.ClearPause()

	msgs := carried.Grouping.Messages()
	runID := uuid.NewString()
	f.tracker.Update(func(p *model.FetchProgress) {
		p.IsFetching = true
		p.IsPaused = false
		p.LastError = ""
		p.FetchedCount = len(msgs)
		p.TotalEstimate = max(carried.TotalEstimate, len(msgs))
		p.GroupCount = len(carried.Grouping)
		p.NextPageToken = resumeToken
	})
	slog.Info("Starting background fetch",
		"run_id", runID,
		"resume", resumeToken != "",
		"carried", len(msgs))

	go f.run(runID, resumeToken, msgs, max(carried.TotalEstimate, len(msgs)))
	return nil
}

// StartSaved resumes from the saved cursor and snapshot when both are
// present and starts from scratch otherwise.
func (f *Fetcher) StartSaved() error {
	ctx := f.base
	state, hasState := f.cache.LoadPagination(ctx)
	snap, hasSnap := f.cache.LoadSnapshot(ctx)
	if hasState && hasSnap && state.NextPageToken != "" {
		snap.TotalEstimate = max(snap.TotalEstimate, state.TotalEstimate)
		return f.Start(state.NextPageToken, snap)
	}
	return f.Start("", model.Snapshot{Grouping: model.Grouping{}})
}

// Pause asks the running walk to stop before its next page.
func (f *Fetcher) Pause() {
	f.tracker.RequestPause()
	slog.Info("Pause requested", "running", f.tracker.Running())
}

func (f *Fetcher) Resume() error {
	f.tracker.ClearPause()
	return f.StartSaved()
}

func (f *Fetcher) run(runID, token string, msgs []model.Message, total int) {
	defer f.tracker.Finish()
	ctx := f.base
	started := time.Now()
	pages := 0

	for {
		if f.tracker.PauseRequested() {
			f.tracker.ClearPause()
			f.persist(ctx, runID, token, msgs, total)
			f.tracker.Update(func(p *model.FetchProgress) {
				p.IsFetching = false
				p.IsPaused = true
			})
			slog.Info("Background fetch paused",
				"run_id", runID,
				"fetched", len(msgs),
				"page_token", token)
			return
		}

		size := f.opts.PageSize
		if f.opts.MaxTotal > 0 {
			size = min(size, f.opts.MaxTotal-len(msgs))
			if size <= 0 {
				break
			}
		}

		page, err := f.src.ListUnread(ctx, token, size)
		if err != nil {
			slog.Error("Background fetch failed",
				"run_id", runID,
				"page_token", token,
				"fetched", len(msgs),
				"error", err)
			f.tracker.Update(func(p *model.FetchProgress) {
				p.IsFetching = false
				p.LastError = err.Error()
			})
			return
		}
		pages++

		msgs = append(msgs, toMessages(page.Messages)...)
		next := page.NextPageToken
		if len(page.Messages) == 0 {
			next = ""
		}
		total = estimateTotal(total, page.ResultSizeEstimate, len(msgs), len(page.Messages), next != "")
		token = next
		grouping := f.persist(ctx, runID, token, msgs, total)

		fetched := len(msgs)
		f.tracker.Update(func(p *model.FetchProgress) {
			p.FetchedCount = fetched
			p.TotalEstimate = total
			p.GroupCount = len(grouping)
			p.NextPageToken = token
			p.LastFetch = time.Now()
		})
		slog.Debug("Fetched page",
			"run_id", runID,
			"page", pages,
			"page_len", len(page.Messages),
			"fetched", fetched,
			"total_estimate", total)

		if token == "" {
			break
		}
		if f.opts.MaxTotal > 0 && fetched >= f.opts.MaxTotal {
			slog.Info("Reached fetch limit", "run_id", runID, "max_total", f.opts.MaxTotal)
			break
		}
		if err := sleepCtx(ctx, f.opts.PageDelay); err != nil {
			f.tracker.Update(func(p *model.FetchProgress) {
				p.IsFetching = false
				p.LastError = err.Error()
			})
			return
		}
	}

	f.tracker.Update(func(p *model.FetchProgress) {
		p.IsFetching = false
		p.IsPaused = false
	})
	slog.Info("Finished background fetch",
		"run_id", runID,
		"fetched", len(msgs),
		"pages", pages,
		"elapsed", time.Since(started).Round(time.Millisecond))
}

// persist writes the snapshot and either saves or drops the cursor. Cache
// failures are logged and the walk carries on.
func (f *Fetcher) persist(ctx context.Context, runID, token string, msgs []model.Message, total int) model.Grouping {
	grouping := model.GroupByDomain(msgs)
	if token != "" {
		state := model.PaginationState{NextPageToken: token, FetchedCount: len(msgs), TotalEstimate: total}
		if err := f.cache.SavePagination(ctx, state); err != nil {
			slog.Warn("Failed to save pagination state", "run_id", runID, "error", err)
		}
	} else if err := f.cache.DeletePagination(ctx); err != nil {
		slog.Warn("Failed to delete pagination state", "run_id", runID, "error", err)
	}
	snap := model.Snapshot{Grouping: grouping, TotalEstimate: total, FetchedCount: len(msgs)}
	if err := f.cache.SaveSnapshot(ctx, snap); err != nil {
		slog.Warn("Failed to save snapshot", "run_id", runID, "error", err)
	}
	return grouping
}
