package collect

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/jyothri/inboxsweep/model"
)

// Listing returns the grouped view. On a cold cache with no walk running it
// builds a first page straight from the source.
func (f *Fetcher) Listing(ctx context.Context) ([]model.DomainGroup, error) {
	if snap, ok := f.cache.LoadSnapshot(ctx); ok {
		return snap.Grouping.Sorted(), nil
	}
	if f.tracker.Running() {
		return []model.DomainGroup{}, nil
	}

	page, err := f.src.ListUnread(ctx, "", f.opts.InitialPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list first page: %w", err)
	}
	msgs := toMessages(page.Messages)
	next := page.NextPageToken
	if len(msgs) == 0 {
		next = ""
	}
	total := estimateTotal(0, page.ResultSizeEstimate, len(msgs), len(msgs), next != "")
	grouping := f.save(ctx, next, msgs, total)
	f.reportIdle(len(msgs), total, len(grouping), next)
	return grouping.Sorted(), nil
}

type MoreResult struct {
	Added         int  `json:"added"`
	FetchedCount  int  `json:"fetched"`
	TotalEstimate int  `json:"total"`
	HasMore       bool `json:"has_more"`
}

// FetchMore pulls one page from the saved cursor and merges it into the saved
// snapshot. It may interleave with a background walk; the last write wins.
func (f *Fetcher) FetchMore(ctx context.Context) (MoreResult, error) {
	state, hasState := f.cache.LoadPagination(ctx)
	snap, hasSnap := f.cache.LoadSnapshot(ctx)
	if hasSnap && (!hasState || state.NextPageToken == "") {
		return MoreResult{FetchedCount: snap.Grouping.Count(), TotalEstimate: snap.TotalEstimate}, nil
	}
	token := ""
	var msgs []model.Message
	total := 0
	if hasSnap {
		token = state.NextPageToken
		msgs = snap.Grouping.Messages()
		total = max(snap.TotalEstimate, state.TotalEstimate)
	}

	page, err := f.src.ListUnread(ctx, token, f.opts.PageSize)
	if err != nil {
		return MoreResult{}, fmt.Errorf("failed to fetch more (page_token=%q): %w", token, err)
	}
	added := toMessages(page.Messages)
	msgs = append(msgs, added...)
	next := page.NextPageToken
	if len(added) == 0 {
		next = ""
	}
	total = estimateTotal(total, page.ResultSizeEstimate, len(msgs), len(added), next != "")
	grouping := f.save(ctx, next, msgs, total)
	f.reportIdle(len(msgs), total, len(grouping), next)

	slog.Info("Fetched more messages", "added", len(added), "fetched", len(msgs), "has_more", next != "")
	return MoreResult{
		Added:         len(added),
		FetchedCount:  len(msgs),
		TotalEstimate: total,
		HasMore:       next != "",
	}, nil
}

func (f *Fetcher) save(ctx context.Context, next string, msgs []model.Message, total int) model.Grouping {
	return f.persist(ctx, "on-demand", next, msgs, total)
}

// reportIdle publishes counts gathered outside the background walk. A running
// walk owns the tracker, so nothing is written then.
func (f *Fetcher) reportIdle(fetched, total, groups int, next string) {
	if f.tracker.Running() {
		return
	}
	f.tracker.Update(func(p *model.FetchProgress) {
		p.FetchedCount = fetched
		p.TotalEstimate = total
		p.GroupCount = groups
		p.NextPageToken = next
		p.LastFetch = time.Now()
	})
}

// Preview returns the full view of one message, from cache when fresh.
func (f *Fetcher) Preview(ctx context.Context, id string) (model.Preview, error) {
	if p, ok := f.cache.LoadPreview(ctx, id); ok {
		return p, nil
	}
	d, err := f.src.GetMessage(ctx, id)
	if err != nil {
		return model.Preview{}, fmt.Errorf("failed to load message %s: %w", id, err)
	}
	p := model.Preview{
		ID:      id,
		Sender:  d.Headers.Get("From", model.UnknownSender),
		To:      d.Headers.Get("To", ""),
		Subject: d.Headers.Get("Subject", model.NoSubject),
		Date:    d.Headers.Get("Date", ""),
		Body:    formatBody(d.Body),
	}
	if err := f.cache.SavePreview(ctx, p); err != nil {
		slog.Warn("Failed to cache preview", "message_id", id, "error", err)
	}
	return p, nil
}

// formatBody passes HTML through and renders plain text as escaped,
// line-broken monospace.
func formatBody(body string) string {
	if strings.HasPrefix(strings.TrimSpace(body), "<") {
		return body
	}
	escaped := strings.ReplaceAll(html.EscapeString(body), "\n", "<br>")
	return `<div style="font-family: monospace; white-space: pre-wrap;">` + escaped + `</div>`
}
