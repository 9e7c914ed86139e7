package collect

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jyothri/inboxsweep/cache"
	"github.com/jyothri/inboxsweep/mailbox"
	"github.com/jyothri/inboxsweep/notification"
)

var errBoom = errors.New("boom")

// fakeSource serves n unread messages in listing order, paged by offset.
type fakeSource struct {
	mu        sync.Mutex
	ids       []string
	senders   map[string]string
	estimate  int
	failAfter int // fail the call after this many successful lists; 0 disables
	calls     int
	tokens    []string
	onList    func(call int)

	failIDs  map[string]bool
	modified map[string][]string
	trashed  []string
	gets     int
}

func newFakeSource(n int) *fakeSource {
	f := &fakeSource{senders: map[string]string{}, failIDs: map[string]bool{}, modified: map[string][]string{}}
	domains := []string{"news.com", "shop.io", "bank.org"}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%03d", i)
		f.ids = append(f.ids, id)
		f.senders[id] = fmt.Sprintf("Sender <user%d@%s>", i, domains[i%len(domains)])
	}
	return f
}

func (f *fakeSource) ListUnread(_ context.Context, pageToken string, pageSize int) (mailbox.Page, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.tokens = append(f.tokens, pageToken)
	if f.failAfter > 0 && call > f.failAfter {
		f.mu.Unlock()
		return mailbox.Page{}, errBoom
	}
	offset := 0
	if pageToken != "" {
		offset, _ = strconv.Atoi(pageToken)
	}
	end := min(offset+pageSize, len(f.ids))
	page := mailbox.Page{ResultSizeEstimate: f.estimate}
	for _, id := range f.ids[offset:end] {
		h := mailbox.Headers{}
		h.Set("From", f.senders[id])
		h.Set("Subject", "subject "+id)
		page.Messages = append(page.Messages, mailbox.Summary{ID: id, Headers: h, HasBody: true})
	}
	if end < len(f.ids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	hook := f.onList
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return page, nil
}

func (f *fakeSource) GetMessage(_ context.Context, id string) (mailbox.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failIDs[id] {
		return mailbox.Detail{}, errBoom
	}
	h := mailbox.Headers{}
	h.Set("From", f.senders[id])
	h.Set("To", "me@example.com")
	return mailbox.Detail{ID: id, Headers: h, Body: "line one\nline <two>"}, nil
}

func (f *fakeSource) ModifyLabels(_ context.Context, id string, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return errBoom
	}
	f.modified[id] = remove
	return nil
}

func (f *fakeSource) Trash(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return errBoom
	}
	f.trashed = append(f.trashed, id)
	return nil
}

func (f *fakeSource) listCalls() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]string(nil), f.tokens...)
}

type harness struct {
	src     *fakeSource
	cache   *cache.Cache
	tracker *notification.Tracker
	fetcher *Fetcher
	actions *Actions
}

func newHarness(t *testing.T, src *fakeSource, opts Options) *harness {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return newHarnessOn(t, src, store, opts)
}

func newHarnessOn(t *testing.T, src *fakeSource, store cache.Store, opts Options) *harness {
	t.Helper()
	c := cache.New(store)
	t.Cleanup(func() { _ = c.Close() })
	tracker := notification.NewTracker(notification.NewHub())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &harness{
		src:     src,
		cache:   c,
		tracker: tracker,
		fetcher: NewFetcher(ctx, src, c, tracker, opts),
		actions: NewActions(src, c),
	}
}
