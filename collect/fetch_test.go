package collect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyothri/inboxsweep/model"
)

func waitIdle(t *testing.T, h *harness) {
	t.Helper()
	require.Eventually(t, func() bool { return !h.tracker.Running() }, 5*time.Second, 5*time.Millisecond)
}

func TestWalkExhaustsSource(t *testing.T) {
	src := newFakeSource(35)
	h := newHarness(t, src, Options{PageSize: 10})
	ctx := context.Background()

	require.NoError(t, h.fetcher.StartSaved())
	waitIdle(t, h)

	p := h.tracker.Snapshot()
	assert.Equal(t, model.StatusComplete, p.Status())
	assert.Equal(t, 35, p.FetchedCount)
	assert.Equal(t, 35, p.TotalEstimate)
	assert.Equal(t, 3, p.GroupCount)
	assert.Empty(t, p.NextPageToken)
	assert.False(t, p.LastFetch.IsZero())

	snap, ok := h.cache.LoadSnapshot(ctx)
	require.True(t, ok)
	assert.Equal(t, 35, snap.Grouping.Count())
	assert.Equal(t, 35, snap.FetchedCount)

	_, ok = h.cache.LoadPagination(ctx)
	assert.False(t, ok, "exhausted walk leaves nothing to resume")

	calls, _ := src.listCalls()
	assert.Equal(t, 4, calls)
}

func TestPauseResumeContinuesAtCursor(t *testing.T) {
	src := newFakeSource(45)
	h := newHarness(t, src, Options{PageSize: 10})
	ctx := context.Background()
	src.onList = func(call int) {
		if call == 2 {
			h.fetcher.Pause()
		}
	}

	require.NoError(t, h.fetcher.StartSaved())
	waitIdle(t, h)

	p := h.tracker.Snapshot()
	assert.Equal(t, model.StatusPaused, p.Status())
	assert.Equal(t, 20, p.FetchedCount)
	assert.False(t, p.IsFetching)

	state, ok := h.cache.LoadPagination(ctx)
	require.True(t, ok)
	assert.Equal(t, "20", state.NextPageToken)
	assert.Equal(t, 20, state.FetchedCount)

	src.onList = nil
	require.NoError(t, h.fetcher.Resume())
	waitIdle(t, h)

	_, tokens := src.listCalls()
	assert.Equal(t, []string{"", "10", "20", "30", "40"}, tokens)

	p = h.tracker.Snapshot()
	assert.Equal(t, model.StatusComplete, p.Status())
	assert.Equal(t, 45, p.FetchedCount)
	assert.Equal(t, 45, p.TotalEstimate)

	snap, ok := h.cache.LoadSnapshot(ctx)
	require.True(t, ok)
	assert.Equal(t, 45, snap.Grouping.Count())
}

func TestWalkErrorRecordsLastError(t *testing.T) {
	src := newFakeSource(50)
	src.failAfter = 2
	h := newHarness(t, src, Options{PageSize: 10})
	ctx := context.Background()

	require.NoError(t, h.fetcher.StartSaved())
	waitIdle(t, h)

	p := h.tracker.Snapshot()
	assert.Equal(t, model.StatusError, p.Status())
	assert.Equal(t, "boom", p.LastError)
	assert.Equal(t, 20, p.FetchedCount)

	state, ok := h.cache.LoadPagination(ctx)
	require.True(t, ok)
	assert.Equal(t, "20", state.NextPageToken)

	// A restart picks up the saved cursor and clears the error.
	src.failAfter = 0
	require.NoError(t, h.fetcher.StartSaved())
	waitIdle(t, h)
	p = h.tracker.Snapshot()
	assert.Equal(t, model.StatusComplete, p.Status())
	assert.Equal(t, 50, p.FetchedCount)
}

func TestWalkStopsAtMaxTotal(t *testing.T) {
	src := newFakeSource(50)
	h := newHarness(t, src, Options{PageSize: 10, MaxTotal: 25})
	ctx := context.Background()

	require.NoError(t, h.fetcher.StartSaved())
	waitIdle(t, h)

	p := h.tracker.Snapshot()
	assert.Equal(t, 25, p.FetchedCount)
	assert.GreaterOrEqual(t, p.TotalEstimate, p.FetchedCount)

	state, ok := h.cache.LoadPagination(ctx)
	require.True(t, ok, "stopping at the limit keeps the cursor")
	assert.Equal(t, "25", state.NextPageToken)
}

func TestStartRejectsConcurrentWalk(t *testing.T) {
	src := newFakeSource(30)
	release := make(chan struct{})
	src.onList = func(call int) {
		if call == 1 {
			<-release
		}
	}
	h := newHarness(t, src, Options{PageSize: 10})

	require.NoError(t, h.fetcher.StartSaved())
	assert.ErrorIs(t, h.fetcher.StartSaved(), ErrFetchInProgress)
	assert.ErrorIs(t, h.fetcher.Start("", model.Snapshot{}), ErrFetchInProgress)
	assert.Equal(t, model.StatusFetching, h.tracker.Snapshot().Status())

	close(release)
	waitIdle(t, h)
	assert.Equal(t, 30, h.tracker.Snapshot().FetchedCount)
}

func TestTotalNeverBehindFetchedDuringWalk(t *testing.T) {
	src := newFakeSource(60)
	src.estimate = 5
	h := newHarness(t, src, Options{PageSize: 10})
	_, updates := h.tracker.Hub().Subscribe()

	require.NoError(t, h.fetcher.StartSaved())
	waitIdle(t, h)

	for {
		select {
		case p := <-updates:
			assert.GreaterOrEqual(t, p.TotalEstimate, p.FetchedCount)
		default:
			assert.Equal(t, 60, h.tracker.Snapshot().TotalEstimate)
			return
		}
	}
}

func TestEstimateTotal(t *testing.T) {
	tests := []struct {
		name                                 string
		prev, source, fetched, pageLen, want int
		more                                 bool
	}{
		{"source ahead", 0, 500, 100, 100, 500, true},
		{"source behind", 0, 50, 100, 100, 300, true},
		{"previous guess ahead", 400, 0, 200, 100, 400, true},
		{"guess caught up", 300, 0, 300, 100, 500, true},
		{"exhausted", 900, 900, 321, 21, 321, false},
		{"empty page", 0, 0, 0, 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, estimateTotal(tc.prev, tc.source, tc.fetched, tc.pageLen, tc.more))
		})
	}
}
