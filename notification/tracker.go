// Package notification tracks the progress of the background walk and
// broadcasts it to live subscribers.
package notification

import (
	"sync"
	"sync/atomic"

	"github.com/jyothri/inboxsweep/model"
)

// Tracker is the process-wide FetchProgress. Reads are lock-free; writes are
// serialized and each one replaces the whole record.
type Tracker struct {
	progress atomic.Pointer[model.FetchProgress]
	running  atomic.Bool
	pause    atomic.Bool

	writeMu sync.Mutex
	hub     *Hub
}

func NewTracker(hub *Hub) *Tracker {
	t := &Tracker{hub: hub}
	t.progress.Store(&model.FetchProgress{})
	return t
}

// Snapshot returns a consistent copy of the current progress.
func (t *Tracker) Snapshot() model.FetchProgress {
	return *t.progress.Load()
}

// Update applies fn to a copy of the current progress, publishes the result
// and returns it.
func (t *Tracker) Update(fn func(p *model.FetchProgress)) model.FetchProgress {
	t.writeMu.Lock()
	next := *t.progress.Load()
	fn(&next)
	t.progress.Store(&next)
	t.writeMu.Unlock()

	if t.hub != nil {
		t.hub.Publish(next)
	}
	return next
}

// TryStart claims the single walk slot. It returns false if a walk already
// holds it.
func (t *Tracker) TryStart() bool {
	return t.running.CompareAndSwap(false, true)
}

// Finish releases the walk slot.
func (t *Tracker) Finish() {
	t.running.Store(false)
}

func (t *Tracker) Running() bool {
	return t.running.Load()
}

func (t *Tracker) RequestPause()        { t.pause.Store(true) }
func (t *Tracker) ClearPause()          { t.pause.Store(false) }
func (t *Tracker) PauseRequested() bool { return t.pause.Load() }

func (t *Tracker) Hub() *Hub {
	return t.hub
}
