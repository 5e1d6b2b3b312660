// Package album groups photos that arrive as separate events but belong to
// one media group, and hands each group over once arrivals go quiet.
package album

import (
	"sync"
	"time"

	"github.com/hpungsan/storebot/internal/draft"
)

// Batch is one media group as recorded for a user's draft session.
type Batch struct {
	ID      string
	Owner   int64
	Session string
	Photos  []draft.Photo
}

// MergeFunc receives a drained batch. It runs on the timer goroutine (or the
// caller of Fire) and never under the aggregator lock.
type MergeFunc func(Batch)

type timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

type entry struct {
	batch Batch
	timer timer
}

// Aggregator buffers photos per batch id. Each batch owns exactly one timer;
// arrivals reset it, and the batch is merged once the window passes with no
// new photo.
type Aggregator struct {
	window  time.Duration
	onMerge MergeFunc

	// afterFunc is time.AfterFunc outside tests
	afterFunc func(time.Duration, func()) timer

	mu      sync.Mutex
	pending map[string]*entry
	closed  bool
}

// New creates an aggregator that merges batches after window of quiet.
func New(window time.Duration, onMerge MergeFunc) *Aggregator {
	return &Aggregator{
		window:  window,
		onMerge: onMerge,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		pending: make(map[string]*entry),
	}
}

// Record appends photo to batchID and reports whether this arrival armed a
// new timer. The owner and session of the first arrival stick to the batch.
// Photos recorded after Close are refused and Record returns false.
func (a *Aggregator) Record(batchID string, owner int64, session string, photo draft.Photo) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}

	if e, ok := a.pending[batchID]; ok {
		e.batch.Photos = append(e.batch.Photos, photo)
		e.timer.Reset(a.window)
		return false
	}

	e := &entry{batch: Batch{
		ID:      batchID,
		Owner:   owner,
		Session: session,
		Photos:  []draft.Photo{photo},
	}}
	e.timer = a.afterFunc(a.window, func() { a.expire(batchID, e) })
	a.pending[batchID] = e
	return true
}

// expire drains batchID only if it still holds the entry the timer was armed
// for. A late or repeated fire finds nothing and does nothing.
func (a *Aggregator) expire(batchID string, e *entry) {
	a.mu.Lock()
	if a.pending[batchID] != e {
		a.mu.Unlock()
		return
	}
	delete(a.pending, batchID)
	a.mu.Unlock()

	a.onMerge(e.batch)
}

// Fire drains batchID immediately and reports whether there was anything to
// merge. Firing an already drained batch is a no-op.
func (a *Aggregator) Fire(batchID string) bool {
	a.mu.Lock()
	e, ok := a.pending[batchID]
	if ok {
		delete(a.pending, batchID)
		e.timer.Stop()
	}
	a.mu.Unlock()

	if !ok {
		return false
	}
	a.onMerge(e.batch)
	return true
}

// FireOwner drains every batch recorded for owner, in no particular order,
// and returns how many photos were handed to the merge function.
func (a *Aggregator) FireOwner(owner int64) int {
	a.mu.Lock()
	var drained []Batch
	for id, e := range a.pending {
		if e.batch.Owner != owner {
			continue
		}
		delete(a.pending, id)
		e.timer.Stop()
		drained = append(drained, e.batch)
	}
	a.mu.Unlock()

	n := 0
	for _, b := range drained {
		n += len(b.Photos)
		a.onMerge(b)
	}
	return n
}

// Pending returns how many photos are buffered for batchID.
func (a *Aggregator) Pending(batchID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.pending[batchID]; ok {
		return len(e.batch.Photos)
	}
	return 0
}

// Len returns the number of batches waiting on their timer.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Close stops every timer and returns the batches that were never merged, so
// the caller can dispose of their files.
func (a *Aggregator) Close() []Batch {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	dropped := make([]Batch, 0, len(a.pending))
	for id, e := range a.pending {
		e.timer.Stop()
		dropped = append(dropped, e.batch)
		delete(a.pending, id)
	}
	return dropped
}
