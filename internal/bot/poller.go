package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/storebot/internal/telegram"
)

// Handler processes one update.
type Handler interface {
	HandleUpdate(ctx context.Context, u telegram.Update)
}

// Dispatcher runs updates concurrently with a bound on in-flight handlers.
// Updates from the same user are handled one at a time in arrival order;
// different users proceed in parallel.
type Dispatcher struct {
	handler Handler
	group   errgroup.Group

	mu      sync.Mutex
	backlog map[int64][]queued // present while the user's chain is running
}

type queued struct {
	ctx context.Context
	u   telegram.Update
}

// NewDispatcher creates a Dispatcher running at most limit handlers at once.
func NewDispatcher(h Handler, limit int) *Dispatcher {
	d := &Dispatcher{handler: h, backlog: make(map[int64][]queued)}
	if limit > 0 {
		d.group.SetLimit(limit)
	}
	return d
}

// Submit queues an update, blocking while the dispatcher is at its limit.
// An update for a user whose chain is already running joins that chain
// without blocking.
func (d *Dispatcher) Submit(ctx context.Context, u telegram.Update) {
	item := queued{ctx: ctx, u: u}
	from := u.Sender()
	if from == nil {
		d.group.Go(func() error {
			d.handler.HandleUpdate(ctx, u)
			return nil
		})
		return
	}

	d.mu.Lock()
	if pending, running := d.backlog[from.ID]; running {
		d.backlog[from.ID] = append(pending, item)
		d.mu.Unlock()
		return
	}
	d.backlog[from.ID] = nil
	d.mu.Unlock()

	d.group.Go(func() error {
		d.chain(from.ID, item)
		return nil
	})
}

// chain handles item and then the user's backlog until it is empty.
func (d *Dispatcher) chain(userID int64, item queued) {
	for {
		d.handler.HandleUpdate(item.ctx, item.u)

		d.mu.Lock()
		pending := d.backlog[userID]
		if len(pending) == 0 {
			delete(d.backlog, userID)
			d.mu.Unlock()
			return
		}
		item = pending[0]
		d.backlog[userID] = pending[1:]
		d.mu.Unlock()
	}
}

// Wait blocks until every submitted update is handled.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
}

// Updater is the long-poll side of the platform client.
type Updater interface {
	GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]telegram.Update, error)
}

// Poller feeds long-polled updates into a Dispatcher.
type Poller struct {
	updater  Updater
	dispatch *Dispatcher
	timeout  time.Duration
	backoff  time.Duration
	log      *slog.Logger
}

// NewPoller creates a Poller with a 50s long-poll timeout.
func NewPoller(u Updater, d *Dispatcher, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		updater:  u,
		dispatch: d,
		timeout:  50 * time.Second,
		backoff:  3 * time.Second,
		log:      log.With("component", "poller"),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	defer p.dispatch.Wait()
	p.log.Info("polling for updates")

	offset := 0
	for {
		updates, err := p.updater.GetUpdates(ctx, offset, p.timeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.log.Warn("get updates", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.dispatch.Submit(ctx, u)
		}
	}
}
