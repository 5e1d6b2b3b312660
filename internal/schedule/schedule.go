// Package schedule reposts products to seller channels on a recurring
// interval.
package schedule

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
)

// DefaultPostTime is used when a stored post time cannot be parsed.
const DefaultPostTime = "09:00"

// ParsePostTime parses a 24h "HH:MM" time of day.
func ParsePostTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, 0, errors.NewValidation("post_time", "Time must be HH:MM (24h), e.g. 09:00 or 18:30.")
	}
	hour, herr := strconv.Atoi(parts[0])
	minute, merr := strconv.Atoi(parts[1])
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errors.NewValidation("post_time", "Time must be HH:MM (24h), e.g. 09:00 or 18:30.")
	}
	return hour, minute, nil
}

// NextPostAt computes the next fire time: today's occurrence of postTime,
// rolled to tomorrow unless strictly in the future, plus intervalDays.
// An unparseable postTime falls back to 09:00.
func NextPostAt(now time.Time, intervalDays int, postTime string) time.Time {
	hour, minute, err := ParsePostTime(postTime)
	if err != nil {
		hour, minute = 9, 0
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.AddDate(0, 0, intervalDays)
}

// Storage is what a sweep reads and advances.
type Storage interface {
	ListActiveSchedules(ctx context.Context) ([]*catalog.Schedule, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	GetUser(ctx context.Context, id int64) (*catalog.User, error)
	UpdateSchedulePostTime(ctx context.Context, id string, lastPostedAt, nextPostAt time.Time) error
}

// Dispatcher posts one product to one channel and records the post.
type Dispatcher interface {
	Dispatch(ctx context.Context, product *catalog.Product, seller *catalog.User, channel string, withGallery bool) (*catalog.ChannelPost, error)
}

// SweepResult counts what one sweep did.
// NotAdvanced counts posts that went out but whose schedule kept its old
// NextPostAt; they are included in Posted and will be posted again.
type SweepResult struct {
	Due         int
	Posted      int
	Skipped     int
	Failed      int
	NotAdvanced int
}

func (r SweepResult) String() string {
	return fmt.Sprintf("due=%d posted=%d skipped=%d failed=%d not_advanced=%d", r.Due, r.Posted, r.Skipped, r.Failed, r.NotAdvanced)
}

// advanceError reports a post that was sent but could not be recorded on
// its schedule.
type advanceError struct {
	messageID int
	err       error
}

func (e *advanceError) Error() string {
	return fmt.Sprintf("advance schedule after message %d: %v", e.messageID, e.err)
}

func (e *advanceError) Unwrap() error { return e.err }

// Scheduler evaluates active schedules on a fixed cadence.
type Scheduler struct {
	storage    Storage
	dispatcher Dispatcher
	interval   time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// New creates a Scheduler sweeping every interval (5 minutes if zero).
func New(s Storage, d Dispatcher, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		storage:    s,
		dispatcher: d,
		interval:   interval,
		log:        log.With("component", "scheduler"),
		now:        time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx, s.now()); err != nil {
			s.log.Error("sweep", "err", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep posts every active schedule due at now, one at a time. A failure
// is isolated to its schedule and leaves NextPostAt untouched so the next
// sweep retries it.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	schedules, err := s.storage.ListActiveSchedules(ctx)
	if err != nil {
		return res, err
	}

	for _, sc := range schedules {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if sc.NextPostAt == nil || sc.NextPostAt.After(now) {
			continue
		}
		res.Due++

		err := s.post(ctx, sc, now)
		var adv *advanceError
		switch {
		case err == nil:
			res.Posted++
		case stderrors.As(err, &adv):
			res.Posted++
			res.NotAdvanced++
			s.log.Error("scheduled post sent but schedule not advanced", "schedule_id", sc.ID, "product_id", sc.ProductID, "channel", sc.Channel, "message_id", adv.messageID, "err", adv.err)
		case errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrValidation):
			res.Skipped++
			s.log.Info("schedule skipped", "schedule_id", sc.ID, "product_id", sc.ProductID, "reason", err)
		default:
			res.Failed++
			s.log.Error("scheduled post failed", "schedule_id", sc.ID, "product_id", sc.ProductID, "channel", sc.Channel, "err", err)
		}
	}

	if res.Due > 0 {
		s.log.Info("sweep finished", "due", res.Due, "posted", res.Posted, "skipped", res.Skipped, "failed", res.Failed, "not_advanced", res.NotAdvanced)
	}
	return res, nil
}

func (s *Scheduler) post(ctx context.Context, sc *catalog.Schedule, now time.Time) error {
	product, err := s.storage.GetProduct(ctx, sc.ProductID)
	if err != nil {
		return err
	}
	if !product.IsActive {
		return errors.NewValidation("product", "product is inactive")
	}
	seller, err := s.storage.GetUser(ctx, sc.SellerID)
	if err != nil {
		return err
	}

	post, err := s.dispatcher.Dispatch(ctx, product, seller, sc.Channel, false)
	if err != nil {
		return err
	}

	next := NextPostAt(now, sc.IntervalDays, sc.PostTime)
	if err := s.storage.UpdateSchedulePostTime(ctx, sc.ID, now, next); err != nil {
		return &advanceError{messageID: post.MessageID, err: err}
	}
	s.log.Info("scheduled post", "schedule_id", sc.ID, "product_id", product.ID, "channel", sc.Channel, "message_id", post.MessageID, "next_post_at", next)
	return nil
}
