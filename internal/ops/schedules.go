package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/config"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/schedule"
)

// CreateScheduleInput contains parameters for CreateSchedule.
type CreateScheduleInput struct {
	SellerID     int64
	ProductID    string
	IntervalDays int
	PostTime     string
	// Now is the creation time; zero means time.Now()
	Now time.Time
}

// CreateSchedule registers a recurring repost of a product to the seller's
// channel and computes its first fire time.
func CreateSchedule(ctx context.Context, database *sql.DB, cfg *config.Config, input CreateScheduleInput) (*catalog.Schedule, error) {
	if input.Now.IsZero() {
		input.Now = time.Now()
	}
	if input.IntervalDays <= 0 {
		return nil, errors.NewValidation("interval_days", "Interval must be at least 1 day.")
	}
	if _, _, err := schedule.ParsePostTime(input.PostTime); err != nil {
		return nil, err
	}

	seller, err := requireSeller(ctx, database, input.SellerID)
	if err != nil {
		return nil, err
	}
	if seller.Channel == "" {
		return nil, errors.NewValidation("channel", "You haven't set up a channel yet. Use /register to add your channel first.")
	}
	p, err := ownedProduct(ctx, database, input.SellerID, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, errors.NewValidation("product", "This product is no longer active.")
	}

	if !seller.HasPremium(input.Now) {
		n, err := db.CountActiveSchedules(ctx, database, seller.ID)
		if err != nil {
			return nil, err
		}
		if n >= cfg.MaxFreeSchedules {
			return nil, errors.NewCapacityExceeded("active schedules", cfg.MaxFreeSchedules)
		}
	}

	next := schedule.NextPostAt(input.Now, input.IntervalDays, input.PostTime)
	sc := &catalog.Schedule{
		ID:           catalog.NewID(),
		SellerID:     seller.ID,
		ProductID:    p.ID,
		Channel:      seller.Channel,
		IntervalDays: input.IntervalDays,
		PostTime:     input.PostTime,
		IsActive:     true,
		NextPostAt:   &next,
	}
	if err := db.CreateSchedule(ctx, database, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// ListSchedules returns a seller's schedules, optionally only active ones.
func ListSchedules(ctx context.Context, database *sql.DB, sellerID int64, activeOnly bool) ([]*catalog.Schedule, error) {
	all, err := db.ListSellerSchedules(ctx, database, sellerID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return all, nil
	}
	out := all[:0]
	for _, s := range all {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

// PauseSchedule stops a schedule from firing.
func PauseSchedule(ctx context.Context, database *sql.DB, sellerID int64, id string) error {
	if _, err := ownedSchedule(ctx, database, sellerID, id); err != nil {
		return err
	}
	return db.SetScheduleActive(ctx, database, id, false, nil)
}

// ResumeSchedule reactivates a schedule with a next fire time computed from now.
// Free sellers are held to the active schedule limit.
func ResumeSchedule(ctx context.Context, database *sql.DB, cfg *config.Config, sellerID int64, id string, now time.Time) (*catalog.Schedule, error) {
	sc, err := ownedSchedule(ctx, database, sellerID, id)
	if err != nil {
		return nil, err
	}
	if sc.IsActive {
		return sc, nil
	}
	seller, err := db.GetUser(ctx, database, sellerID)
	if err != nil {
		return nil, err
	}
	if !seller.HasPremium(now) {
		n, err := db.CountActiveSchedules(ctx, database, sellerID)
		if err != nil {
			return nil, err
		}
		if n >= cfg.MaxFreeSchedules {
			return nil, errors.NewCapacityExceeded("active schedules", cfg.MaxFreeSchedules)
		}
	}
	next := schedule.NextPostAt(now, sc.IntervalDays, sc.PostTime)
	if err := db.SetScheduleActive(ctx, database, id, true, &next); err != nil {
		return nil, err
	}
	sc.IsActive = true
	sc.NextPostAt = &next
	return sc, nil
}

// DeleteSchedule removes a schedule owned by sellerID.
func DeleteSchedule(ctx context.Context, database *sql.DB, sellerID int64, id string) error {
	if _, err := ownedSchedule(ctx, database, sellerID, id); err != nil {
		return err
	}
	return db.DeleteSchedule(ctx, database, id)
}

func ownedSchedule(ctx context.Context, database *sql.DB, sellerID int64, id string) (*catalog.Schedule, error) {
	sc, err := db.GetSchedule(ctx, database, id)
	if err != nil {
		return nil, err
	}
	if sc.SellerID != sellerID {
		return nil, errors.NewPermissionDenied("you don't own this schedule", "")
	}
	return sc, nil
}

// IntervalText renders "day" or "N days".
func IntervalText(days int) string {
	if days == 1 {
		return "day"
	}
	return strconv.Itoa(days) + " days"
}

// DescribeSchedule is the one-line summary used in listings.
func DescribeSchedule(sc *catalog.Schedule, productTitle string) string {
	line := fmt.Sprintf("%s → %s, every %s at %s", productTitle, sc.Channel, IntervalText(sc.IntervalDays), sc.PostTime)
	if !sc.IsActive {
		return line + " (paused)"
	}
	if sc.NextPostAt != nil {
		line += ", next " + sc.NextPostAt.Format("Jan 02 at 15:04")
	}
	return line
}
