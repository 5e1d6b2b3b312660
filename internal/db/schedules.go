package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
)

const scheduleColumns = `
	id, seller_id, product_id, channel, interval_days, post_time, is_active,
	last_posted_at, next_post_at, created_at, updated_at
`

// CreateSchedule stores a new schedule.
func CreateSchedule(ctx context.Context, db *sql.DB, s *catalog.Schedule) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO schedules (
			id, seller_id, product_id, channel, interval_days, post_time, is_active,
			last_posted_at, next_post_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SellerID, s.ProductID, s.Channel, s.IntervalDays, s.PostTime, boolInt(s.IsActive),
		toNullUnix(s.LastPostedAt), toNullUnix(s.NextPostAt), now.Unix(), now.Unix(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return errors.NewNotFound("product", s.ProductID)
		}
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

// GetSchedule retrieves a schedule by id.
func GetSchedule(ctx context.Context, db *sql.DB, id string) (*catalog.Schedule, error) {
	row := db.QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", id)
	s, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("schedule", id)
	}
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return s, nil
}

// ListActiveSchedules returns active schedules ordered by next post time.
// Schedules without a next post time sort last.
func ListActiveSchedules(ctx context.Context, db *sql.DB) ([]*catalog.Schedule, error) {
	return querySchedules(ctx, db,
		"SELECT "+scheduleColumns+" FROM schedules WHERE is_active = 1 ORDER BY next_post_at IS NULL, next_post_at, id",
	)
}

// ListSellerSchedules returns all schedules of a seller, newest first.
func ListSellerSchedules(ctx context.Context, db *sql.DB, sellerID int64) ([]*catalog.Schedule, error) {
	return querySchedules(ctx, db,
		"SELECT "+scheduleColumns+" FROM schedules WHERE seller_id = ? ORDER BY created_at DESC, id DESC", sellerID,
	)
}

// CountActiveSchedules counts a seller's active schedules.
func CountActiveSchedules(ctx context.Context, db *sql.DB, sellerID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schedules WHERE seller_id = ? AND is_active = 1", sellerID,
	).Scan(&n)
	if err != nil {
		return 0, errors.NewStorageUnavailable(err)
	}
	return n, nil
}

// UpdateSchedulePostTime records a completed post and the next fire time.
func UpdateSchedulePostTime(ctx context.Context, db *sql.DB, id string, lastPostedAt, nextPostAt time.Time) error {
	result, err := db.ExecContext(ctx,
		"UPDATE schedules SET last_posted_at = ?, next_post_at = ?, updated_at = ? WHERE id = ?",
		lastPostedAt.Unix(), nextPostAt.Unix(), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "schedule", id)
}

// SetScheduleActive pauses or resumes a schedule. nextPostAt is only written when non-nil.
func SetScheduleActive(ctx context.Context, db *sql.DB, id string, active bool, nextPostAt *time.Time) error {
	query := "UPDATE schedules SET is_active = ?, updated_at = ?"
	args := []any{boolInt(active), time.Now().Unix()}
	if nextPostAt != nil {
		query += ", next_post_at = ?"
		args = append(args, nextPostAt.Unix())
	}
	query += " WHERE id = ?"
	args = append(args, id)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "schedule", id)
}

// DeleteSchedule removes a schedule.
func DeleteSchedule(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "schedule", id)
}

func querySchedules(ctx context.Context, db *sql.DB, query string, args ...any) ([]*catalog.Schedule, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	defer rows.Close()

	var out []*catalog.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.NewStorageUnavailable(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return out, nil
}

func scanSchedule(row interface{ Scan(...any) error }) (*catalog.Schedule, error) {
	var (
		s          catalog.Schedule
		isActive   int
		lastPosted sql.NullInt64
		nextPost   sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(
		&s.ID, &s.SellerID, &s.ProductID, &s.Channel, &s.IntervalDays, &s.PostTime, &isActive,
		&lastPosted, &nextPost, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.IsActive = isActive != 0
	s.LastPostedAt = fromNullUnix(lastPosted)
	s.NextPostAt = fromNullUnix(nextPost)
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

// RecordChannelPost stores the message id of a channel post.
func RecordChannelPost(ctx context.Context, db *sql.DB, cp *catalog.ChannelPost) error {
	if cp.PostedAt.IsZero() {
		cp.PostedAt = time.Now()
	}
	result, err := db.ExecContext(ctx,
		"INSERT INTO channel_posts (product_id, channel, message_id, posted_at) VALUES (?, ?, ?, ?)",
		cp.ProductID, cp.Channel, cp.MessageID, cp.PostedAt.Unix(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return errors.NewNotFound("product", cp.ProductID)
		}
		return errors.NewStorageUnavailable(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	cp.ID = id
	return nil
}

// ListChannelPosts returns every recorded post of a product, oldest first.
func ListChannelPosts(ctx context.Context, db *sql.DB, productID string) ([]*catalog.ChannelPost, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, product_id, channel, message_id, posted_at FROM channel_posts WHERE product_id = ? ORDER BY id",
		productID,
	)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	defer rows.Close()

	var out []*catalog.ChannelPost
	for rows.Next() {
		var (
			cp       catalog.ChannelPost
			postedAt int64
		)
		if err := rows.Scan(&cp.ID, &cp.ProductID, &cp.Channel, &cp.MessageID, &postedAt); err != nil {
			return nil, errors.NewStorageUnavailable(err)
		}
		cp.PostedAt = time.Unix(postedAt, 0)
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return out, nil
}
