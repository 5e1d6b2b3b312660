package db

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/hpungsan/storebot/internal/errors"
)

// DraftRow is the persisted form of an intake draft. The payload is opaque here.
type DraftRow struct {
	UserID    int64
	State     string
	Data      []byte
	UpdatedAt time.Time
}

// GetDraft loads a user's draft row.
func GetDraft(ctx context.Context, db *sql.DB, userID int64) (*DraftRow, error) {
	var (
		r         DraftRow
		data      string
		updatedAt int64
	)
	err := db.QueryRowContext(ctx,
		"SELECT user_id, state, data_json, updated_at FROM drafts WHERE user_id = ?", userID,
	).Scan(&r.UserID, &r.State, &data, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("draft", strconv.FormatInt(userID, 10))
	}
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	r.Data = []byte(data)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return &r, nil
}

// PutDraft replaces a user's draft row.
func PutDraft(ctx context.Context, db *sql.DB, r *DraftRow) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO drafts (user_id, state, data_json, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at`,
		r.UserID, r.State, string(r.Data), r.UpdatedAt.Unix(),
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

// DeleteDraft removes a user's draft row. Deleting a missing draft is not an error.
func DeleteDraft(ctx context.Context, db *sql.DB, userID int64) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM drafts WHERE user_id = ?", userID); err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

// PurgeDrafts deletes drafts not touched since before. Returns the number removed.
func PurgeDrafts(ctx context.Context, db *sql.DB, before time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM drafts WHERE updated_at < ?", before.Unix())
	if err != nil {
		return 0, errors.NewStorageUnavailable(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorageUnavailable(err)
	}
	return n, nil
}
