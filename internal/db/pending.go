package db

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/hpungsan/storebot/internal/errors"
)

// PendingInput records that a user's next message answers a prompt, such as a
// new product title or the quantity of an order in progress.
type PendingInput struct {
	UserID    int64
	Action    string
	ProductID string
	Data      []byte
	UpdatedAt time.Time
}

// GetPendingInput loads a user's pending input.
func GetPendingInput(ctx context.Context, db *sql.DB, userID int64) (*PendingInput, error) {
	var (
		p         PendingInput
		productID sql.NullString
		data      string
		updatedAt int64
	)
	err := db.QueryRowContext(ctx,
		"SELECT user_id, action, product_id, data_json, updated_at FROM pending_inputs WHERE user_id = ?", userID,
	).Scan(&p.UserID, &p.Action, &productID, &data, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("pending input", strconv.FormatInt(userID, 10))
	}
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	p.ProductID = productID.String
	p.Data = []byte(data)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// PutPendingInput replaces a user's pending input.
func PutPendingInput(ctx context.Context, db *sql.DB, p *PendingInput) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	data := string(p.Data)
	if data == "" {
		data = "{}"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO pending_inputs (user_id, action, product_id, data_json, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			action = excluded.action,
			product_id = excluded.product_id,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at`,
		p.UserID, p.Action, toNullString(p.ProductID), data, p.UpdatedAt.Unix(),
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

// DeletePendingInput clears a user's pending input. Missing rows are not an error.
func DeletePendingInput(ctx context.Context, db *sql.DB, userID int64) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM pending_inputs WHERE user_id = ?", userID); err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}
