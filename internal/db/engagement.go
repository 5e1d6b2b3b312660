package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
)

// EngagementKind selects which engagement flag a toggle flips.
type EngagementKind string

const (
	EngagementLike EngagementKind = "like"
	EngagementSave EngagementKind = "save"
)

func (k EngagementKind) columns() (flag, counter string, err error) {
	switch k {
	case EngagementLike:
		return "liked", "likes_count", nil
	case EngagementSave:
		return "saved", "saves_count", nil
	}
	return "", "", fmt.Errorf("unknown engagement kind %q", k)
}

// ToggleEngagement flips a user's like or save on a product and adjusts the
// product counter by one, never below zero. Returns the new flag value.
func ToggleEngagement(ctx context.Context, db *sql.DB, userID int64, productID string, kind EngagementKind) (bool, error) {
	flag, counter, err := kind.columns()
	if err != nil {
		return false, errors.NewValidation("kind", err.Error())
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.NewStorageUnavailable(err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM products WHERE id = ?", productID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, errors.NewNotFound("product", productID)
	}
	if err != nil {
		return false, errors.NewStorageUnavailable(err)
	}

	var current int
	err = tx.QueryRowContext(ctx,
		"SELECT "+flag+" FROM engagements WHERE user_id = ? AND product_id = ?", userID, productID,
	).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return false, errors.NewStorageUnavailable(err)
	}
	next := current == 0

	_, err = tx.ExecContext(ctx, `
		INSERT INTO engagements (user_id, product_id, `+flag+`, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET
			`+flag+` = excluded.`+flag+`,
			updated_at = excluded.updated_at`,
		userID, productID, boolInt(next), time.Now().UnixNano(),
	)
	if err != nil {
		return false, errors.NewStorageUnavailable(err)
	}

	delta := -1
	if next {
		delta = 1
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE products SET "+counter+" = MAX(0, "+counter+" + ?) WHERE id = ?", delta, productID,
	)
	if err != nil {
		return false, errors.NewStorageUnavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return false, errors.NewStorageUnavailable(err)
	}
	return next, nil
}

// GetEngagement returns a user's engagement with a product; absent rows are all-false.
func GetEngagement(ctx context.Context, db *sql.DB, userID int64, productID string) (*catalog.Engagement, error) {
	e := &catalog.Engagement{UserID: userID, ProductID: productID}
	var liked, saved int
	err := db.QueryRowContext(ctx,
		"SELECT liked, saved FROM engagements WHERE user_id = ? AND product_id = ?", userID, productID,
	).Scan(&liked, &saved)
	if err == sql.ErrNoRows {
		return e, nil
	}
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	e.Liked = liked != 0
	e.Saved = saved != 0
	return e, nil
}

// CreateOrder stores an order and bumps the product's order counter atomically.
func CreateOrder(ctx context.Context, db *sql.DB, o *catalog.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if o.Status == "" {
		o.Status = catalog.OrderPending
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, seller_id, product_id, quantity, buyer_phone, buyer_location, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BuyerID, o.SellerID, o.ProductID, o.Quantity,
		toNullString(o.Phone), toNullString(o.Location), string(o.Status), o.CreatedAt.Unix(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return errors.NewNotFound("product", o.ProductID)
		}
		return errors.NewStorageUnavailable(err)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE products SET orders_count = orders_count + 1 WHERE id = ?", o.ProductID,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	if err := expectOneRow(result, "product", o.ProductID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

// OrderTotals summarizes the orders of one product.
type OrderTotals struct {
	Quantity int
	Pending  int
}

// GetOrderTotals sums ordered quantity and counts pending orders for a product.
func GetOrderTotals(ctx context.Context, db *sql.DB, productID string) (*OrderTotals, error) {
	var t OrderTotals
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0),
		       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM orders WHERE product_id = ?`, productID,
	).Scan(&t.Quantity, &t.Pending)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return &t, nil
}

// ListSavedProducts returns the active products a user has saved, most
// recently saved first.
func ListSavedProducts(ctx context.Context, db *sql.DB, userID int64, limit int) ([]*catalog.Product, error) {
	return queryProducts(ctx, db, `
		SELECT `+prefixedProductColumns("p")+`
		FROM products p
		JOIN engagements e ON e.product_id = p.id
		WHERE e.user_id = ? AND e.saved = 1 AND p.is_active = 1
		ORDER BY e.updated_at DESC
		LIMIT ?`, userID, limit)
}

// Buyer is one distinct customer of a seller.
type Buyer struct {
	UserID    int64
	Username  string
	FirstName string
	// Phone is the most recent phone given with an order
	Phone     string
	Orders    int
	LastOrder time.Time
}

// ListSellerBuyers returns the distinct buyers who ordered from a seller,
// most recent order first.
func ListSellerBuyers(ctx context.Context, db *sql.DB, sellerID int64, limit int) ([]*Buyer, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT o.buyer_id,
		       COALESCE(u.username, ''),
		       COALESCE(u.first_name, ''),
		       COALESCE((SELECT o2.buyer_phone FROM orders o2
		                 WHERE o2.seller_id = o.seller_id AND o2.buyer_id = o.buyer_id
		                   AND o2.buyer_phone IS NOT NULL
		                 ORDER BY o2.created_at DESC LIMIT 1), ''),
		       COUNT(*),
		       MAX(o.created_at)
		FROM orders o
		LEFT JOIN users u ON u.id = o.buyer_id
		WHERE o.seller_id = ?
		GROUP BY o.buyer_id
		ORDER BY MAX(o.created_at) DESC
		LIMIT ?`, sellerID, limit)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	defer rows.Close()

	var out []*Buyer
	for rows.Next() {
		var (
			b    Buyer
			last int64
		)
		if err := rows.Scan(&b.UserID, &b.Username, &b.FirstName, &b.Phone, &b.Orders, &last); err != nil {
			return nil, errors.NewStorageUnavailable(err)
		}
		b.LastOrder = time.Unix(last, 0)
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return out, nil
}

// ListOrders returns a product's orders, newest first.
func ListOrders(ctx context.Context, db *sql.DB, productID string) ([]*catalog.Order, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, buyer_id, seller_id, product_id, quantity,
		       COALESCE(buyer_phone, ''), COALESCE(buyer_location, ''), status, created_at
		FROM orders WHERE product_id = ?
		ORDER BY created_at DESC, rowid DESC`, productID)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	defer rows.Close()

	var out []*catalog.Order
	for rows.Next() {
		var (
			o       catalog.Order
			status  string
			created int64
		)
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.ProductID, &o.Quantity,
			&o.Phone, &o.Location, &status, &created); err != nil {
			return nil, errors.NewStorageUnavailable(err)
		}
		o.Status = catalog.OrderStatus(status)
		o.CreatedAt = time.Unix(created, 0)
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return out, nil
}
