package db

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
)

const userColumns = `
	id, username, first_name, last_name, role, store_name, phone,
	channel_username, is_premium, premium_until, created_at, updated_at
`

// UpsertUser records a platform account. Existing rows keep their role and
// seller profile; only the platform names are refreshed.
func UpsertUser(ctx context.Context, db *sql.DB, u *catalog.User) error {
	now := time.Now()
	if u.Role == "" {
		u.Role = catalog.RoleBuyer
	}

	query := `
		INSERT INTO users (
			id, username, first_name, last_name, role, store_name, phone,
			channel_username, is_premium, premium_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		u.ID, toNullString(u.Username), toNullString(u.FirstName), toNullString(u.LastName),
		string(u.Role), toNullString(u.StoreName), toNullString(u.Phone),
		toNullString(u.Channel), boolInt(u.IsPremium), toNullUnix(u.PremiumUntil),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

// GetUser retrieves a user by platform id.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*catalog.User, error) {
	row := db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return u, nil
}

// UpdateSellerProfile promotes a user to seller and stores the storefront details.
func UpdateSellerProfile(ctx context.Context, db *sql.DB, id int64, storeName, phone, channel string) error {
	query := `
		UPDATE users
		SET role = ?, store_name = ?, phone = ?, channel_username = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := db.ExecContext(ctx, query,
		string(catalog.RoleSeller), storeName, phone, channel, time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "user", strconv.FormatInt(id, 10))
}

// SetPremium grants or revokes premium. A nil until means no expiry.
func SetPremium(ctx context.Context, db *sql.DB, id int64, premium bool, until *time.Time) error {
	result, err := db.ExecContext(ctx,
		"UPDATE users SET is_premium = ?, premium_until = ?, updated_at = ? WHERE id = ?",
		boolInt(premium), toNullUnix(until), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "user", strconv.FormatInt(id, 10))
}

func scanUser(row interface{ Scan(...any) error }) (*catalog.User, error) {
	var (
		u            catalog.User
		username     sql.NullString
		firstName    sql.NullString
		lastName     sql.NullString
		role         string
		storeName    sql.NullString
		phone        sql.NullString
		channel      sql.NullString
		isPremium    int
		premiumUntil sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)

	err := row.Scan(
		&u.ID, &username, &firstName, &lastName, &role, &storeName, &phone,
		&channel, &isPremium, &premiumUntil, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Username = username.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Role = catalog.Role(role)
	u.StoreName = storeName.String
	u.Phone = phone.String
	u.Channel = channel.String
	u.IsPremium = isPremium != 0
	u.PremiumUntil = fromNullUnix(premiumUntil)
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)

	return &u, nil
}

// expectOneRow turns a zero-row update into NotFound.
func expectOneRow(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}
