package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
)

const productColumns = `
	id, seller_id, title, description, price, category, product_type,
	category_fields, image_path, original_image_path, is_active, is_public,
	likes_count, saves_count, orders_count, views_count,
	like_enabled, save_enabled, order_enabled,
	custom_button_text, custom_button_url, created_at, updated_at
`

// CreateProduct stores a new product. The write is a single statement, so a
// failure leaves nothing behind.
func CreateProduct(ctx context.Context, db *sql.DB, p *catalog.Product) error {
	var fieldsJSON sql.NullString
	if !p.Fields.IsZero() {
		data, err := json.Marshal(p.Fields)
		if err != nil {
			return errors.NewInternal(err)
		}
		fieldsJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO products (
			id, seller_id, title, description, price, category, product_type,
			category_fields, image_path, original_image_path, is_active, is_public,
			likes_count, saves_count, orders_count, views_count,
			like_enabled, save_enabled, order_enabled,
			custom_button_text, custom_button_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		p.ID, p.SellerID, toNullString(p.Title), toNullString(p.Description),
		toNullFloat(p.Price), toNullString(p.Category), string(p.Type),
		fieldsJSON, p.ImagePath, toNullString(p.OriginalImagePath),
		boolInt(p.IsActive), boolInt(p.IsPublic),
		p.LikesCount, p.SavesCount, p.OrdersCount, p.ViewsCount,
		boolInt(p.LikeEnabled), boolInt(p.SaveEnabled), boolInt(p.OrderEnabled),
		toNullString(p.CustomButtonText), toNullString(p.CustomButtonURL),
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return errors.NewNotFound("user", strconv.FormatInt(p.SellerID, 10))
		}
		return errors.NewStorageUnavailable(err)
	}
	return nil
}

// GetProduct retrieves a product by id.
func GetProduct(ctx context.Context, db *sql.DB, id string) (*catalog.Product, error) {
	row := db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("product", id)
	}
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return p, nil
}

// ListSellerProducts returns a seller's products, newest first.
func ListSellerProducts(ctx context.Context, db *sql.DB, sellerID int64, activeOnly bool) ([]*catalog.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE seller_id = ?"
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY created_at DESC, id DESC"
	return queryProducts(ctx, db, query, sellerID)
}

// ListPublicProducts returns the newest public, active products across all sellers.
func ListPublicProducts(ctx context.Context, db *sql.DB, limit int) ([]*catalog.Product, error) {
	return queryProducts(ctx, db,
		"SELECT "+productColumns+` FROM products
		WHERE is_active = 1 AND is_public = 1
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// SearchProducts matches public, active products whose title, description or
// category contains query, case-insensitively. Newest first.
func SearchProducts(ctx context.Context, db *sql.DB, query string, limit int) ([]*catalog.Product, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return queryProducts(ctx, db,
		"SELECT "+productColumns+` FROM products
		WHERE is_active = 1 AND is_public = 1
		  AND (LOWER(COALESCE(title, '')) LIKE ? ESCAPE '\'
		    OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\'
		    OR LOWER(COALESCE(category, '')) LIKE ? ESCAPE '\')
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		pattern, pattern, pattern, limit)
}

// ProductField names a seller-editable text column.
type ProductField string

const (
	FieldTitle       ProductField = "title"
	FieldDescription ProductField = "description"
	FieldCategory    ProductField = "category"
)

// UpdateProductText replaces one text column of a product.
func UpdateProductText(ctx context.Context, db *sql.DB, id string, field ProductField, value string) error {
	switch field {
	case FieldTitle, FieldDescription, FieldCategory:
	default:
		return errors.NewValidation("field", "unknown product field "+string(field))
	}
	result, err := db.ExecContext(ctx,
		"UPDATE products SET "+string(field)+" = ?, updated_at = ? WHERE id = ?",
		toNullString(value), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

// UpdateProductPrice replaces a product's price.
func UpdateProductPrice(ctx context.Context, db *sql.DB, id string, price float64) error {
	result, err := db.ExecContext(ctx,
		"UPDATE products SET price = ?, updated_at = ? WHERE id = ?",
		price, time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

// SetProductImage points a product at a new main image and its unstamped original.
func SetProductImage(ctx context.Context, db *sql.DB, id, imagePath, originalPath string) error {
	result, err := db.ExecContext(ctx,
		"UPDATE products SET image_path = ?, original_image_path = ?, updated_at = ? WHERE id = ?",
		imagePath, toNullString(originalPath), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

// DeleteProduct removes a product. Engagements, orders, schedules and channel
// posts go with it through ON DELETE CASCADE.
func DeleteProduct(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

// CountActiveProducts counts a seller's active products.
func CountActiveProducts(ctx context.Context, db *sql.DB, sellerID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM products WHERE seller_id = ? AND is_active = 1", sellerID,
	).Scan(&n)
	if err != nil {
		return 0, errors.NewStorageUnavailable(err)
	}
	return n, nil
}

// SetProductActive activates or deactivates a product.
func SetProductActive(ctx context.Context, db *sql.DB, id string, active bool) error {
	result, err := db.ExecContext(ctx,
		"UPDATE products SET is_active = ?, updated_at = ? WHERE id = ?",
		boolInt(active), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

// SetButtonFlags stores the like/save/order button switches.
func SetButtonFlags(ctx context.Context, db *sql.DB, id string, like, save, order bool) error {
	result, err := db.ExecContext(ctx,
		"UPDATE products SET like_enabled = ?, save_enabled = ?, order_enabled = ?, updated_at = ? WHERE id = ?",
		boolInt(like), boolInt(save), boolInt(order), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

// SetCustomButton stores the custom link button. Empty text and url clear it.
func SetCustomButton(ctx context.Context, db *sql.DB, id, text, url string) error {
	result, err := db.ExecContext(ctx,
		"UPDATE products SET custom_button_text = ?, custom_button_url = ?, updated_at = ? WHERE id = ?",
		toNullString(text), toNullString(url), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

// IncrementViews bumps the view counter.
func IncrementViews(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx,
		"UPDATE products SET views_count = views_count + 1 WHERE id = ?", id,
	)
	if err != nil {
		return errors.NewStorageUnavailable(err)
	}
	return expectOneRow(result, "product", id)
}

func queryProducts(ctx context.Context, db *sql.DB, query string, args ...any) ([]*catalog.Product, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	defer rows.Close()

	var products []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.NewStorageUnavailable(err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailable(err)
	}
	return products, nil
}

// prefixedProductColumns qualifies productColumns with a table alias for joins.
func prefixedProductColumns(alias string) string {
	cols := strings.Split(productColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

func scanProduct(row interface{ Scan(...any) error }) (*catalog.Product, error) {
	var (
		p             catalog.Product
		title         sql.NullString
		description   sql.NullString
		price         sql.NullFloat64
		category      sql.NullString
		productType   string
		fieldsJSON    sql.NullString
		originalImage sql.NullString
		isActive      int
		isPublic      int
		likeEnabled   int
		saveEnabled   int
		orderEnabled  int
		customBtnText sql.NullString
		customBtnURL  sql.NullString
		createdAt     int64
		updatedAt     int64
	)

	err := row.Scan(
		&p.ID, &p.SellerID, &title, &description, &price, &category, &productType,
		&fieldsJSON, &p.ImagePath, &originalImage, &isActive, &isPublic,
		&p.LikesCount, &p.SavesCount, &p.OrdersCount, &p.ViewsCount,
		&likeEnabled, &saveEnabled, &orderEnabled,
		&customBtnText, &customBtnURL, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Title = title.String
	p.Description = description.String
	p.Price = fromNullFloat(price)
	p.Category = category.String
	p.Type = catalog.ProductType(productType)
	p.OriginalImagePath = originalImage.String
	p.IsActive = isActive != 0
	p.IsPublic = isPublic != 0
	p.LikeEnabled = likeEnabled != 0
	p.SaveEnabled = saveEnabled != 0
	p.OrderEnabled = orderEnabled != 0
	p.CustomButtonText = customBtnText.String
	p.CustomButtonURL = customBtnURL.String
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &p.Fields); err != nil {
			return nil, err
		}
	}

	return &p, nil
}
