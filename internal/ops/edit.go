package ops

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/intake"
	"github.com/hpungsan/storebot/internal/watermark"
)

// Editable product fields accepted by EditProduct.
const (
	EditTitle       = "title"
	EditDescription = "description"
	EditPrice       = "price"
	EditCategory    = "category"
)

// MaxCategoryLen bounds an edited category name.
const MaxCategoryLen = 50

// Stamper watermarks an image. It returns path unchanged when stamping fails.
type Stamper interface {
	Stamp(path, label, outputPath string) string
}

// SellerProduct loads a product for its owner's edit screens.
func SellerProduct(ctx context.Context, database *sql.DB, sellerID int64, productID string) (*catalog.Product, error) {
	return ownedProduct(ctx, database, sellerID, productID)
}

// EditProductInput contains parameters for EditProduct.
type EditProductInput struct {
	SellerID  int64
	ProductID string
	Field     string
	Value     string
}

// EditProduct replaces one text field or the price of a product the seller owns.
func EditProduct(ctx context.Context, database *sql.DB, input EditProductInput) (*catalog.Product, error) {
	value := strings.TrimSpace(input.Value)
	if value == "" {
		return nil, errors.NewValidation(input.Field, "Please send a value, or /cancel to stop.")
	}
	if _, err := ownedProduct(ctx, database, input.SellerID, input.ProductID); err != nil {
		return nil, err
	}

	var err error
	switch input.Field {
	case EditTitle:
		if verr := intake.ValidateTitle(value); verr != nil {
			return nil, verr
		}
		err = db.UpdateProductText(ctx, database, input.ProductID, db.FieldTitle, value)
	case EditDescription:
		if verr := intake.ValidateDescription(value, true); verr != nil {
			return nil, verr
		}
		err = db.UpdateProductText(ctx, database, input.ProductID, db.FieldDescription, value)
	case EditCategory:
		if utf8.RuneCountInString(value) > MaxCategoryLen {
			return nil, errors.NewValidation("category", "Category is too long (max 50 characters).")
		}
		err = db.UpdateProductText(ctx, database, input.ProductID, db.FieldCategory, strings.ToLower(value))
	case EditPrice:
		price, perr := intake.ParsePrice(value)
		if perr != nil {
			return nil, perr
		}
		err = db.UpdateProductPrice(ctx, database, input.ProductID, price)
	default:
		return nil, errors.NewValidation("field", "unknown field "+input.Field)
	}
	if err != nil {
		return nil, err
	}
	return db.GetProduct(ctx, database, input.ProductID)
}

// ReplaceImageInput contains parameters for ReplaceProductImage.
type ReplaceImageInput struct {
	SellerID  int64
	ProductID string
	// Path is the freshly downloaded original
	Path        string
	BotUsername string
}

// ReplaceProductImage stamps a new main photo with the seller's label, points
// the product at it and removes the previous main image files. The new file
// is removed again when the product cannot be updated.
func ReplaceProductImage(ctx context.Context, database *sql.DB, stamper Stamper, input ReplaceImageInput) (*catalog.Product, error) {
	p, err := ownedProduct(ctx, database, input.SellerID, input.ProductID)
	if err != nil {
		removeFiles(input.Path)
		return nil, err
	}
	seller, err := db.GetUser(ctx, database, input.SellerID)
	if err != nil {
		removeFiles(input.Path)
		return nil, err
	}

	name := seller.StoreName
	if name == "" {
		name = seller.Username
	}
	stamped := input.Path
	if stamper != nil {
		stamped = stamper.Stamp(input.Path, watermark.Label(name, input.BotUsername), watermark.StampedPath(input.Path))
	}

	if err := db.SetProductImage(ctx, database, p.ID, stamped, input.Path); err != nil {
		removeFiles(stamped, input.Path)
		return nil, err
	}
	removeFiles(p.ImagePath, p.OriginalImagePath)
	return db.GetProduct(ctx, database, p.ID)
}

// DeleteProduct removes a product the seller owns along with its image files.
// Engagements, orders, schedules and channel post records are removed with it.
func DeleteProduct(ctx context.Context, database *sql.DB, sellerID int64, productID string) (*catalog.Product, error) {
	p, err := ownedProduct(ctx, database, sellerID, productID)
	if err != nil {
		return nil, err
	}
	if err := db.DeleteProduct(ctx, database, p.ID); err != nil {
		return nil, err
	}
	removeFiles(append([]string{p.ImagePath, p.OriginalImagePath}, p.Fields.Gallery...)...)
	return p, nil
}

func removeFiles(paths ...string) {
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		_ = os.Remove(path)
	}
}
