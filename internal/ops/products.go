package ops

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/render"
)

// Button names accepted by ToggleButton.
const (
	ButtonLike  = "like"
	ButtonSave  = "save"
	ButtonOrder = "order"
)

// MaxButtonTextLen bounds custom button labels.
const MaxButtonTextLen = 100

// ListProductsInput contains parameters for ListProducts.
type ListProductsInput struct {
	SellerID   int64
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ListProductsOutput is one page of a seller's products, newest first.
type ListProductsOutput struct {
	Items   []*catalog.Product
	Total   int
	HasMore bool
}

// ListProducts pages through a seller's products.
func ListProducts(ctx context.Context, database *sql.DB, input ListProductsInput) (*ListProductsOutput, error) {
	all, err := db.ListSellerProducts(ctx, database, input.SellerID, input.ActiveOnly)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(input.Limit)
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	out := &ListProductsOutput{Total: len(all)}
	if offset >= len(all) {
		return out, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out.Items = all[offset:end]
	out.HasMore = end < len(all)
	return out, nil
}

// ToggleButton flips one of the like/save/order buttons of a seller's product.
func ToggleButton(ctx context.Context, database *sql.DB, sellerID int64, productID, button string) (*catalog.Product, error) {
	p, err := ownedProduct(ctx, database, sellerID, productID)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(button)) {
	case ButtonLike:
		p.LikeEnabled = !p.LikeEnabled
	case ButtonSave:
		p.SaveEnabled = !p.SaveEnabled
	case ButtonOrder:
		p.OrderEnabled = !p.OrderEnabled
	default:
		return nil, errors.NewValidation("button", "Button must be one of: like, save, order.")
	}
	if err := db.SetButtonFlags(ctx, database, p.ID, p.LikeEnabled, p.SaveEnabled, p.OrderEnabled); err != nil {
		return nil, err
	}
	return p, nil
}

// SetCustomButton attaches a link button to a seller's product.
func SetCustomButton(ctx context.Context, database *sql.DB, sellerID int64, productID, text, link string) (*catalog.Product, error) {
	text = strings.TrimSpace(text)
	link = strings.TrimSpace(link)
	if text == "" || len([]rune(text)) > MaxButtonTextLen {
		return nil, errors.NewValidation("button_text", "Button text must be 1 to 100 characters.")
	}
	if !validButtonURL(link) {
		return nil, errors.NewValidation("button_url", "Invalid URL format. Please include http:// or https://")
	}

	p, err := ownedProduct(ctx, database, sellerID, productID)
	if err != nil {
		return nil, err
	}
	if err := db.SetCustomButton(ctx, database, p.ID, text, link); err != nil {
		return nil, err
	}
	p.CustomButtonText, p.CustomButtonURL = text, link
	return p, nil
}

// ClearCustomButton removes the link button of a seller's product.
func ClearCustomButton(ctx context.Context, database *sql.DB, sellerID int64, productID string) (*catalog.Product, error) {
	p, err := ownedProduct(ctx, database, sellerID, productID)
	if err != nil {
		return nil, err
	}
	if err := db.SetCustomButton(ctx, database, p.ID, "", ""); err != nil {
		return nil, err
	}
	p.CustomButtonText, p.CustomButtonURL = "", ""
	return p, nil
}

func validButtonURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "tg":
		return u.Host != "" || u.Opaque != ""
	case "http", "https":
		return validate.Var(link, "required,url") == nil && u.Host != ""
	}
	return false
}

// StatsOutput is a product's owner statistics.
type StatsOutput struct {
	Product       *catalog.Product
	ItemsSold     int
	PendingOrders int
	Text          string
}

// ProductStats gathers counters and order totals for a seller's product.
func ProductStats(ctx context.Context, database *sql.DB, sellerID int64, productID string) (*StatsOutput, error) {
	p, err := ownedProduct(ctx, database, sellerID, productID)
	if err != nil {
		return nil, err
	}
	totals, err := db.GetOrderTotals(ctx, database, productID)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{
		Product:       p,
		ItemsSold:     totals.Quantity,
		PendingOrders: totals.Pending,
		Text:          render.StatsText(p, totals.Quantity, totals.Pending),
	}, nil
}
