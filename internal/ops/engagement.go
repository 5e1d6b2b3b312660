package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
)

// ToggleOutput is the new engagement flag plus the product with fresh counters.
type ToggleOutput struct {
	Active  bool
	Product *catalog.Product
}

// ToggleLike flips userID's like on a product.
func ToggleLike(ctx context.Context, database *sql.DB, userID int64, productID string) (*ToggleOutput, error) {
	return toggle(ctx, database, userID, productID, db.EngagementLike)
}

// ToggleSave flips userID's save on a product.
func ToggleSave(ctx context.Context, database *sql.DB, userID int64, productID string) (*ToggleOutput, error) {
	return toggle(ctx, database, userID, productID, db.EngagementSave)
}

func toggle(ctx context.Context, database *sql.DB, userID int64, productID string, kind db.EngagementKind) (*ToggleOutput, error) {
	active, err := db.ToggleEngagement(ctx, database, userID, productID, kind)
	if err != nil {
		return nil, err
	}
	p, err := db.GetProduct(ctx, database, productID)
	if err != nil {
		return nil, err
	}
	return &ToggleOutput{Active: active, Product: p}, nil
}

// Order detail limits.
const (
	MaxOrderQuantity = 1000
	MaxOrderLocation = 300
)

// PlaceOrderInput contains parameters for PlaceOrder.
type PlaceOrderInput struct {
	Buyer     catalog.User
	ProductID string
	// Quantity defaults to 1
	Quantity int `validate:"min=0,max=1000"`
	// Phone and Location are optional contact details for the seller
	Phone    string `validate:"omitempty,phone"`
	Location string `validate:"max=300"`
	Now      time.Time
}

var orderMessages = map[string]string{
	"Quantity": "Quantity must be between 1 and 1000.",
	"Phone":    "Please enter a valid phone number (7 to 15 digits, optional +).",
	"Location": "Location is too long (max 300 characters).",
}

// PlaceOrderOutput is the stored order and what the notifications need.
type PlaceOrderOutput struct {
	Order   *catalog.Order
	Product *catalog.Product
	Seller  *catalog.User
	Buyer   *catalog.User
}

// PlaceOrder records a pending order for an active product and emits
// order.placed. Unknown buyers are created on the way.
func PlaceOrder(ctx context.Context, database *sql.DB, pub events.Publisher, input PlaceOrderInput) (*PlaceOrderOutput, error) {
	input.Phone = strings.TrimSpace(input.Phone)
	input.Location = strings.TrimSpace(input.Location)
	if err := checkInput(input, orderMessages); err != nil {
		return nil, err
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if input.Now.IsZero() {
		input.Now = time.Now()
	}

	p, err := db.GetProduct(ctx, database, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, errors.NewValidation("product", "This product is no longer available.")
	}
	if !p.OrderEnabled {
		return nil, errors.NewValidation("product", "Ordering is turned off for this product.")
	}
	seller, err := db.GetUser(ctx, database, p.SellerID)
	if err != nil {
		return nil, err
	}

	buyer := input.Buyer
	if err := db.UpsertUser(ctx, database, &buyer); err != nil {
		return nil, err
	}
	stored, err := db.GetUser(ctx, database, buyer.ID)
	if err != nil {
		return nil, err
	}

	o := &catalog.Order{
		ID:        catalog.NewID(),
		BuyerID:   buyer.ID,
		SellerID:  p.SellerID,
		ProductID: p.ID,
		Quantity:  input.Quantity,
		Phone:     input.Phone,
		Location:  input.Location,
		Status:    catalog.OrderPending,
		CreatedAt: input.Now,
	}
	if err := db.CreateOrder(ctx, database, o); err != nil {
		return nil, err
	}
	p.OrdersCount++

	if pub != nil {
		_ = pub.Publish(ctx, events.Event{
			Type:      events.OrderPlaced,
			ProductID: p.ID,
			SellerID:  p.SellerID,
			BuyerID:   buyer.ID,
			OrderID:   o.ID,
			At:        o.CreatedAt,
		})
	}
	return &PlaceOrderOutput{Order: o, Product: p, Seller: seller, Buyer: stored}, nil
}

// RecordView bumps a product's view counter.
func RecordView(ctx context.Context, database *sql.DB, productID string) error {
	return db.IncrementViews(ctx, database, productID)
}

// ParseQuantity reads an order quantity typed by a buyer.
func ParseQuantity(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > MaxOrderQuantity {
		return 0, errors.NewValidation("quantity", orderMessages["Quantity"])
	}
	return n, nil
}

// ParseOrderPhone accepts a typed or shared phone number.
func ParseOrderPhone(text string) (string, error) {
	phone := strings.TrimSpace(text)
	if !ValidPhone(phone) {
		return "", errors.NewValidation("phone", orderMessages["Phone"])
	}
	return phone, nil
}

// ParseOrderLocation accepts a delivery address. "skip" means none.
func ParseOrderLocation(text string) (string, error) {
	loc := strings.TrimSpace(text)
	if strings.EqualFold(loc, "skip") {
		return "", nil
	}
	if utf8.RuneCountInString(loc) > MaxOrderLocation {
		return "", errors.NewValidation("location", orderMessages["Location"])
	}
	return loc, nil
}

// FormatCoordinates renders a shared map location as order text.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("Lat: %.6f, Lon: %.6f", lat, lon)
}
