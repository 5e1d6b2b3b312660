package catalog

import (
	"strings"
	"time"
)

// ProductType selects how a product is collected and rendered.
type ProductType string

const (
	// TypeStandard products have a category, a title, a price and structured fields.
	TypeStandard ProductType = "standard"
	// TypeCustomDescription products are a free-form description with optional title and price.
	TypeCustomDescription ProductType = "custom_description"
)

// ParseProductType maps a stored or callback value onto a ProductType.
func ParseProductType(s string) (ProductType, bool) {
	switch ProductType(strings.TrimSpace(s)) {
	case TypeStandard:
		return TypeStandard, true
	case TypeCustomDescription:
		return TypeCustomDescription, true
	}
	return "", false
}

// Role distinguishes buyers from sellers.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// User is a messaging-platform account known to the bot.
type User struct {
	// ID is the platform user id
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Role      Role

	// Seller profile; empty for buyers
	StoreName string
	Phone     string
	Channel   string

	IsPremium    bool
	PremiumUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSeller reports whether the user has a registered storefront.
func (u *User) IsSeller() bool {
	return u != nil && u.Role == RoleSeller
}

// HasPremium reports whether premium is active at now. A nil expiry means no expiry.
func (u *User) HasPremium(now time.Time) bool {
	if u == nil || !u.IsPremium {
		return false
	}
	return u.PremiumUntil == nil || u.PremiumUntil.After(now)
}

// DisplayName is the name shown in captions and watermarks.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.StoreName != "":
		return u.StoreName
	case u.FirstName != "":
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	case u.Username != "":
		return "@" + u.Username
	}
	return ""
}

// Product is a committed listing.
type Product struct {
	// ID is a ULID
	ID       string
	SellerID int64

	// Title is empty when absent (custom-description products only)
	Title       string
	Description string

	// Price is nil when absent (custom-description products only)
	Price    *float64
	Category string
	Type     ProductType

	// Fields holds category field values in category order, plus the gallery side-channel
	Fields Fields

	// ImagePath is the watermarked main image; OriginalImagePath the unstamped one
	ImagePath         string
	OriginalImagePath string

	IsActive bool
	IsPublic bool

	LikesCount  int
	SavesCount  int
	OrdersCount int
	ViewsCount  int

	LikeEnabled  bool
	SaveEnabled  bool
	OrderEnabled bool

	// CustomButtonText and CustomButtonURL are both set or both empty
	CustomButtonText string
	CustomButtonURL  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCustomButton reports whether a custom link button is configured.
func (p *Product) HasCustomButton() bool {
	return p.CustomButtonText != "" && p.CustomButtonURL != ""
}

// Schedule is a recurring channel repost of one product.
type Schedule struct {
	ID           string
	SellerID     int64
	ProductID    string
	Channel      string
	IntervalDays int
	// PostTime is the local "HH:MM" time of day
	PostTime     string
	IsActive     bool
	LastPostedAt *time.Time
	NextPostAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChannelPost records one message published to a channel.
type ChannelPost struct {
	ID        int64
	ProductID string
	Channel   string
	MessageID int
	PostedAt  time.Time
}

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a buyer's order request for a product.
type Order struct {
	ID        string
	BuyerID   int64
	SellerID  int64
	ProductID string
	Quantity  int
	// Phone and Location are optional buyer contact details
	Phone     string
	Location  string
	Status    OrderStatus
	CreatedAt time.Time
}

// Engagement is one buyer's like/save state for one product.
type Engagement struct {
	UserID    int64
	ProductID string
	Liked     bool
	Saved     bool
}
