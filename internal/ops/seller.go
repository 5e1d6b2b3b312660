package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
)

// RegisterSellerInput contains parameters for RegisterSeller.
type RegisterSellerInput struct {
	UserID    int64  `validate:"required"`
	Username  string
	FirstName string
	LastName  string
	StoreName string `validate:"min=2,max=100"`
	Phone     string `validate:"phone"`
	// Channel is optional; a missing "@" is added
	Channel string `validate:"omitempty,channel"`
}

var registerMessages = map[string]string{
	"UserID":    "user id is required",
	"StoreName": "Store name must be 2 to 100 characters.",
	"Phone":     "Please enter a valid phone number (7 to 15 digits, optional +).",
	"Channel":   "Channel must be a public username like @mychannel.",
}

// RegisterSeller creates or promotes a user to seller with a storefront.
func RegisterSeller(ctx context.Context, database *sql.DB, input RegisterSellerInput) (*catalog.User, error) {
	input.StoreName = strings.TrimSpace(input.StoreName)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Channel = NormalizeChannel(input.Channel)

	if err := checkInput(input, registerMessages); err != nil {
		return nil, err
	}

	u := &catalog.User{
		ID:        input.UserID,
		Username:  input.Username,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}
	if err := db.UpsertUser(ctx, database, u); err != nil {
		return nil, err
	}
	if err := db.UpdateSellerProfile(ctx, database, input.UserID, input.StoreName, input.Phone, input.Channel); err != nil {
		return nil, err
	}
	return db.GetUser(ctx, database, input.UserID)
}

// ParseRegistration splits "Store name | phone | @channel". The channel part
// is optional.
func ParseRegistration(text string) (storeName, phone, channel string, err error) {
	parts := strings.Split(text, "|")
	if len(parts) < 2 || len(parts) > 3 {
		return "", "", "", errors.NewValidation("registration",
			"Use: /register Store name | phone | @channel (channel optional)")
	}
	storeName = strings.TrimSpace(parts[0])
	phone = strings.TrimSpace(parts[1])
	if len(parts) == 3 {
		channel = strings.TrimSpace(parts[2])
	}
	return storeName, phone, channel, nil
}

// ValidPhone accepts digits with an optional leading "+", 7 to 15 characters
// once spaces, dashes and parentheses are removed.
func ValidPhone(phone string) bool {
	cleaned := strings.NewReplacer("-", "", " ", "", "(", "", ")", "").Replace(phone)
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return false
	}
	digits := strings.TrimPrefix(cleaned, "+")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeChannel trims the channel and adds the leading "@". "skip" and
// empty input mean no channel.
func NormalizeChannel(channel string) string {
	channel = strings.TrimSpace(channel)
	if channel == "" || strings.EqualFold(channel, "skip") {
		return ""
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return channel
}

// ValidChannel reports whether channel is "@" followed by 5 to 32 letters,
// digits or underscores.
func ValidChannel(channel string) bool {
	name, ok := strings.CutPrefix(channel, "@")
	if !ok || len(name) < 5 || len(name) > 32 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// TouchUser records a platform account on first contact. Existing users keep
// their role and profile.
func TouchUser(ctx context.Context, database *sql.DB, u *catalog.User) error {
	return db.UpsertUser(ctx, database, u)
}
