// Package ops implements the seller and buyer operations outside the intake
// flow: onboarding, schedules, engagement and product settings. Every
// operation is shared by the bot router, the CLI and the MCP server.
package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
)

// List limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return ValidChannel(fl.Field().String())
	})
	return v
}

// checkInput runs struct validation and maps the first failure onto a
// validation error with a user-facing message from messages.
func checkInput(input any, messages map[string]string) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewInternal(err)
	}
	fe := verrs[0]
	msg, ok := messages[fe.Field()]
	if !ok {
		msg = fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field()))
	}
	return errors.NewValidation(fieldName(fe.Field()), msg)
}

func fieldName(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// requireSeller loads a user and rejects anyone without a storefront.
func requireSeller(ctx context.Context, database *sql.DB, userID int64) (*catalog.User, error) {
	u, err := db.GetUser(ctx, database, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewPermissionDenied("this command is only for sellers", "Register your store first with /register.")
		}
		return nil, err
	}
	if !u.IsSeller() {
		return nil, errors.NewPermissionDenied("this command is only for sellers", "Register your store first with /register.")
	}
	return u, nil
}

// ownedProduct loads a product and checks that sellerID owns it.
func ownedProduct(ctx context.Context, database *sql.DB, sellerID int64, productID string) (*catalog.Product, error) {
	p, err := db.GetProduct(ctx, database, productID)
	if err != nil {
		return nil, err
	}
	if p.SellerID != sellerID {
		return nil, errors.NewPermissionDenied("you don't own this product", "")
	}
	return p, nil
}
