package ops

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
)

// Buyer-facing list sizes.
const (
	SavedLimit        = 10
	BrowseLimit       = 10
	BuyersLimit       = 20
	SearchRecentLimit = 20
	SearchLimit       = 50
	// MinSearchLen is the shortest query that filters; shorter ones list recent products
	MinSearchLen = 2
)

// SavedProducts lists the active products a user saved, most recent first.
func SavedProducts(ctx context.Context, database *sql.DB, userID int64) ([]*catalog.Product, error) {
	return db.ListSavedProducts(ctx, database, userID, SavedLimit)
}

// BrowseProducts lists the newest public products across all stores.
func BrowseProducts(ctx context.Context, database *sql.DB) ([]*catalog.Product, error) {
	return db.ListPublicProducts(ctx, database, BrowseLimit)
}

// SellerBuyers lists the distinct customers of a seller, most recent first.
func SellerBuyers(ctx context.Context, database *sql.DB, sellerID int64) ([]*db.Buyer, error) {
	if _, err := requireSeller(ctx, database, sellerID); err != nil {
		return nil, err
	}
	return db.ListSellerBuyers(ctx, database, sellerID, BuyersLimit)
}

// SearchProducts matches public products by title, description or category.
// Queries shorter than MinSearchLen return the most recent products instead.
func SearchProducts(ctx context.Context, database *sql.DB, query string) ([]*catalog.Product, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinSearchLen {
		return db.ListPublicProducts(ctx, database, SearchRecentLimit)
	}
	return db.SearchProducts(ctx, database, query, SearchLimit)
}
