package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
)

// Store exposes the query functions as methods so components can depend on
// narrow interfaces instead of *sql.DB.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) GetUser(ctx context.Context, id int64) (*catalog.User, error) {
	return GetUser(ctx, s.DB, id)
}

func (s *Store) UpsertUser(ctx context.Context, u *catalog.User) error {
	return UpsertUser(ctx, s.DB, u)
}

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product) error {
	return CreateProduct(ctx, s.DB, p)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	return GetProduct(ctx, s.DB, id)
}

func (s *Store) ListSellerProducts(ctx context.Context, sellerID int64, activeOnly bool) ([]*catalog.Product, error) {
	return ListSellerProducts(ctx, s.DB, sellerID, activeOnly)
}

func (s *Store) CountActiveProducts(ctx context.Context, sellerID int64) (int, error) {
	return CountActiveProducts(ctx, s.DB, sellerID)
}

func (s *Store) SetProductActive(ctx context.Context, id string, active bool) error {
	return SetProductActive(ctx, s.DB, id, active)
}

func (s *Store) CreateSchedule(ctx context.Context, sc *catalog.Schedule) error {
	return CreateSchedule(ctx, s.DB, sc)
}

func (s *Store) ListActiveSchedules(ctx context.Context) ([]*catalog.Schedule, error) {
	return ListActiveSchedules(ctx, s.DB)
}

func (s *Store) UpdateSchedulePostTime(ctx context.Context, id string, lastPostedAt, nextPostAt time.Time) error {
	return UpdateSchedulePostTime(ctx, s.DB, id, lastPostedAt, nextPostAt)
}

func (s *Store) RecordChannelPost(ctx context.Context, cp *catalog.ChannelPost) error {
	return RecordChannelPost(ctx, s.DB, cp)
}

func (s *Store) ListChannelPosts(ctx context.Context, productID string) ([]*catalog.ChannelPost, error) {
	return ListChannelPosts(ctx, s.DB, productID)
}
