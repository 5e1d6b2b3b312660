package mcp

import (
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
)

// ProductView is the JSON shape of a product in tool results.
type ProductView struct {
	ID          string         `json:"id"`
	SellerID    int64          `json:"seller_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Price       *float64       `json:"price,omitempty"`
	Category    string         `json:"category,omitempty"`
	Fields      catalog.Fields `json:"fields"`
	ImagePath   string         `json:"image_path,omitempty"`
	IsActive    bool           `json:"is_active"`
	Likes       int            `json:"likes"`
	Saves       int            `json:"saves"`
	Orders      int            `json:"orders"`
	Views       int            `json:"views"`
	Buttons     ButtonsView    `json:"buttons"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ButtonsView lists which product buttons are shown.
type ButtonsView struct {
	Like       bool   `json:"like"`
	Save       bool   `json:"save"`
	Order      bool   `json:"order"`
	CustomText string `json:"custom_text,omitempty"`
	CustomURL  string `json:"custom_url,omitempty"`
}

func productView(p *catalog.Product) ProductView {
	return ProductView{
		ID:          p.ID,
		SellerID:    p.SellerID,
		Type:        string(p.Type),
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Fields:      p.Fields,
		ImagePath:   p.ImagePath,
		IsActive:    p.IsActive,
		Likes:       p.LikesCount,
		Saves:       p.SavesCount,
		Orders:      p.OrdersCount,
		Views:       p.ViewsCount,
		Buttons: ButtonsView{
			Like:       p.LikeEnabled,
			Save:       p.SaveEnabled,
			Order:      p.OrderEnabled,
			CustomText: p.CustomButtonText,
			CustomURL:  p.CustomButtonURL,
		},
		CreatedAt: p.CreatedAt,
	}
}

// ScheduleView is the JSON shape of a schedule in tool results.
type ScheduleView struct {
	ID           string     `json:"id"`
	SellerID     int64      `json:"seller_id"`
	ProductID    string     `json:"product_id"`
	Channel      string     `json:"channel"`
	IntervalDays int        `json:"interval_days"`
	PostTime     string     `json:"post_time"`
	IsActive     bool       `json:"is_active"`
	LastPostedAt *time.Time `json:"last_posted_at,omitempty"`
	NextPostAt   *time.Time `json:"next_post_at,omitempty"`
}

func scheduleView(s *catalog.Schedule) ScheduleView {
	return ScheduleView{
		ID:           s.ID,
		SellerID:     s.SellerID,
		ProductID:    s.ProductID,
		Channel:      s.Channel,
		IntervalDays: s.IntervalDays,
		PostTime:     s.PostTime,
		IsActive:     s.IsActive,
		LastPostedAt: s.LastPostedAt,
		NextPostAt:   s.NextPostAt,
	}
}

// SellerView is the JSON shape of a user in tool results.
type SellerView struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username,omitempty"`
	Role         string     `json:"role"`
	StoreName    string     `json:"store_name,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Channel      string     `json:"channel,omitempty"`
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
}

func sellerView(u *catalog.User) SellerView {
	return SellerView{
		ID:           u.ID,
		Username:     u.Username,
		Role:         string(u.Role),
		StoreName:    u.StoreName,
		Phone:        u.Phone,
		Channel:      u.Channel,
		IsPremium:    u.IsPremium,
		PremiumUntil: u.PremiumUntil,
	}
}
