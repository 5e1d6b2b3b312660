package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/storebot/internal/config"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/schedule"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	now func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg, now: time.Now}
}

// Request types for each tool

// SellerRegisterRequest represents the arguments for seller_register.
type SellerRegisterRequest struct {
	UserID    int64  `json:"user_id"`
	StoreName string `json:"store_name"`
	Phone     string `json:"phone"`
	Channel   string `json:"channel,omitempty"`
	Username  string `json:"username,omitempty"`
}

// SellerRequest identifies a user.
type SellerRequest struct {
	UserID int64 `json:"user_id"`
}

// SellerPremiumRequest represents the arguments for seller_set_premium.
type SellerPremiumRequest struct {
	UserID  int64 `json:"user_id"`
	Premium bool  `json:"premium"`
	Days    int   `json:"days,omitempty"`
}

// ProductListRequest represents the arguments for product_list.
type ProductListRequest struct {
	SellerID   int64 `json:"seller_id"`
	ActiveOnly bool  `json:"active_only,omitempty"`
	Limit      int   `json:"limit,omitempty"`
	Offset     int   `json:"offset,omitempty"`
}

// ProductRequest identifies one of a seller's products. SellerID is unused by
// product_get.
type ProductRequest struct {
	SellerID int64  `json:"seller_id,omitempty"`
	ID       string `json:"id"`
}

// ProductButtonRequest represents the arguments for product_toggle_button.
type ProductButtonRequest struct {
	SellerID int64  `json:"seller_id"`
	ID       string `json:"id"`
	Button   string `json:"button"`
}

// ProductLinkRequest represents the arguments for product_set_link.
type ProductLinkRequest struct {
	SellerID int64  `json:"seller_id"`
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ProductEditRequest represents the arguments for product_edit.
type ProductEditRequest struct {
	SellerID int64  `json:"seller_id"`
	ID       string `json:"id"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

// ProductSearchRequest represents the arguments for product_search.
type ProductSearchRequest struct {
	Query string `json:"query,omitempty"`
}

// ScheduleCreateRequest represents the arguments for schedule_create.
type ScheduleCreateRequest struct {
	SellerID     int64  `json:"seller_id"`
	ProductID    string `json:"product_id"`
	IntervalDays int    `json:"interval_days"`
	PostTime     string `json:"post_time"`
}

// ScheduleListRequest represents the arguments for schedule_list.
type ScheduleListRequest struct {
	SellerID   int64 `json:"seller_id"`
	ActiveOnly bool  `json:"active_only,omitempty"`
}

// ScheduleRequest identifies one of a seller's schedules.
type ScheduleRequest struct {
	SellerID int64  `json:"seller_id"`
	ID       string `json:"id"`
}

// ScheduleNextRequest represents the arguments for schedule_next.
type ScheduleNextRequest struct {
	IntervalDays int    `json:"interval_days"`
	PostTime     string `json:"post_time"`
	From         string `json:"from,omitempty"`
}

// Output types

// ProductListOutput is one page of product_list.
type ProductListOutput struct {
	Items   []ProductView `json:"items"`
	Total   int           `json:"total"`
	HasMore bool          `json:"has_more"`
}

// ProductDetailOutput is the product_get result.
type ProductDetailOutput struct {
	Product ProductView `json:"product"`
	Caption string      `json:"caption"`
	HTML    string      `json:"html"`
}

// ProductStatsOutput is the product_stats result.
type ProductStatsOutput struct {
	ID             string  `json:"id"`
	Views          int     `json:"views"`
	Likes          int     `json:"likes"`
	Saves          int     `json:"saves"`
	Orders         int     `json:"orders"`
	ItemsSold      int     `json:"items_sold"`
	PendingOrders  int     `json:"pending_orders"`
	EngagementRate float64 `json:"engagement_rate"`
	Text           string  `json:"text"`
}

// ProductSearchOutput is the product_search result.
type ProductSearchOutput struct {
	Items []ProductView `json:"items"`
}

// ScheduleListOutput is the schedule_list result.
type ScheduleListOutput struct {
	Items []ScheduleView `json:"items"`
}

// DeleteOutput acknowledges a removal.
type DeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Handler implementations

// HandleSellerRegister handles the seller_register tool call.
func (h *Handlers) HandleSellerRegister(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SellerRegisterRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	u, err := ops.RegisterSeller(ctx, h.db, ops.RegisterSellerInput{
		UserID:    input.UserID,
		Username:  input.Username,
		StoreName: input.StoreName,
		Phone:     input.Phone,
		Channel:   input.Channel,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(sellerView(u))
}

// HandleSellerGet handles the seller_get tool call.
func (h *Handlers) HandleSellerGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SellerRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	u, err := db.GetUser(ctx, h.db, input.UserID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(sellerView(u))
}

// HandleSellerPremium handles the seller_set_premium tool call.
func (h *Handlers) HandleSellerPremium(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SellerPremiumRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Days < 0 {
		return errorResult(errors.NewValidation("days", "days must not be negative")), nil
	}

	var until *time.Time
	if input.Premium && input.Days > 0 {
		t := h.now().UTC().AddDate(0, 0, input.Days)
		until = &t
	}
	if err := db.SetPremium(ctx, h.db, input.UserID, input.Premium, until); err != nil {
		return errorResult(err), nil
	}
	u, err := db.GetUser(ctx, h.db, input.UserID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(sellerView(u))
}

// HandleProductList handles the product_list tool call.
func (h *Handlers) HandleProductList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := ops.ListProducts(ctx, h.db, ops.ListProductsInput{
		SellerID:   input.SellerID,
		ActiveOnly: input.ActiveOnly,
		Limit:      input.Limit,
		Offset:     input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	items := make([]ProductView, 0, len(out.Items))
	for _, p := range out.Items {
		items = append(items, productView(p))
	}
	return successResult(ProductListOutput{Items: items, Total: out.Total, HasMore: out.HasMore})
}

// HandleProductGet handles the product_get tool call.
func (h *Handlers) HandleProductGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	p, err := db.GetProduct(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	seller, err := db.GetUser(ctx, h.db, p.SellerID)
	if err != nil {
		return errorResult(err), nil
	}
	html, err := render.ProductHTML(p, seller)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}

	return successResult(ProductDetailOutput{
		Product: productView(p),
		Caption: render.Caption(p, render.Context{
			ForChannel:  true,
			SellerName:  seller.DisplayName(),
			SellerPhone: seller.Phone,
		}),
		HTML: string(html),
	})
}

// HandleProductStats handles the product_stats tool call.
func (h *Handlers) HandleProductStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := ops.ProductStats(ctx, h.db, input.SellerID, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	p := out.Product
	return successResult(ProductStatsOutput{
		ID:             p.ID,
		Views:          p.ViewsCount,
		Likes:          p.LikesCount,
		Saves:          p.SavesCount,
		Orders:         p.OrdersCount,
		ItemsSold:      out.ItemsSold,
		PendingOrders:  out.PendingOrders,
		EngagementRate: render.EngagementRate(p),
		Text:           out.Text,
	})
}

// HandleProductToggleButton handles the product_toggle_button tool call.
func (h *Handlers) HandleProductToggleButton(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductButtonRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	p, err := ops.ToggleButton(ctx, h.db, input.SellerID, input.ID, input.Button)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(productView(p))
}

// HandleProductSetLink handles the product_set_link tool call. An empty text
// clears the link button.
func (h *Handlers) HandleProductSetLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductLinkRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if input.Text == "" {
		p, err := ops.ClearCustomButton(ctx, h.db, input.SellerID, input.ID)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(productView(p))
	}
	p, err := ops.SetCustomButton(ctx, h.db, input.SellerID, input.ID, input.Text, input.URL)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(productView(p))
}

// HandleProductEdit handles the product_edit tool call.
func (h *Handlers) HandleProductEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductEditRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	p, err := ops.EditProduct(ctx, h.db, ops.EditProductInput{
		SellerID:  input.SellerID,
		ProductID: input.ID,
		Field:     input.Field,
		Value:     input.Value,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(productView(p))
}

// HandleProductDelete handles the product_delete tool call.
func (h *Handlers) HandleProductDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if _, err := ops.DeleteProduct(ctx, h.db, input.SellerID, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(DeleteOutput{ID: input.ID, Deleted: true})
}

// HandleProductSearch handles the product_search tool call.
func (h *Handlers) HandleProductSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProductSearchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	products, err := ops.SearchProducts(ctx, h.db, input.Query)
	if err != nil {
		return errorResult(err), nil
	}
	items := make([]ProductView, 0, len(products))
	for _, p := range products {
		items = append(items, productView(p))
	}
	return successResult(ProductSearchOutput{Items: items})
}

// HandleScheduleCreate handles the schedule_create tool call.
func (h *Handlers) HandleScheduleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	sc, err := ops.CreateSchedule(ctx, h.db, h.cfg, ops.CreateScheduleInput{
		SellerID:     input.SellerID,
		ProductID:    input.ProductID,
		IntervalDays: input.IntervalDays,
		PostTime:     input.PostTime,
		Now:          h.now(),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(scheduleView(sc))
}

// HandleScheduleList handles the schedule_list tool call.
func (h *Handlers) HandleScheduleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	list, err := ops.ListSchedules(ctx, h.db, input.SellerID, input.ActiveOnly)
	if err != nil {
		return errorResult(err), nil
	}
	items := make([]ScheduleView, 0, len(list))
	for _, sc := range list {
		items = append(items, scheduleView(sc))
	}
	return successResult(ScheduleListOutput{Items: items})
}

// HandleSchedulePause handles the schedule_pause tool call.
func (h *Handlers) HandleSchedulePause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := ops.PauseSchedule(ctx, h.db, input.SellerID, input.ID); err != nil {
		return errorResult(err), nil
	}
	sc, err := db.GetSchedule(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(scheduleView(sc))
}

// HandleScheduleResume handles the schedule_resume tool call.
func (h *Handlers) HandleScheduleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	sc, err := ops.ResumeSchedule(ctx, h.db, h.cfg, input.SellerID, input.ID, h.now())
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(scheduleView(sc))
}

// HandleScheduleDelete handles the schedule_delete tool call.
func (h *Handlers) HandleScheduleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := ops.DeleteSchedule(ctx, h.db, input.SellerID, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(DeleteOutput{ID: input.ID, Deleted: true})
}

// HandleScheduleNext handles the schedule_next tool call.
func (h *Handlers) HandleScheduleNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleNextRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if input.IntervalDays < 1 {
		return errorResult(errors.NewValidation("interval_days", "interval must be at least 1 day")), nil
	}
	if _, _, err := schedule.ParsePostTime(input.PostTime); err != nil {
		return errorResult(err), nil
	}

	from := h.now()
	if input.From != "" {
		from, err = time.Parse(time.RFC3339, input.From)
		if err != nil {
			return errorResult(errors.NewValidation("from", "from must be an RFC 3339 time")), nil
		}
	}
	return successResult(map[string]any{
		"next_post_at": schedule.NextPostAt(from, input.IntervalDays, input.PostTime),
	})
}

// errorResult converts an error to an MCP error result with structured JSON.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if se, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    se.Code,
			"message": se.Message,
			"status":  se.Status,
		}
		// Internal details may carry SQL text or file paths
		if se.Code != errors.ErrInternal && se.Details != nil {
			errorObj["details"] = se.Details
		}
		if hint := errors.Remediation(err); hint != "" {
			errorObj["remediation"] = hint
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
