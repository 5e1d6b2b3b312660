package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/config"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// testSetup creates a temporary database with one registered seller.
func testSetup(t *testing.T) (*sql.DB, *config.Config, *Handlers) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	h := NewHandlers(database, cfg)
	h.now = func() time.Time { return fixedNow }

	r, err := h.HandleSellerRegister(context.Background(), makeRequest(map[string]any{
		"user_id":    float64(10),
		"store_name": "Addis Electronics",
		"phone":      "+251911000000",
		"channel":    "addisshop",
	}))
	if err != nil || r.IsError {
		t.Fatalf("seller_register failed: %v %s", err, text(r))
	}
	return database, cfg, h
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func text(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

// parseOutput decodes a successful result into out.
func parseOutput(t *testing.T, r *mcp.CallToolResult, out any) {
	t.Helper()
	if r.IsError {
		t.Fatalf("unexpected error result: %s", text(r))
	}
	if err := json.Unmarshal([]byte(text(r)), out); err != nil {
		t.Fatalf("failed to parse output %q: %v", text(r), err)
	}
}

// assertErrorCode checks that r is an error result with the given code.
func assertErrorCode(t *testing.T, r *mcp.CallToolResult, code errors.ErrorCode) map[string]any {
	t.Helper()
	if !r.IsError {
		t.Fatalf("expected error %s, got success: %s", code, text(r))
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text(r)), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)
	if errObj["code"] != string(code) {
		t.Fatalf("code = %v, want %s", errObj["code"], code)
	}
	return errObj
}

func addProduct(t *testing.T, database *sql.DB, id string, sellerID int64, active bool) {
	t.Helper()
	price := 45000.0
	p := &catalog.Product{
		ID:          id,
		SellerID:    sellerID,
		Title:       "ThinkPad T480",
		Description: "Barely used",
		Price:       &price,
		Category:    "laptops",
		Type:        catalog.TypeStandard,
		IsActive:    active,
		IsPublic:    true,
		LikeEnabled: true,
		SaveEnabled: true,
	}
	p.Fields.Set("brand", "Lenovo")
	if err := db.CreateProduct(context.Background(), database, p); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
}

func TestHandleSellerRegister(t *testing.T) {
	_, _, h := testSetup(t)
	ctx := context.Background()

	r, _ := h.HandleSellerGet(ctx, makeRequest(map[string]any{"user_id": float64(10)}))
	var seller SellerView
	parseOutput(t, r, &seller)
	if seller.Role != string(catalog.RoleSeller) || seller.Channel != "@addisshop" {
		t.Errorf("seller = %+v", seller)
	}

	r, _ = h.HandleSellerRegister(ctx, makeRequest(map[string]any{
		"user_id":    float64(11),
		"store_name": "X",
		"phone":      "+251911000000",
	}))
	assertErrorCode(t, r, errors.ErrValidation)

	r, _ = h.HandleSellerGet(ctx, makeRequest(map[string]any{"user_id": float64(99)}))
	assertErrorCode(t, r, errors.ErrNotFound)
}

func TestHandleSellerPremium(t *testing.T) {
	_, _, h := testSetup(t)
	ctx := context.Background()

	r, _ := h.HandleSellerPremium(ctx, makeRequest(map[string]any{
		"user_id": float64(10),
		"premium": true,
		"days":    float64(30),
	}))
	var seller SellerView
	parseOutput(t, r, &seller)
	if !seller.IsPremium || seller.PremiumUntil == nil {
		t.Fatalf("seller = %+v", seller)
	}
	if want := fixedNow.AddDate(0, 0, 30); !seller.PremiumUntil.Equal(want) {
		t.Errorf("premium_until = %v, want %v", seller.PremiumUntil, want)
	}

	r, _ = h.HandleSellerPremium(ctx, makeRequest(map[string]any{"user_id": float64(10), "premium": true, "days": float64(-1)}))
	assertErrorCode(t, r, errors.ErrValidation)
}

func TestHandleProductList(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)
	addProduct(t, database, "P2", 10, false)
	addProduct(t, database, "P3", 10, true)

	tests := []struct {
		name      string
		args      map[string]any
		wantItems int
		wantTotal int
		wantMore  bool
	}{
		{"all", map[string]any{"seller_id": float64(10)}, 3, 3, false},
		{"active only", map[string]any{"seller_id": float64(10), "active_only": true}, 2, 2, false},
		{"paged", map[string]any{"seller_id": float64(10), "limit": float64(2)}, 2, 3, true},
		{"other seller", map[string]any{"seller_id": float64(20)}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := h.HandleProductList(context.Background(), makeRequest(tt.args))
			var out ProductListOutput
			parseOutput(t, r, &out)
			if len(out.Items) != tt.wantItems || out.Total != tt.wantTotal || out.HasMore != tt.wantMore {
				t.Errorf("got items=%d total=%d more=%v", len(out.Items), out.Total, out.HasMore)
			}
		})
	}
}

func TestHandleProductGet(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)

	r, _ := h.HandleProductGet(context.Background(), makeRequest(map[string]any{"id": "P1"}))
	var out ProductDetailOutput
	parseOutput(t, r, &out)

	if brand, _ := out.Product.Fields.Get("brand"); out.Product.ID != "P1" || brand != "Lenovo" {
		t.Errorf("product = %+v", out.Product)
	}
	if !strings.Contains(out.Caption, "45,000.00 Birr") {
		t.Errorf("caption missing price: %q", out.Caption)
	}
	if !strings.Contains(out.HTML, "<h1>ThinkPad T480</h1>") {
		t.Errorf("html = %q", out.HTML)
	}

	r, _ = h.HandleProductGet(context.Background(), makeRequest(map[string]any{"id": "nope"}))
	assertErrorCode(t, r, errors.ErrNotFound)
}

func TestHandleProductButtons(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)
	ctx := context.Background()

	r, _ := h.HandleProductToggleButton(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": "P1", "button": "like"}))
	var p ProductView
	parseOutput(t, r, &p)
	if p.Buttons.Like {
		t.Error("like should be off after toggle")
	}

	r, _ = h.HandleProductToggleButton(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": "P1", "button": "share"}))
	assertErrorCode(t, r, errors.ErrValidation)

	r, _ = h.HandleProductToggleButton(ctx, makeRequest(map[string]any{"seller_id": float64(20), "id": "P1", "button": "like"}))
	assertErrorCode(t, r, errors.ErrPermissionDenied)

	r, _ = h.HandleProductSetLink(ctx, makeRequest(map[string]any{
		"seller_id": float64(10), "id": "P1", "text": "Website", "url": "https://example.com",
	}))
	parseOutput(t, r, &p)
	if p.Buttons.CustomText != "Website" || p.Buttons.CustomURL != "https://example.com" {
		t.Errorf("buttons = %+v", p.Buttons)
	}

	r, _ = h.HandleProductSetLink(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": "P1", "text": "Site", "url": "ftp://x"}))
	assertErrorCode(t, r, errors.ErrValidation)

	r, _ = h.HandleProductSetLink(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": "P1"}))
	p = ProductView{}
	parseOutput(t, r, &p)
	if p.Buttons.CustomText != "" || p.Buttons.CustomURL != "" {
		t.Errorf("link not cleared: %+v", p.Buttons)
	}
}

func TestHandleProductEditAndDelete(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)
	ctx := context.Background()

	r, _ := h.HandleProductEdit(ctx, makeRequest(map[string]any{
		"seller_id": float64(10), "id": "P1", "field": "price", "value": "39,500",
	}))
	var p ProductView
	parseOutput(t, r, &p)
	if p.Price == nil || *p.Price != 39500 {
		t.Errorf("price = %v, want 39500", p.Price)
	}

	r, _ = h.HandleProductEdit(ctx, makeRequest(map[string]any{
		"seller_id": float64(10), "id": "P1", "field": "price", "value": "-1",
	}))
	assertErrorCode(t, r, errors.ErrValidation)

	r, _ = h.HandleProductDelete(ctx, makeRequest(map[string]any{"seller_id": float64(20), "id": "P1"}))
	assertErrorCode(t, r, errors.ErrPermissionDenied)

	r, _ = h.HandleProductDelete(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": "P1"}))
	var del DeleteOutput
	parseOutput(t, r, &del)
	if !del.Deleted || del.ID != "P1" {
		t.Errorf("delete = %+v", del)
	}

	r, _ = h.HandleProductGet(ctx, makeRequest(map[string]any{"id": "P1"}))
	assertErrorCode(t, r, errors.ErrNotFound)
}

func TestHandleProductSearch(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)
	addProduct(t, database, "P2", 10, false)
	ctx := context.Background()

	r, _ := h.HandleProductSearch(ctx, makeRequest(map[string]any{"query": "thinkpad"}))
	var out ProductSearchOutput
	parseOutput(t, r, &out)
	if len(out.Items) != 1 || out.Items[0].ID != "P1" {
		t.Errorf("items = %+v", out.Items)
	}

	r, _ = h.HandleProductSearch(ctx, makeRequest(map[string]any{"query": "macbook"}))
	out = ProductSearchOutput{}
	parseOutput(t, r, &out)
	if len(out.Items) != 0 {
		t.Errorf("items = %+v, want none", out.Items)
	}
}

func TestHandleProductStats(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)

	r, _ := h.HandleProductStats(context.Background(), makeRequest(map[string]any{"seller_id": float64(10), "id": "P1"}))
	var out ProductStatsOutput
	parseOutput(t, r, &out)
	if out.ID != "P1" || out.Views != 0 || out.EngagementRate != 0 || out.Text == "" {
		t.Errorf("stats = %+v", out)
	}
}

func TestHandleScheduleLifecycle(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)
	ctx := context.Background()

	r, _ := h.HandleScheduleCreate(ctx, makeRequest(map[string]any{
		"seller_id": float64(10), "product_id": "P1", "interval_days": float64(3), "post_time": "09:00",
	}))
	var sc ScheduleView
	parseOutput(t, r, &sc)
	if sc.Channel != "@addisshop" || !sc.IsActive || sc.NextPostAt == nil {
		t.Fatalf("schedule = %+v", sc)
	}
	if want := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC); !sc.NextPostAt.Equal(want) {
		t.Errorf("next_post_at = %v, want %v", sc.NextPostAt, want)
	}

	r, _ = h.HandleSchedulePause(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": sc.ID}))
	var paused ScheduleView
	parseOutput(t, r, &paused)
	if paused.IsActive {
		t.Error("schedule still active after pause")
	}

	r, _ = h.HandleScheduleList(ctx, makeRequest(map[string]any{"seller_id": float64(10), "active_only": true}))
	var list ScheduleListOutput
	parseOutput(t, r, &list)
	if len(list.Items) != 0 {
		t.Errorf("active schedules = %d, want 0", len(list.Items))
	}

	r, _ = h.HandleScheduleResume(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": sc.ID}))
	var resumed ScheduleView
	parseOutput(t, r, &resumed)
	if !resumed.IsActive {
		t.Error("schedule not active after resume")
	}

	r, _ = h.HandleScheduleDelete(ctx, makeRequest(map[string]any{"seller_id": float64(20), "id": sc.ID}))
	if !r.IsError {
		t.Error("another seller deleted the schedule")
	}

	r, _ = h.HandleScheduleDelete(ctx, makeRequest(map[string]any{"seller_id": float64(10), "id": sc.ID}))
	var del DeleteOutput
	parseOutput(t, r, &del)
	if !del.Deleted {
		t.Error("expected deleted=true")
	}

	r, _ = h.HandleScheduleList(ctx, makeRequest(map[string]any{"seller_id": float64(10)}))
	list = ScheduleListOutput{}
	parseOutput(t, r, &list)
	if len(list.Items) != 0 {
		t.Errorf("schedules = %d after delete", len(list.Items))
	}
}

func TestHandleScheduleCreate_Rejections(t *testing.T) {
	database, _, h := testSetup(t)
	addProduct(t, database, "P1", 10, true)
	addProduct(t, database, "SOLD", 10, false)

	tests := []struct {
		name string
		args map[string]any
		code errors.ErrorCode
	}{
		{"zero interval", map[string]any{"seller_id": float64(10), "product_id": "P1", "interval_days": float64(0), "post_time": "09:00"}, errors.ErrValidation},
		{"bad time", map[string]any{"seller_id": float64(10), "product_id": "P1", "interval_days": float64(1), "post_time": "25:00"}, errors.ErrValidation},
		{"inactive product", map[string]any{"seller_id": float64(10), "product_id": "SOLD", "interval_days": float64(1), "post_time": "09:00"}, errors.ErrValidation},
		{"not a seller", map[string]any{"seller_id": float64(77), "product_id": "P1", "interval_days": float64(1), "post_time": "09:00"}, errors.ErrPermissionDenied},
		{"bad arguments", map[string]any{"seller_id": "ten"}, errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := h.HandleScheduleCreate(context.Background(), makeRequest(tt.args))
			assertErrorCode(t, r, tt.code)
		})
	}
}

func TestHandleScheduleNext(t *testing.T) {
	_, _, h := testSetup(t)

	r, _ := h.HandleScheduleNext(context.Background(), makeRequest(map[string]any{
		"interval_days": float64(1), "post_time": "18:30", "from": "2026-03-10T12:00:00Z",
	}))
	var out struct {
		NextPostAt time.Time `json:"next_post_at"`
	}
	parseOutput(t, r, &out)
	if want := time.Date(2026, 3, 11, 18, 30, 0, 0, time.UTC); !out.NextPostAt.Equal(want) {
		t.Errorf("next_post_at = %v, want %v", out.NextPostAt, want)
	}

	r, _ = h.HandleScheduleNext(context.Background(), makeRequest(map[string]any{
		"interval_days": float64(1), "post_time": "18:30", "from": "yesterday",
	}))
	assertErrorCode(t, r, errors.ErrValidation)
}

func TestServerRegistration(t *testing.T) {
	database, cfg, _ := testSetup(t)

	tools := NewServer(database, cfg, "test").ListTools()
	if len(tools) != len(toolRegistry) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry))
	}
	for _, name := range AllToolNames() {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabled(t *testing.T) {
	database, cfg, _ := testSetup(t)
	cfg.DisabledTypes = []string{"seller"}
	cfg.DisabledTools = []string{"schedule_delete", "schedule_delete"}

	tools := NewServer(database, cfg, "test").ListTools()
	for name := range tools {
		if GetTypeForTool(name) == "seller" || name == "schedule_delete" {
			t.Errorf("disabled tool registered: %s", name)
		}
	}
	if want := len(toolRegistry) - 4; len(tools) != want {
		t.Errorf("registered tool count = %d, want %d", len(tools), want)
	}
}

func TestValidateDisabled(t *testing.T) {
	if got := ValidateDisabledTools([]string{"product_list", "order_place"}); len(got) != 1 || got[0] != "order_place" {
		t.Errorf("ValidateDisabledTools = %v", got)
	}
	if got := ValidateDisabledTypes([]string{"schedule", "order"}); len(got) != 1 || got[0] != "order" {
		t.Errorf("ValidateDisabledTypes = %v", got)
	}
	if got := ValidateDisabledTools(nil); len(got) != 0 {
		t.Errorf("ValidateDisabledTools(nil) = %v", got)
	}
}

func TestExpandTypesToTools(t *testing.T) {
	got := ExpandTypesToTools([]string{"seller"})
	want := []string{"seller_get", "seller_register", "seller_set_premium"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ExpandTypesToTools = %v, want %v", got, want)
	}
	if ExpandTypesToTools(nil) != nil {
		t.Error("expected nil for no types")
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if !sort.StringsAreSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
	for _, name := range names {
		found := false
		for _, typ := range KnownTypes {
			if GetTypeForTool(name) == typ {
				found = true
			}
		}
		if !found {
			t.Errorf("tool %s has unknown type", name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	errObj := assertErrorCode(t, r, errors.ErrInternal)
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	r := errorResult(fmt.Errorf("boom"))
	errObj := assertErrorCode(t, r, errors.ErrInternal)
	if errObj["message"] == "boom" {
		t.Error("plain error message leaked")
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("schedule s1: %w", errors.NewNotFound("schedule", "s1")))
	assertErrorCode(t, r, errors.ErrNotFound)
}

func TestErrorResult_PermissionDeniedHasRemediation(t *testing.T) {
	r := errorResult(errors.NewPermissionDenied("bot is not an admin", "Add the bot as an admin of @shop."))
	errObj := assertErrorCode(t, r, errors.ErrPermissionDenied)
	if errObj["remediation"] != "Add the bot as an admin of @shop." {
		t.Errorf("remediation = %v", errObj["remediation"])
	}
}
