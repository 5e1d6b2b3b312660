package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
)

// copyStamper writes the label into outputPath in place of real stamping.
type copyStamper struct {
	labels []string
}

func (s *copyStamper) Stamp(path, label, outputPath string) string {
	s.labels = append(s.labels, label)
	if err := os.WriteFile(outputPath, []byte(label), 0o644); err != nil {
		return path
	}
	return outputPath
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestEditProduct(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	registerSeller(t, database, 2, "")
	addProduct(t, database, "P1", 1)

	cases := []struct {
		field, value string
		check        func(p *catalog.Product) bool
	}{
		{EditTitle, "  Sony WH-1000XM4 ", func(p *catalog.Product) bool { return p.Title == "Sony WH-1000XM4" }},
		{EditDescription, "Noise cancelling, boxed", func(p *catalog.Product) bool { return p.Description == "Noise cancelling, boxed" }},
		{EditPrice, "3,200", func(p *catalog.Product) bool { return p.Price != nil && *p.Price == 3200 }},
		{EditCategory, "Audio", func(p *catalog.Product) bool { return p.Category == "audio" }},
	}
	for _, tc := range cases {
		p, err := EditProduct(ctx, database, EditProductInput{SellerID: 1, ProductID: "P1", Field: tc.field, Value: tc.value})
		if err != nil {
			t.Fatalf("EditProduct(%s) failed: %v", tc.field, err)
		}
		if !tc.check(p) {
			t.Errorf("EditProduct(%s) = %+v", tc.field, p)
		}
	}
}

func TestEditProduct_Rejections(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	registerSeller(t, database, 2, "")
	addProduct(t, database, "P1", 1)

	cases := []struct {
		name   string
		seller int64
		field  string
		value  string
		code   errors.ErrorCode
	}{
		{"empty value", 1, EditTitle, "   ", errors.ErrValidation},
		{"short title", 1, EditTitle, "ab", errors.ErrValidation},
		{"zero price", 1, EditPrice, "0", errors.ErrValidation},
		{"text price", 1, EditPrice, "cheap", errors.ErrValidation},
		{"unknown field", 1, "seller_id", "2", errors.ErrValidation},
		{"not owner", 2, EditTitle, "Mine now", errors.ErrPermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EditProduct(ctx, database, EditProductInput{SellerID: tc.seller, ProductID: "P1", Field: tc.field, Value: tc.value})
			if !errors.Is(err, tc.code) {
				t.Errorf("err = %v, want %s", err, tc.code)
			}
		})
	}

	p, _ := db.GetProduct(ctx, database, "P1")
	if p.Title != "Headphones" || *p.Price != 2500 {
		t.Errorf("product changed after rejections: %+v", p)
	}
}

func TestReplaceProductImage(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	dir := t.TempDir()

	p := addProduct(t, database, "P1", 1)
	oldMain := touch(t, filepath.Join(dir, "old_watermarked.jpg"))
	oldOrig := touch(t, filepath.Join(dir, "old.jpg"))
	if err := db.SetProductImage(ctx, database, p.ID, oldMain, oldOrig); err != nil {
		t.Fatal(err)
	}

	stamper := &copyStamper{}
	fresh := touch(t, filepath.Join(dir, "new.jpg"))
	got, err := ReplaceProductImage(ctx, database, stamper, ReplaceImageInput{
		SellerID: 1, ProductID: "P1", Path: fresh, BotUsername: "storebot",
	})
	if err != nil {
		t.Fatalf("ReplaceProductImage failed: %v", err)
	}
	if got.ImagePath != filepath.Join(dir, "new_watermarked.jpg") || got.OriginalImagePath != fresh {
		t.Errorf("images = %q, %q", got.ImagePath, got.OriginalImagePath)
	}
	if len(stamper.labels) != 1 || stamper.labels[0] == "" {
		t.Errorf("labels = %q", stamper.labels)
	}
	if exists(oldMain) || exists(oldOrig) {
		t.Error("previous image files not removed")
	}
	if !exists(got.ImagePath) || !exists(fresh) {
		t.Error("new image files missing")
	}
}

func TestReplaceProductImage_NotOwnerRemovesUpload(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	registerSeller(t, database, 2, "")
	addProduct(t, database, "P1", 1)

	fresh := touch(t, filepath.Join(t.TempDir(), "new.jpg"))
	_, err := ReplaceProductImage(ctx, database, &copyStamper{}, ReplaceImageInput{SellerID: 2, ProductID: "P1", Path: fresh})
	if !errors.Is(err, errors.ErrPermissionDenied) {
		t.Fatalf("err = %v, want PERMISSION_DENIED", err)
	}
	if exists(fresh) {
		t.Error("rejected upload left on disk")
	}
}

func TestDeleteProduct(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	registerSeller(t, database, 2, "")
	dir := t.TempDir()

	price := 10.0
	p := &catalog.Product{
		ID: "P1", SellerID: 1, Title: "Lamp", Price: &price, Type: catalog.TypeStandard,
		ImagePath:         touch(t, filepath.Join(dir, "a_watermarked.jpg")),
		OriginalImagePath: touch(t, filepath.Join(dir, "a.jpg")),
		IsActive:          true, IsPublic: true,
	}
	p.Fields.Gallery = []string{touch(t, filepath.Join(dir, "b_watermarked.jpg"))}
	if err := db.CreateProduct(ctx, database, p); err != nil {
		t.Fatal(err)
	}

	if _, err := DeleteProduct(ctx, database, 2, "P1"); !errors.Is(err, errors.ErrPermissionDenied) {
		t.Fatalf("not owner: err = %v", err)
	}
	if !exists(p.ImagePath) {
		t.Fatal("files removed on rejected delete")
	}

	deleted, err := DeleteProduct(ctx, database, 1, "P1")
	if err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if deleted.Title != "Lamp" {
		t.Errorf("deleted = %+v", deleted)
	}
	for _, f := range []string{p.ImagePath, p.OriginalImagePath, p.Fields.Gallery[0]} {
		if exists(f) {
			t.Errorf("%s still on disk", f)
		}
	}
	if _, err := db.GetProduct(ctx, database, "P1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetProduct err = %v, want NOT_FOUND", err)
	}
}

func TestPlaceOrder_ContactDetails(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	addProduct(t, database, "P1", 1)

	out, err := PlaceOrder(ctx, database, nil, PlaceOrderInput{
		Buyer:     catalog.User{ID: 77},
		ProductID: "P1",
		Quantity:  3,
		Phone:     " +251 922 000 000 ",
		Location:  "Bole, near Edna Mall",
		Now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if out.Order.Quantity != 3 || out.Order.Phone != "+251 922 000 000" || out.Order.Location != "Bole, near Edna Mall" {
		t.Errorf("order = %+v", out.Order)
	}

	stored, err := db.ListOrders(ctx, database, "P1")
	if err != nil || len(stored) != 1 || stored[0].Phone != out.Order.Phone {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	bad := []PlaceOrderInput{
		{Buyer: catalog.User{ID: 77}, ProductID: "P1", Quantity: 1001},
		{Buyer: catalog.User{ID: 77}, ProductID: "P1", Quantity: -1},
		{Buyer: catalog.User{ID: 77}, ProductID: "P1", Phone: "12"},
	}
	for _, in := range bad {
		if _, err := PlaceOrder(ctx, database, nil, in); !errors.Is(err, errors.ErrValidation) {
			t.Errorf("PlaceOrder(%+v) err = %v, want VALIDATION_ERROR", in, err)
		}
	}
}

func TestOrderInputParsers(t *testing.T) {
	if n, err := ParseQuantity(" 12 "); err != nil || n != 12 {
		t.Errorf("ParseQuantity(12) = %d, %v", n, err)
	}
	for _, s := range []string{"0", "1001", "two", ""} {
		if _, err := ParseQuantity(s); !errors.Is(err, errors.ErrValidation) {
			t.Errorf("ParseQuantity(%q) err = %v", s, err)
		}
	}

	if _, err := ParseOrderPhone("0911 22 33 44"); err != nil {
		t.Errorf("ParseOrderPhone: %v", err)
	}
	if _, err := ParseOrderPhone("call me"); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("ParseOrderPhone(call me) err = %v", err)
	}

	if loc, err := ParseOrderLocation("Skip"); err != nil || loc != "" {
		t.Errorf("ParseOrderLocation(Skip) = %q, %v", loc, err)
	}
	if loc, _ := ParseOrderLocation(" Piassa "); loc != "Piassa" {
		t.Errorf("ParseOrderLocation = %q", loc)
	}
	if got := FormatCoordinates(9.0301, 38.74); got != "Lat: 9.030100, Lon: 38.740000" {
		t.Errorf("FormatCoordinates = %q", got)
	}
}

func TestBrowseAndSearch(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	addProduct(t, database, "P1", 1)
	p2 := addProduct(t, database, "P2", 1)
	if _, err := EditProduct(ctx, database, EditProductInput{SellerID: 1, ProductID: p2.ID, Field: EditTitle, Value: "Galaxy Buds"}); err != nil {
		t.Fatal(err)
	}

	all, err := BrowseProducts(ctx, database)
	if err != nil || len(all) != 2 {
		t.Fatalf("BrowseProducts = %d, %v", len(all), err)
	}

	short, err := SearchProducts(ctx, database, "g")
	if err != nil || len(short) != 2 {
		t.Errorf("short query = %d, %v; want recent 2", len(short), err)
	}
	hits, err := SearchProducts(ctx, database, "buds")
	if err != nil || len(hits) != 1 || hits[0].ID != "P2" {
		t.Errorf("SearchProducts(buds) = %d, %v", len(hits), err)
	}

	if _, err := ToggleSave(ctx, database, 50, "P2"); err != nil {
		t.Fatal(err)
	}
	saved, err := SavedProducts(ctx, database, 50)
	if err != nil || len(saved) != 1 || saved[0].ID != "P2" {
		t.Errorf("SavedProducts = %d, %v", len(saved), err)
	}
}

func TestSellerBuyers(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	registerSeller(t, database, 1, "")
	addProduct(t, database, "P1", 1)

	if _, err := SellerBuyers(ctx, database, 77); !errors.Is(err, errors.ErrPermissionDenied) {
		t.Errorf("non-seller err = %v", err)
	}

	if _, err := PlaceOrder(ctx, database, nil, PlaceOrderInput{
		Buyer: catalog.User{ID: 77, Username: "hana"}, ProductID: "P1", Phone: "+251911000001",
	}); err != nil {
		t.Fatal(err)
	}
	buyers, err := SellerBuyers(ctx, database, 1)
	if err != nil {
		t.Fatalf("SellerBuyers failed: %v", err)
	}
	if len(buyers) != 1 || buyers[0].Username != "hana" || buyers[0].Phone != "+251911000001" {
		t.Errorf("buyers = %+v", buyers)
	}
}
