package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

func buyerText(from int64, s string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 3,
		From:      &telegram.User{ID: from, FirstName: "Abel", Username: "abel"},
		Chat:      telegram.Chat{ID: from, Type: "private"},
		Text:      s,
	}}
}

func buyerContact(from int64, phone string) telegram.Update {
	u := buyerText(from, "")
	u.Message.Contact = &telegram.Contact{PhoneNumber: phone, UserID: from}
	return u
}

func buyerLocation(from int64, lat, lon float64) telegram.Update {
	u := buyerText(from, "")
	u.Message.Location = &telegram.Location{Latitude: lat, Longitude: lon}
	return u
}

func hasButton(kb render.Keyboard, data string) bool {
	for _, row := range kb {
		for _, btn := range row {
			if btn.Data == data {
				return true
			}
		}
	}
	return false
}

func TestOrderWithSharedLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "@samshop")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(42, render.CallbackOrder+"P1", nil))
	f.bot.HandleUpdate(ctx, buyerText(42, "0"))
	assert.Contains(t, f.api.lastTo("42").text, "between 1 and 1000")
	f.bot.HandleUpdate(ctx, buyerText(42, "1"))
	f.bot.HandleUpdate(ctx, buyerText(42, "0911 22 33 44"))
	f.bot.HandleUpdate(ctx, buyerLocation(42, 9.03, 38.74))

	orders, err := db.ListOrders(ctx, f.db, "P1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Lat: 9.030000, Lon: 38.740000", orders[0].Location)
	assert.Equal(t, "0911 22 33 44", orders[0].Phone)
}

func TestOrderSkipLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(42, render.CallbackOrder+"P1", nil))
	f.bot.HandleUpdate(ctx, buyerText(42, "3"))
	f.bot.HandleUpdate(ctx, buyerText(42, "+251922000000"))
	f.bot.HandleUpdate(ctx, buyerText(42, "skip"))

	orders, err := db.ListOrders(ctx, f.db, "P1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 3, orders[0].Quantity)
	assert.Empty(t, orders[0].Location)
	assert.NotContains(t, f.api.lastTo("10").text, "📍")
}

func TestOrderRejectedUpFront(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)
	require.NoError(t, db.SetButtonFlags(ctx, f.db, "P1", true, true, false))

	f.bot.HandleUpdate(ctx, callback(42, render.CallbackOrder+"P1", nil))

	answers := f.api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].text, "turned off")
	assert.Empty(t, f.api.byMethod("sendMessage"))
	_, err := db.GetPendingInput(ctx, f.db, 42)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestOrderPromptUndeliverable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)
	f.api.sendErr = map[string]error{"42": errors.NewPermissionDenied("bot was blocked by the user", "")}

	f.bot.HandleUpdate(ctx, callback(42, render.CallbackOrder+"P1", nil))

	answers := f.api.byMethod("answerCallbackQuery")
	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].text, "@storebot")
	_, err := db.GetPendingInput(ctx, f.db, 42)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "pending input kept: %v", err)
}

func TestEditMenuAndTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "@samshop")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(10, render.CallbackEdit+"P1", nil))
	menu := f.api.lastTo("10")
	for _, data := range []string{CallbackEditTitle, CallbackEditDesc, CallbackEditPrice, CallbackEditCategory, CallbackEditPhoto, CallbackEditButtons, CallbackDeleteProduct} {
		assert.True(t, hasButton(menu.kb, data+"P1"), "menu lacks %s", data)
	}

	f.bot.HandleUpdate(ctx, callback(10, CallbackEditTitle+"P1", nil))
	assert.Contains(t, f.api.lastTo("10").text, "Galaxy S21")

	f.bot.HandleUpdate(ctx, text(10, "ab"))
	assert.Contains(t, f.api.lastTo("10").text, "at least")

	f.bot.HandleUpdate(ctx, text(10, "Galaxy S22 Ultra"))
	assert.Contains(t, f.api.lastTo("10").text, "Title updated")

	p, err := db.GetProduct(ctx, f.db, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Galaxy S22 Ultra", p.Title)
	_, err = db.GetPendingInput(ctx, f.db, 10)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEditPriceAndCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(10, CallbackEditPrice+"P1", nil))
	f.bot.HandleUpdate(ctx, text(10, "1,350"))
	f.bot.HandleUpdate(ctx, callback(10, CallbackEditCategory+"P1", nil))
	f.bot.HandleUpdate(ctx, text(10, "Smartphones"))

	p, err := db.GetProduct(ctx, f.db, "P1")
	require.NoError(t, err)
	require.NotNil(t, p.Price)
	assert.Equal(t, 1350.0, *p.Price)
	assert.Equal(t, "smartphones", p.Category)
}

func TestEditByNonOwnerDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.seller(t, 11, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(11, CallbackEditDesc+"P1", nil))
	assert.Contains(t, f.api.lastTo("11").text, "don't own")
	_, err := db.GetPendingInput(ctx, f.db, 11)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestEditPhotoReplacesMainImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(10, CallbackEditPhoto+"P1", nil))
	f.bot.HandleUpdate(ctx, text(10, "here it comes"))
	assert.Contains(t, f.api.lastTo("10").text, "send a photo")

	f.bot.HandleUpdate(ctx, photo(10, "newpic", ""))
	assert.Contains(t, f.api.lastTo("10").text, "Photo updated")

	p, err := db.GetProduct(ctx, f.db, "P1")
	require.NoError(t, err)
	assert.Equal(t, f.bot.cfg.MediaDir, filepath.Dir(p.ImagePath))
	assert.Equal(t, p.ImagePath, p.OriginalImagePath)
	assert.Len(t, f.api.byMethod("download"), 1)
}

func TestDeleteProductNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(10, CallbackDeleteProduct+"P1", nil))
	assert.Contains(t, f.api.lastTo("10").text, deleteConfirmWord)
	f.bot.HandleUpdate(ctx, text(10, "delete"))
	assert.Contains(t, f.api.lastTo("10").text, "cancelled")
	_, err := db.GetProduct(ctx, f.db, "P1")
	require.NoError(t, err)

	f.bot.HandleUpdate(ctx, callback(10, CallbackDeleteProduct+"P1", nil))
	f.bot.HandleUpdate(ctx, text(10, "DELETE"))
	assert.Contains(t, f.api.lastTo("10").text, "deleted")
	_, err = db.GetProduct(ctx, f.db, "P1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCancelClearsPendingEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, callback(10, CallbackEditTitle+"P1", nil))
	f.bot.HandleUpdate(ctx, text(10, "/cancel"))
	assert.Contains(t, f.api.lastTo("10").text, "Cancelled")

	f.bot.HandleUpdate(ctx, text(10, "Galaxy S22 Ultra"))
	assert.Contains(t, f.api.lastTo("10").text, "/help")
	p, err := db.GetProduct(ctx, f.db, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Galaxy S21", p.Title)
}

func TestExpiredPendingEditIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)
	require.NoError(t, db.PutPendingInput(ctx, f.db, &db.PendingInput{
		UserID: 10, Action: actionEditTitle, ProductID: "P1",
		UpdatedAt: f.bot.now().Add(-pendingTTL - time.Minute),
	}))

	f.bot.HandleUpdate(ctx, text(10, "Galaxy S22 Ultra"))

	assert.Contains(t, f.api.lastTo("10").text, "/help")
	_, err := db.GetPendingInput(ctx, f.db, 10)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSavedAndBrowse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, buyerText(42, "/saved"))
	assert.Contains(t, f.api.lastTo("42").text, "no saved products")

	f.bot.HandleUpdate(ctx, callback(42, render.CallbackSave+"P1", nil))
	f.bot.HandleUpdate(ctx, buyerText(42, "/saved"))
	saved := f.api.lastTo("42").text
	assert.Contains(t, saved, "Galaxy S21")
	assert.Contains(t, saved, "P1")

	f.bot.HandleUpdate(ctx, buyerText(42, "/browse"))
	assert.Contains(t, f.api.lastTo("42").text, "Galaxy S21")
}

func TestBuyersListForSellerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, buyerText(42, "/buyers"))
	assert.Contains(t, f.api.lastTo("42").text, "only for sellers")

	f.bot.HandleUpdate(ctx, text(10, "/buyers"))
	assert.Contains(t, f.api.lastTo("10").text, "No orders yet")

	f.bot.HandleUpdate(ctx, callback(42, render.CallbackOrder+"P1", nil))
	f.bot.HandleUpdate(ctx, buyerText(42, "1"))
	f.bot.HandleUpdate(ctx, buyerText(42, "+251922000000"))
	f.bot.HandleUpdate(ctx, buyerText(42, "skip"))

	f.bot.HandleUpdate(ctx, text(10, "/buyers"))
	list := f.api.lastTo("10").text
	assert.Contains(t, list, "abel")
	assert.Contains(t, list, "+251922000000")
	assert.Contains(t, list, "1 order")
}

func TestInlineSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, telegram.Update{InlineQuery: &telegram.InlineQuery{
		ID: "iq1", From: telegram.User{ID: 42}, Query: "galaxy",
	}})
	require.Len(t, f.api.inline, 1)
	hit := f.api.inline[0]
	assert.Equal(t, "P1", hit.ID)
	assert.Equal(t, "Galaxy S21", hit.Title)
	assert.Contains(t, hit.Text, "Galaxy S21")
	require.Len(t, hit.Keyboard, 1)
	assert.True(t, strings.HasSuffix(hit.Keyboard[0][0].URL, "start=view_P1"), hit.Keyboard[0][0].URL)

	f.bot.HandleUpdate(ctx, telegram.Update{InlineQuery: &telegram.InlineQuery{
		ID: "iq2", From: telegram.User{ID: 42}, Query: "tractor",
	}})
	assert.Empty(t, f.api.inline)
	calls := f.api.byMethod("answerInlineQuery")
	require.Len(t, calls, 2)
	assert.Equal(t, "No products found", calls[1].text)
}

func TestStartDeepLinkShowsProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seller(t, 10, "")
	f.product(t, "P1", 10)

	f.bot.HandleUpdate(ctx, buyerText(42, "/start view_P1"))

	shown := f.api.byMethod("sendPhoto")
	require.Len(t, shown, 1)
	assert.Equal(t, "42", shown[0].chat)
	assert.Contains(t, shown[0].text, "Galaxy S21")
}
