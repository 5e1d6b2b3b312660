package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

// Callback data of the product edit menu. They share the "edit_" prefix with
// render.CallbackEdit and must be matched before it.
const (
	CallbackEditTitle     = "edit_title_"
	CallbackEditDesc      = "edit_desc_"
	CallbackEditPrice     = "edit_price_"
	CallbackEditCategory  = "edit_category_"
	CallbackEditPhoto     = "edit_photo_"
	CallbackEditButtons   = "edit_buttons_"
	CallbackDeleteProduct = "delete_product_"
)

// Pending input actions: what the user's next message answers.
const (
	actionEditTitle     = "edit_title"
	actionEditDesc      = "edit_description"
	actionEditPrice     = "edit_price"
	actionEditCategory  = "edit_category"
	actionEditPhoto     = "edit_photo"
	actionDeleteConfirm = "delete_confirm"
	actionOrderQuantity = "order_quantity"
	actionOrderPhone    = "order_phone"
	actionOrderLocation = "order_location"
)

// pendingTTL expires prompts the user walked away from.
const pendingTTL = 30 * time.Minute

// deleteConfirmWord must be typed exactly to delete a product.
const deleteConfirmWord = "DELETE"

var editFields = map[string]string{
	actionEditTitle:    ops.EditTitle,
	actionEditDesc:     ops.EditDescription,
	actionEditPrice:    ops.EditPrice,
	actionEditCategory: ops.EditCategory,
}

// editMenu lists what the owner can change about a product.
func (b *Bot) editMenu(ctx context.Context, userID int64, productID string) {
	p, err := ops.SellerProduct(ctx, b.db, userID, productID)
	if err != nil {
		b.replyError(ctx, userID, "edit menu", err)
		return
	}
	kb := render.Keyboard{
		{{Text: "📝 Title", Data: CallbackEditTitle + p.ID}, {Text: "📄 Description", Data: CallbackEditDesc + p.ID}},
		{{Text: "💰 Price", Data: CallbackEditPrice + p.ID}, {Text: "🏷 Category", Data: CallbackEditCategory + p.ID}},
		{{Text: "🖼 Photo", Data: CallbackEditPhoto + p.ID}, {Text: "🔘 Buttons", Data: CallbackEditButtons + p.ID}},
		{{Text: "🗑 Delete", Data: CallbackDeleteProduct + p.ID}},
		{{Text: "⬅️ Back", Data: render.CallbackNav + "0"}},
	}
	b.reply(ctx, userID, fmt.Sprintf("✏️ **Edit** *%s*\n\nWhat would you like to change?",
		render.EscapeMarkdown(productLabel(p))), kb)
}

// askEdit stores the pending edit and prompts for the new value.
func (b *Bot) askEdit(ctx context.Context, userID int64, productID, action string) {
	p, err := ops.SellerProduct(ctx, b.db, userID, productID)
	if err != nil {
		b.replyError(ctx, userID, "edit product", err)
		return
	}

	var text string
	switch action {
	case actionEditTitle:
		text = "📝 Send the new title.\n\nCurrent: " + render.EscapeMarkdown(orNone(p.Title))
	case actionEditDesc:
		text = "📄 Send the new description.\n\nCurrent: " + render.EscapeMarkdown(orNone(p.Description))
	case actionEditPrice:
		current := "none"
		if p.Price != nil {
			current = render.FormatPrice(*p.Price)
		}
		text = "💰 Send the new price (numbers only).\n\nCurrent: " + render.EscapeMarkdown(current)
	case actionEditCategory:
		text = "🏷 Send the new category.\n\nCurrent: " + render.EscapeMarkdown(orNone(p.Category))
	case actionEditPhoto:
		text = "🖼 Send the new main photo."
	case actionDeleteConfirm:
		text = fmt.Sprintf("⚠️ Delete *%s*?\n\nIts likes, orders and schedules go with it. "+
			"Type %s to confirm, or anything else to keep it.",
			render.EscapeMarkdown(productLabel(p)), deleteConfirmWord)
	}

	if err := b.setPending(ctx, userID, action, p.ID, nil); err != nil {
		b.replyError(ctx, userID, "edit product", err)
		return
	}
	b.reply(ctx, userID, text+"\n\n/cancel to stop.", nil)
}

func (b *Bot) setPending(ctx context.Context, userID int64, action, productID string, data []byte) error {
	return db.PutPendingInput(ctx, b.db, &db.PendingInput{
		UserID:    userID,
		Action:    action,
		ProductID: productID,
		Data:      data,
		UpdatedAt: b.now(),
	})
}

// pending loads the user's live pending input. Expired ones are removed.
func (b *Bot) pending(ctx context.Context, userID int64) *db.PendingInput {
	p, err := db.GetPendingInput(ctx, b.db, userID)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			b.log.Warn("load pending input", "user_id", userID, "err", err)
		}
		return nil
	}
	if b.now().Sub(p.UpdatedAt) > pendingTTL {
		b.clearPending(ctx, userID)
		return nil
	}
	return p
}

func (b *Bot) clearPending(ctx context.Context, userID int64) {
	if err := db.DeletePendingInput(ctx, b.db, userID); err != nil {
		b.log.Warn("clear pending input", "user_id", userID, "err", err)
	}
}

// consumePending feeds a message to the prompt it answers. It reports false
// when nothing was waiting for the user.
func (b *Bot) consumePending(ctx context.Context, m *telegram.Message) bool {
	userID := m.From.ID
	p := b.pending(ctx, userID)
	if p == nil {
		return false
	}

	switch p.Action {
	case actionEditTitle, actionEditDesc, actionEditPrice, actionEditCategory:
		b.applyEdit(ctx, userID, p, m.Text)
	case actionEditPhoto:
		b.reply(ctx, userID, "🖼 Please send a photo, or /cancel to stop.", nil)
	case actionDeleteConfirm:
		b.clearPending(ctx, userID)
		b.confirmDelete(ctx, userID, p.ProductID, strings.TrimSpace(m.Text))
	case actionOrderQuantity, actionOrderPhone, actionOrderLocation:
		b.continueOrder(ctx, m, p)
	default:
		b.log.Warn("unknown pending action", "user_id", userID, "action", p.Action)
		b.clearPending(ctx, userID)
		return false
	}
	return true
}

// applyEdit stores an edited value. Invalid input keeps the prompt open.
func (b *Bot) applyEdit(ctx context.Context, userID int64, p *db.PendingInput, text string) {
	field := editFields[p.Action]
	prod, err := ops.EditProduct(ctx, b.db, ops.EditProductInput{
		SellerID:  userID,
		ProductID: p.ProductID,
		Field:     field,
		Value:     text,
	})
	if err != nil {
		if !errors.Is(err, errors.ErrValidation) {
			b.clearPending(ctx, userID)
		}
		b.replyError(ctx, userID, "edit product", err)
		return
	}
	b.clearPending(ctx, userID)
	b.log.Info("product edited", "user_id", userID, "product_id", prod.ID, "field", field)
	b.reply(ctx, userID, fmt.Sprintf("✅ %s updated.", strings.ToUpper(field[:1])+field[1:]), editedKeyboard(prod))
}

// replacePhoto swaps the product's main image for the downloaded photo.
func (b *Bot) replacePhoto(ctx context.Context, m *telegram.Message, p *db.PendingInput) {
	userID := m.From.ID
	size, _ := m.LargestPhoto()
	path, err := b.download(ctx, size.FileID)
	if err != nil {
		b.log.Warn("download photo", "user_id", userID, "file_id", size.FileID, "err", err)
		b.reply(ctx, userID, "❌ Could not receive that photo. Please send it again.", nil)
		return
	}
	b.clearPending(ctx, userID)

	prod, err := ops.ReplaceProductImage(ctx, b.db, b.stamper, ops.ReplaceImageInput{
		SellerID:    userID,
		ProductID:   p.ProductID,
		Path:        path,
		BotUsername: b.cfg.BotUsername,
	})
	if err != nil {
		b.replyError(ctx, userID, "replace photo", err)
		return
	}
	b.log.Info("product photo replaced", "user_id", userID, "product_id", prod.ID)
	b.reply(ctx, userID, "✅ Photo updated.", editedKeyboard(prod))
}

func (b *Bot) confirmDelete(ctx context.Context, userID int64, productID, answer string) {
	if answer != deleteConfirmWord {
		b.reply(ctx, userID, "👍 Deletion cancelled. The product is unchanged.", nil)
		return
	}
	p, err := ops.DeleteProduct(ctx, b.db, userID, productID)
	if err != nil {
		b.replyError(ctx, userID, "delete product", err)
		return
	}
	b.log.Info("product deleted", "user_id", userID, "product_id", p.ID)
	b.reply(ctx, userID, fmt.Sprintf("🗑 *%s* deleted.", render.EscapeMarkdown(productLabel(p))),
		render.Row(render.Button{Text: "📦 My products", Data: render.CallbackNav + "0"}))
}

func editedKeyboard(p *catalog.Product) render.Keyboard {
	return render.Keyboard{{
		{Text: "✏️ Edit more", Data: render.CallbackEdit + p.ID},
		{Text: "📦 My products", Data: render.CallbackNav + "0"},
	}}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
