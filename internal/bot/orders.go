package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

// orderProgress is the answers collected so far, kept with the pending input.
type orderProgress struct {
	Quantity int    `json:"quantity"`
	Phone    string `json:"phone,omitempty"`
}

const (
	phonePrompt    = "📞 Send your phone number so the seller can reach you."
	locationPrompt = "📍 Send your delivery location as text or share it from the attachment menu.\n\nType *skip* to leave it out."
)

// startOrder checks the product and asks the buyer, in the private chat, how
// many they want. It returns the alert shown on the button press.
func (b *Bot) startOrder(ctx context.Context, from *telegram.User, productID string) string {
	p, err := db.GetProduct(ctx, b.db, productID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "This product is no longer available."
		}
		b.log.Error("start order", "user_id", from.ID, "product_id", productID, "err", err)
		return "Could not start the order. Please try again."
	}
	if !p.IsActive {
		return "This product is no longer available."
	}
	if !p.OrderEnabled {
		return "Ordering is turned off for this product."
	}

	if err := b.setPending(ctx, from.ID, actionOrderQuantity, p.ID, nil); err != nil {
		b.log.Error("start order", "user_id", from.ID, "product_id", productID, "err", err)
		return "Could not start the order. Please try again."
	}
	text := fmt.Sprintf("🛒 **Ordering** *%s*\n\nHow many would you like? Send a number from 1 to %d.\n\n/cancel to stop.",
		render.EscapeMarkdown(productLabel(p)), ops.MaxOrderQuantity)
	if _, err := b.api.SendMessage(ctx, chatID(from.ID), text, nil); err != nil {
		b.log.Info("order prompt undeliverable", "user_id", from.ID, "err", err)
		b.clearPending(ctx, from.ID)
		return fmt.Sprintf("Open a private chat with @%s and press Start, then tap Order again.", b.cfg.BotUsername)
	}
	return "🛒 Continue your order in the private chat with the bot."
}

// continueOrder takes the next answer of the order conversation. Invalid
// answers keep the current question open.
func (b *Bot) continueOrder(ctx context.Context, m *telegram.Message, p *db.PendingInput) {
	userID := m.From.ID
	var progress orderProgress
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &progress); err != nil {
			b.log.Warn("decode order progress", "user_id", userID, "err", err)
			b.clearPending(ctx, userID)
			b.reply(ctx, userID, "❌ Your order expired. Please tap Order again.", nil)
			return
		}
	}

	switch p.Action {
	case actionOrderQuantity:
		n, err := ops.ParseQuantity(m.Text)
		if err != nil {
			b.replyError(ctx, userID, "order quantity", err)
			return
		}
		progress.Quantity = n
		b.advanceOrder(ctx, userID, p.ProductID, actionOrderPhone, progress, phonePrompt)

	case actionOrderPhone:
		text := m.Text
		if m.Contact != nil {
			text = m.Contact.PhoneNumber
		}
		phone, err := ops.ParseOrderPhone(text)
		if err != nil {
			b.replyError(ctx, userID, "order phone", err)
			return
		}
		progress.Phone = phone
		b.advanceOrder(ctx, userID, p.ProductID, actionOrderLocation, progress, locationPrompt)

	case actionOrderLocation:
		var location string
		if m.Location != nil {
			location = ops.FormatCoordinates(m.Location.Latitude, m.Location.Longitude)
		} else {
			var err error
			if location, err = ops.ParseOrderLocation(m.Text); err != nil {
				b.replyError(ctx, userID, "order location", err)
				return
			}
		}
		b.clearPending(ctx, userID)
		b.placeOrder(ctx, m.From, p.ProductID, progress, location)
	}
}

func (b *Bot) advanceOrder(ctx context.Context, userID int64, productID, next string, progress orderProgress, prompt string) {
	data, err := json.Marshal(progress)
	if err != nil {
		b.replyError(ctx, userID, "order", errors.NewInternal(err))
		return
	}
	if err := b.setPending(ctx, userID, next, productID, data); err != nil {
		b.replyError(ctx, userID, "order", err)
		return
	}
	b.reply(ctx, userID, prompt, nil)
}

// placeOrder records the order and notifies buyer and seller privately.
func (b *Bot) placeOrder(ctx context.Context, from *telegram.User, productID string, progress orderProgress, location string) {
	out, err := ops.PlaceOrder(ctx, b.db, b.events, ops.PlaceOrderInput{
		Buyer:     *userFrom(from),
		ProductID: productID,
		Quantity:  progress.Quantity,
		Phone:     progress.Phone,
		Location:  location,
		Now:       b.now(),
	})
	if err != nil {
		b.replyError(ctx, from.ID, "place order", err)
		return
	}
	b.log.Info("order placed", "order_id", out.Order.ID, "product_id", out.Product.ID,
		"buyer_id", out.Buyer.ID, "quantity", out.Order.Quantity)

	title := render.EscapeMarkdown(productLabel(out.Product))
	details := fmt.Sprintf("Quantity: %d", out.Order.Quantity)
	if out.Product.Price != nil {
		details += "\nTotal: " + render.EscapeMarkdown(render.FormatPrice(*out.Product.Price*float64(out.Order.Quantity)))
	}

	buyerText := fmt.Sprintf("🛒 **Order received**\n\n%s\n%s\n\nThe seller *%s* will contact you soon.",
		title, details, render.EscapeMarkdown(out.Seller.DisplayName()))
	if out.Seller.Phone != "" {
		buyerText += "\n📞 " + render.EscapeMarkdown(out.Seller.Phone)
	}
	if err := b.publisher.Notify(ctx, out.Buyer.ID, buyerText, nil); err != nil {
		b.log.Warn("notify buyer", "user_id", out.Buyer.ID, "err", err)
	}

	buyer := out.Buyer.DisplayName()
	if out.Buyer.Username != "" {
		buyer += " (@" + out.Buyer.Username + ")"
	}
	sellerText := fmt.Sprintf("🛒 **New order**\n\n%s\nFrom: %s\n%s",
		title, render.EscapeMarkdown(buyer), details)
	if out.Order.Phone != "" {
		sellerText += "\n📞 " + render.EscapeMarkdown(out.Order.Phone)
	}
	if out.Order.Location != "" {
		sellerText += "\n📍 " + render.EscapeMarkdown(out.Order.Location)
	}
	if err := b.publisher.Notify(ctx, out.Seller.ID, sellerText, nil); err != nil {
		b.log.Warn("notify seller", "user_id", out.Seller.ID, "err", err)
	}
}
