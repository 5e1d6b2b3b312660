package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

// inlineCacheSeconds is how long clients may reuse an inline answer.
const inlineCacheSeconds = 30

func (b *Bot) saved(ctx context.Context, userID int64) {
	products, err := ops.SavedProducts(ctx, b.db, userID)
	if err != nil {
		b.replyError(ctx, userID, "saved products", err)
		return
	}
	if len(products) == 0 {
		b.reply(ctx, userID, "💾 You have no saved products yet. Tap Save under a product to keep it here.", nil)
		return
	}
	b.reply(ctx, userID, productList("💾 **Saved products**", products), nil)
}

func (b *Bot) browse(ctx context.Context, userID int64) {
	products, err := ops.BrowseProducts(ctx, b.db)
	if err != nil {
		b.replyError(ctx, userID, "browse products", err)
		return
	}
	if len(products) == 0 {
		b.reply(ctx, userID, "🛍 No products yet. Check back soon.", nil)
		return
	}
	b.reply(ctx, userID, productList("🛍 **Latest products**", products), nil)
}

func (b *Bot) buyers(ctx context.Context, userID int64) {
	list, err := ops.SellerBuyers(ctx, b.db, userID)
	if err != nil {
		b.replyError(ctx, userID, "list buyers", err)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, userID, "👥 No orders yet. Buyers show up here after their first order.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("👥 **Your buyers**\n")
	for i, buyer := range list {
		sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, render.EscapeMarkdown(buyerName(buyer))))
		if buyer.Phone != "" {
			sb.WriteString(" 📞 " + render.EscapeMarkdown(buyer.Phone))
		}
		sb.WriteString(fmt.Sprintf(" (%d %s)", buyer.Orders, plural(buyer.Orders, "order", "orders")))
	}
	b.reply(ctx, userID, sb.String(), nil)
}

// handleInline answers an inline search with matching public products.
func (b *Bot) handleInline(ctx context.Context, q *telegram.InlineQuery) {
	products, err := ops.SearchProducts(ctx, b.db, q.Query)
	if err != nil {
		b.log.Warn("inline search", "user_id", q.From.ID, "err", err)
		products = nil
	}

	sellers := map[int64]*catalog.User{}
	results := make([]telegram.InlineArticle, 0, len(products))
	for _, p := range products {
		seller, ok := sellers[p.SellerID]
		if !ok {
			if seller, err = db.GetUser(ctx, b.db, p.SellerID); err != nil {
				b.log.Warn("inline search seller", "seller_id", p.SellerID, "err", err)
				continue
			}
			sellers[p.SellerID] = seller
		}
		rc := render.Context{ForChannel: true, SellerName: seller.DisplayName(), SellerPhone: seller.Phone}
		results = append(results, telegram.InlineArticle{
			ID:          p.ID,
			Title:       productLabel(p),
			Description: inlineDescription(p),
			Text:        render.Caption(p, rc),
			Keyboard:    render.Row(render.Button{Text: "🛒 View in bot", URL: b.deepLink("view_" + p.ID)}),
		})
	}

	if err := b.api.AnswerInlineQuery(ctx, q.ID, results, inlineCacheSeconds, "No products found"); err != nil {
		b.log.Warn("answer inline query", "user_id", q.From.ID, "err", err)
	}
}

// deepLink opens the private chat with /start payload.
func (b *Bot) deepLink(payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", b.cfg.BotUsername, payload)
}

// productList renders products as lines with a /view shortcut each.
func productList(header string, products []*catalog.Product) string {
	var sb strings.Builder
	sb.WriteString(header + "\n")
	for _, p := range products {
		line := "\n• *" + render.EscapeMarkdown(productLabel(p)) + "*"
		if p.Price != nil {
			line += " - " + render.EscapeMarkdown(render.FormatPrice(*p.Price))
		}
		sb.WriteString(line + "\n  " + render.EscapeMarkdown("/view_"+p.ID) + "\n")
	}
	return sb.String()
}

func inlineDescription(p *catalog.Product) string {
	var parts []string
	if p.Price != nil {
		parts = append(parts, render.FormatPrice(*p.Price))
	}
	if p.Category != "" {
		parts = append(parts, p.Category)
	}
	return strings.Join(parts, " · ")
}

func buyerName(buyer *db.Buyer) string {
	name := buyer.FirstName
	if name == "" {
		name = fmt.Sprintf("User %d", buyer.UserID)
	}
	if buyer.Username != "" {
		name += " (@" + buyer.Username + ")"
	}
	return name
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
