package render

import (
	"fmt"
	"strings"

	"github.com/hpungsan/storebot/internal/catalog"
)

// EngagementRate is (likes + saves + orders) / max(views, 1) as a percentage.
func EngagementRate(p *catalog.Product) float64 {
	views := p.ViewsCount
	if views < 1 {
		views = 1
	}
	return float64(p.LikesCount+p.SavesCount+p.OrdersCount) / float64(views) * 100
}

// StatsText renders the owner's statistics message for a product.
func StatsText(p *catalog.Product, itemsSold, pendingOrders int) string {
	price := 0.0
	if p.Price != nil {
		price = *p.Price
	}
	status := "✅ Active"
	if !p.IsActive {
		status = "❌ Inactive"
	}
	visibility := "🌍 Public"
	if !p.IsPublic {
		visibility = "🔒 Private"
	}
	category := p.Category
	if category == "" {
		category = "Uncategorized"
	}
	title := p.Title
	if title == "" {
		title = "Untitled"
	}

	var b strings.Builder
	b.WriteString("📊 **Product Statistics**\n\n")
	b.WriteString("**" + EscapeMarkdown(title) + "**\n")
	b.WriteString(strings.Repeat("─", 30) + "\n\n")
	b.WriteString("💰 **Sales Performance:**\n")
	fmt.Fprintf(&b, "• Total Orders: %d\n", p.OrdersCount)
	fmt.Fprintf(&b, "• Items Sold: %d\n", itemsSold)
	fmt.Fprintf(&b, "• Revenue: %s\n", EscapeMarkdown(FormatPrice(float64(itemsSold)*price)))
	fmt.Fprintf(&b, "• Pending Orders: %d\n\n", pendingOrders)
	b.WriteString("📈 **Engagement:**\n")
	fmt.Fprintf(&b, "• Views: %d\n", p.ViewsCount)
	fmt.Fprintf(&b, "• Likes: %d ❤️\n", p.LikesCount)
	fmt.Fprintf(&b, "• Saves: %d 💾\n", p.SavesCount)
	fmt.Fprintf(&b, "• Engagement Rate: %.1f%%\n\n", EngagementRate(p))
	b.WriteString("📅 **Timeline:**\n")
	fmt.Fprintf(&b, "• Created: %s\n", p.CreatedAt.Format("Jan 02, 2006 at 03:04 PM"))
	fmt.Fprintf(&b, "• Status: %s\n", status)
	fmt.Fprintf(&b, "• Visibility: %s\n\n", visibility)
	b.WriteString("💵 **Pricing:**\n")
	if p.Price != nil {
		fmt.Fprintf(&b, "• Current Price: %s\n", EscapeMarkdown(FormatPrice(price)))
	}
	fmt.Fprintf(&b, "• Category: %s", EscapeMarkdown(category))
	return b.String()
}
