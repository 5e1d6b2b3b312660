package render

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/hpungsan/storebot/internal/catalog"
)

// Divider separates the title header from the body.
const Divider = "━━━━━━━━━━━━━━━━━━━━"

// SoldSuffix is appended to titles of sold products.
const SoldSuffix = " ⚠️ Sold ⚠️"

// Context controls how a product is rendered for a given audience.
type Context struct {
	// ForChannel renders the public channel variant
	ForChannel bool
	// ShowAdminButtons adds the owner's stats/edit/sold rows
	ShowAdminButtons bool
	// ShowPostButton adds the "post to channel" row
	ShowPostButton bool
	// CurrentIndex and TotalCount drive carousel navigation; TotalCount <= 1 hides it
	CurrentIndex int
	TotalCount   int

	SellerName  string
	SellerPhone string

	// TitleOverride replaces the product title (used for sold markers). It is
	// escaped like any other title.
	TitleOverride string
}

// markdownSpecials are the control characters escaped in user text. Plain
// punctuation such as '.', '-' and parentheses is left untouched.
var markdownSpecials = "_*[]~`>#+=|{}!"

// EscapeMarkdown prefixes every control character with a backslash.
func EscapeMarkdown(text string) string {
	if !strings.ContainsAny(text, markdownSpecials) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatPrice renders an amount with thousands separators and two decimals.
func FormatPrice(price float64) string {
	s := strconv.FormatFloat(price, 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + "." + frac + " Birr"
}

// HumanizeKey turns a field key into a label: "fuel_type" becomes "Fuel Type".
func HumanizeKey(key string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range strings.ReplaceAll(key, "_", " ") {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}

// Caption renders the product text block.
func Caption(p *catalog.Product, rc Context) string {
	title := p.Title
	if rc.TitleOverride != "" {
		title = rc.TitleOverride
	}

	if p.Type == catalog.TypeCustomDescription {
		return customCaption(p, title, rc)
	}

	var b strings.Builder
	b.WriteString("🛍️ **" + EscapeMarkdown(title) + "**\n")
	b.WriteString(Divider + "\n\n")

	if p.Description != "" {
		b.WriteString(EscapeMarkdown(p.Description) + "\n\n")
	}

	if p.Fields.Len() > 0 {
		for _, f := range p.Fields.Pairs() {
			b.WriteString("• **" + HumanizeKey(f.Key) + "**: " + EscapeMarkdown(f.Value) + "\n")
		}
		b.WriteString("\n")
	}

	if p.Price != nil && *p.Price != 0 {
		b.WriteString("💰 **" + EscapeMarkdown(FormatPrice(*p.Price)) + "**\n")
	}
	if p.Category != "" {
		b.WriteString("📂 " + EscapeMarkdown(p.Category) + "\n")
	}

	if rc.SellerName != "" || rc.SellerPhone != "" {
		b.WriteString("\n")
		writeSeller(&b, rc)
	}
	return b.String()
}

func customCaption(p *catalog.Product, title string, rc Context) string {
	if rc.ForChannel {
		return EscapeMarkdown(p.Description)
	}

	var b strings.Builder
	if title != "" {
		b.WriteString("🛍️ **" + EscapeMarkdown(title) + "**\n")
		b.WriteString(Divider + "\n\n")
	}
	if p.Price != nil && *p.Price != 0 {
		b.WriteString("💰 **" + EscapeMarkdown(FormatPrice(*p.Price)) + "**\n\n")
	}
	b.WriteString(EscapeMarkdown(p.Description))

	if rc.SellerName != "" || rc.SellerPhone != "" {
		b.WriteString("\n\n")
		writeSeller(&b, rc)
	}
	return b.String()
}

func writeSeller(b *strings.Builder, rc Context) {
	if rc.SellerName != "" {
		b.WriteString("👤 **" + EscapeMarkdown(rc.SellerName) + "**\n")
	}
	if rc.SellerPhone != "" {
		b.WriteString("📞 " + EscapeMarkdown(rc.SellerPhone) + "\n")
	}
}

// Render returns the caption and keyboard for a product.
func Render(p *catalog.Product, rc Context) (string, Keyboard) {
	return Caption(p, rc), Buttons(p, rc)
}
