package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/storebot/internal/catalog"
)

// ProductMarkdown renders a product as CommonMark for web pages. Unlike
// Caption it targets HTML output, so user text is escaped for CommonMark.
func ProductMarkdown(p *catalog.Product, seller *catalog.User) string {
	var b strings.Builder

	if p.Title != "" {
		b.WriteString("# " + commonMarkEscape(p.Title) + "\n\n")
	}
	if p.Price != nil {
		b.WriteString("**" + FormatPrice(*p.Price) + "**\n\n")
	}
	if p.Description != "" {
		for _, para := range strings.Split(p.Description, "\n") {
			if strings.TrimSpace(para) == "" {
				continue
			}
			b.WriteString(commonMarkEscape(para) + "\n\n")
		}
	}
	if p.Fields.Len() > 0 {
		for _, f := range p.Fields.Pairs() {
			b.WriteString("- **" + HumanizeKey(f.Key) + "**: " + commonMarkEscape(f.Value) + "\n")
		}
		b.WriteString("\n")
	}
	if p.Category != "" {
		b.WriteString("Category: " + commonMarkEscape(p.Category) + "\n\n")
	}
	if seller != nil {
		if name := seller.DisplayName(); name != "" {
			b.WriteString("Sold by **" + commonMarkEscape(name) + "**")
			if seller.Phone != "" {
				b.WriteString(" · " + commonMarkEscape(seller.Phone))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ProductHTML converts ProductMarkdown output to an HTML fragment.
func ProductHTML(p *catalog.Product, seller *catalog.User) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(ProductMarkdown(p, seller)), &buf); err != nil {
		return "", fmt.Errorf("render product %s: %w", p.ID, err)
	}
	return template.HTML(buf.String()), nil
}

// commonMarkEscape neutralizes inline markup and raw HTML in user text.
func commonMarkEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '#', '<', '>', '!', '|', '~':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
