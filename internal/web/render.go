package web

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/render"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
}

// ProductPageData is the template data for a public product page.
type ProductPageData struct {
	PageData
	Product  *catalog.Product
	Body     template.HTML
	Store    string
	SellerID int64
	HasImage bool
}

// StorePageData is the template data for a seller's storefront.
type StorePageData struct {
	PageData
	Store    string
	Channel  string
	Products []*catalog.Product
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

const layoutHTML = `{{define "layout"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<main>{{template "content" .}}</main>
<footer>storebot {{.Version}}</footer>
</body>
</html>{{end}}`

const productHTML = `{{define "content"}}<article class="product">
{{if .HasImage}}<img src="/products/{{.Product.ID}}/image" alt="{{.Title}}">{{end}}
{{.Body}}
{{if .Product.HasCustomButton}}<p><a href="{{.Product.CustomButtonURL}}">{{.Product.CustomButtonText}}</a></p>{{end}}
<p class="counters">❤️ {{.Product.LikesCount}} · 💾 {{.Product.SavesCount}} · 👁️ {{.Product.ViewsCount}}</p>
<p><a href="/stores/{{.SellerID}}">More from {{.Store}}</a></p>
</article>{{end}}`

const storeHTML = `{{define "content"}}<section class="store">
<h1>{{.Store}}</h1>
{{if .Channel}}<p>Channel: {{.Channel}}</p>{{end}}
{{if .Products}}<ul>
{{range .Products}}<li><a href="/products/{{.ID}}">{{label .}}</a>{{with .Price}} · {{price .}}{{end}}</li>
{{end}}</ul>{{else}}<p>No products yet.</p>{{end}}
</section>{{end}}`

const errorHTML = `{{define "content"}}<section class="error">
<h1>{{.StatusCode}}</h1>
<p>{{.Message}}</p>
</section>{{end}}`

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *slog.Logger
}

// NewRenderer parses the page templates.
func NewRenderer(version string, log *slog.Logger) *Renderer {
	funcMap := template.FuncMap{
		"price": func(p *float64) string { return render.FormatPrice(*p) },
		"label": productLabel,
	}

	layout := template.Must(template.New("layout").Funcs(funcMap).Parse(layoutHTML))
	pages := map[string]string{
		"product": productHTML,
		"store":   storeHTML,
		"error":   errorHTML,
	}
	templates := make(map[string]*template.Template, len(pages))
	for name, src := range pages {
		t := template.Must(layout.Clone())
		template.Must(t.Parse(src))
		templates[name] = t
	}
	return &Renderer{templates: templates, version: version, log: log}
}

// renderPage renders a named page with the given status.
func (r *Renderer) renderPage(c *gin.Context, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error("template not found", "name", name)
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.log.Error("template execution", "name", name, "err", err)
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// renderError answers with JSON when the client asks for it and with the
// error page otherwise.
func (r *Renderer) renderError(c *gin.Context, err error) {
	se, ok := errors.As(err)
	if !ok {
		se = errors.NewInternal(err)
	}
	if se.Code == errors.ErrInternal {
		r.log.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}

	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(se.Status, gin.H{"error": gin.H{
			"code":    string(se.Code),
			"message": se.Message,
			"status":  se.Status,
		}})
		return
	}
	r.renderPage(c, se.Status, "error", ErrorPageData{
		PageData:   PageData{Title: http.StatusText(se.Status), Version: r.version},
		StatusCode: se.Status,
		Message:    se.Message,
	})
}

func productLabel(p *catalog.Product) string {
	if p.Title != "" {
		return p.Title
	}
	d := []rune(strings.TrimSpace(p.Description))
	if len(d) > 40 {
		return string(d[:40]) + "…"
	}
	return string(d)
}
