package web

import (
	"crypto/subtle"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/config"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

// Handlers contains HTTP route handlers.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
	onUpdate UpdateFunc
	secret   string
	log      *slog.Logger
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleWebhook handles POST /webhook/:secret. The secret must match both
// the path and, when sent, the secret header.
func (h *Handlers) HandleWebhook(c *gin.Context) {
	if !h.authorized(c) {
		h.log.Warn("webhook rejected", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return
	}

	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}
	h.onUpdate(u)
	c.Status(http.StatusOK)
}

func (h *Handlers) authorized(c *gin.Context) bool {
	if h.secret == "" {
		return true
	}
	if !secretEqual(c.Param("secret"), h.secret) {
		return false
	}
	if header := c.GetHeader(SecretHeader); header != "" && !secretEqual(header, h.secret) {
		return false
	}
	return true
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HandleProduct handles GET /products/:id, the public page of an active
// product. Each page view counts as a view.
func (h *Handlers) HandleProduct(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.publicProduct(c)
	if err != nil {
		h.renderer.renderError(c, err)
		return
	}
	seller, err := db.GetUser(ctx, h.db, p.SellerID)
	if err != nil {
		h.renderer.renderError(c, err)
		return
	}
	body, err := render.ProductHTML(p, seller)
	if err != nil {
		h.renderer.renderError(c, errors.NewInternal(err))
		return
	}
	if err := ops.RecordView(ctx, h.db, p.ID); err != nil {
		h.log.Warn("record view", "product_id", p.ID, "err", err)
	}

	h.renderer.renderPage(c, http.StatusOK, "product", ProductPageData{
		PageData: PageData{Title: productLabel(p), Version: h.renderer.version},
		Product:  p,
		Body:     body,
		Store:    seller.DisplayName(),
		SellerID: seller.ID,
		HasImage: p.ImagePath != "",
	})
}

// HandleProductImage handles GET /products/:id/image, the watermarked main image.
func (h *Handlers) HandleProductImage(c *gin.Context) {
	p, err := h.publicProduct(c)
	if err != nil {
		h.renderer.renderError(c, err)
		return
	}
	if p.ImagePath == "" {
		h.renderer.renderError(c, errors.NewNotFound("image", p.ID))
		return
	}
	if _, err := os.Stat(p.ImagePath); err != nil {
		h.renderer.renderError(c, errors.NewNotFound("image", p.ID))
		return
	}
	c.File(p.ImagePath)
}

// HandleStore handles GET /stores/:seller, a seller's active products.
func (h *Handlers) HandleStore(c *gin.Context) {
	ctx := c.Request.Context()
	sellerID, err := strconv.ParseInt(c.Param("seller"), 10, 64)
	if err != nil {
		h.renderer.renderError(c, errors.NewValidation("seller", "seller must be a numeric id"))
		return
	}
	seller, err := db.GetUser(ctx, h.db, sellerID)
	if err != nil {
		h.renderer.renderError(c, err)
		return
	}
	if !seller.IsSeller() {
		h.renderer.renderError(c, errors.NewNotFound("store", c.Param("seller")))
		return
	}
	out, err := ops.ListProducts(ctx, h.db, ops.ListProductsInput{
		SellerID:   sellerID,
		ActiveOnly: true,
		Limit:      parseIntParam(c, "limit", ops.DefaultListLimit),
		Offset:     parseIntParam(c, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(c, err)
		return
	}

	var public []*catalog.Product
	for _, p := range out.Items {
		if p.IsPublic {
			public = append(public, p)
		}
	}
	h.renderer.renderPage(c, http.StatusOK, "store", StorePageData{
		PageData: PageData{Title: seller.DisplayName(), Version: h.renderer.version},
		Store:    seller.DisplayName(),
		Channel:  seller.Channel,
		Products: public,
	})
}

// publicProduct loads the :id product and hides inactive or private ones.
func (h *Handlers) publicProduct(c *gin.Context) (*catalog.Product, error) {
	id := c.Param("id")
	p, err := db.GetProduct(c.Request.Context(), h.db, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive || !p.IsPublic {
		return nil, errors.NewNotFound("product", id)
	}
	return p, nil
}

// parseIntParam extracts an integer query parameter with a default value.
func parseIntParam(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
