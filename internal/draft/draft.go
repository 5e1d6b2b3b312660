package draft

import (
	"fmt"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
)

// State is the intake step a draft is waiting on.
type State string

const (
	ChoosingType       State = "choosing_type"
	ChoosingCategory   State = "choosing_category"
	CollectingPhotos   State = "collecting_photos"
	SelectingMainImage State = "selecting_main_image"
	WaitingTitle       State = "waiting_title"
	WaitingDescription State = "waiting_description"
	WaitingPrice       State = "waiting_price"
	CollectingFields   State = "collecting_category_fields"
	Previewing         State = "previewing"
)

// InTextPhase reports whether the draft has finished with images.
func (s State) InTextPhase() bool {
	switch s {
	case WaitingTitle, WaitingDescription, WaitingPrice, CollectingFields, Previewing:
		return true
	}
	return false
}

// Photo is one downloaded, not yet stamped image.
type Photo struct {
	OriginalPath string `json:"original_path"`
	SourceID     string `json:"source_id,omitempty"`
}

// Draft is a user's in-progress product.
type Draft struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
	State     State  `json:"state"`

	ProductType catalog.ProductType `json:"product_type,omitempty"`
	Category    string              `json:"category,omitempty"`

	CollectedPhotos []Photo `json:"collected_photos,omitempty"`

	// AllImages[i] is the stamped copy of AllOriginalImages[i]
	AllImages         []string `json:"all_images,omitempty"`
	AllOriginalImages []string `json:"all_original_images,omitempty"`
	MainImageIndex    *int     `json:"main_image_index,omitempty"`

	Title          string               `json:"title,omitempty"`
	Description    string               `json:"description,omitempty"`
	Price          *float64             `json:"price,omitempty"`
	Fields         []catalog.FieldValue `json:"fields,omitempty"`
	FieldIndex     int                  `json:"field_index,omitempty"`
	DescriptionSet bool                 `json:"description_set,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (d *Draft) Clone() *Draft {
	c := *d
	c.CollectedPhotos = append([]Photo(nil), d.CollectedPhotos...)
	c.AllImages = append([]string(nil), d.AllImages...)
	c.AllOriginalImages = append([]string(nil), d.AllOriginalImages...)
	c.Fields = append([]catalog.FieldValue(nil), d.Fields...)
	if d.MainImageIndex != nil {
		i := *d.MainImageIndex
		c.MainImageIndex = &i
	}
	if d.Price != nil {
		p := *d.Price
		c.Price = &p
	}
	return &c
}

// Expired reports whether the draft has been idle longer than ttl. A zero ttl never expires.
func (d *Draft) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(d.UpdatedAt) > ttl
}

// CategoryFields returns the field definitions still relevant to this draft.
func (d *Draft) CategoryFields() []catalog.FieldDef {
	if d.ProductType != catalog.TypeStandard {
		return nil
	}
	c, ok := catalog.LookupCategory(d.Category)
	if !ok {
		return nil
	}
	return c.Fields
}

// Files lists every image file the draft references, originals first.
func (d *Draft) Files() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range d.CollectedPhotos {
		add(p.OriginalPath)
	}
	for _, p := range d.AllOriginalImages {
		add(p)
	}
	for _, p := range d.AllImages {
		add(p)
	}
	return out
}

// Check verifies the structural invariants and the fields the current state requires.
func (d *Draft) Check(maxPhotos int) error {
	if len(d.CollectedPhotos) > maxPhotos {
		return fmt.Errorf("draft has %d photos, max %d", len(d.CollectedPhotos), maxPhotos)
	}
	if len(d.AllImages) != len(d.AllOriginalImages) {
		return fmt.Errorf("stamped images (%d) and originals (%d) differ", len(d.AllImages), len(d.AllOriginalImages))
	}
	if d.MainImageIndex != nil && (*d.MainImageIndex < 0 || *d.MainImageIndex >= len(d.AllImages)) {
		return fmt.Errorf("main image index %d outside album of %d", *d.MainImageIndex, len(d.AllImages))
	}

	switch d.State {
	case ChoosingType:
		return nil
	case ChoosingCategory:
		return d.require(d.ProductType == catalog.TypeStandard, "standard product type")
	case CollectingPhotos:
		if err := d.requireTypeAndCategory(); err != nil {
			return err
		}
		return d.require(len(d.AllImages) == 0, "no stamped images yet")
	case SelectingMainImage:
		if err := d.requireTypeAndCategory(); err != nil {
			return err
		}
		return d.require(len(d.AllImages) > 1 && d.MainImageIndex == nil, "several stamped images and no main image")
	}

	if !d.State.InTextPhase() {
		return fmt.Errorf("unknown state %q", d.State)
	}
	if err := d.requireTypeAndCategory(); err != nil {
		return err
	}
	if err := d.require(d.MainImageIndex != nil, "main image"); err != nil {
		return err
	}

	custom := d.ProductType == catalog.TypeCustomDescription
	switch d.State {
	case WaitingTitle:
		if custom {
			return d.require(d.Description != "", "description")
		}
	case WaitingDescription:
		if !custom {
			return d.require(d.Title != "", "title")
		}
	case WaitingPrice:
		if custom {
			return d.require(d.Description != "" && d.Title != "", "description and title")
		}
		return d.require(d.Title != "" && d.DescriptionSet, "title and description")
	case CollectingFields:
		if custom {
			return fmt.Errorf("custom products have no category fields")
		}
		if err := d.require(d.Price != nil, "price"); err != nil {
			return err
		}
		return d.require(d.FieldIndex < len(d.CategoryFields()) && len(d.Fields) == d.FieldIndex, "pending category field")
	case Previewing:
		return d.ReadyToCommit()
	}
	return nil
}

// ReadyToCommit reports whether every field the product type needs is present.
func (d *Draft) ReadyToCommit() error {
	if d.MainImageIndex == nil || len(d.AllImages) == 0 {
		return fmt.Errorf("draft missing main image")
	}
	if d.ProductType == catalog.TypeCustomDescription {
		if d.Description == "" {
			return fmt.Errorf("draft missing description")
		}
		return nil
	}
	if d.ProductType != catalog.TypeStandard {
		return fmt.Errorf("draft missing product type")
	}
	if d.Title == "" || d.Price == nil || d.Category == "" {
		return fmt.Errorf("draft missing title, price or category")
	}
	if len(d.Fields) != len(d.CategoryFields()) {
		return fmt.Errorf("draft has %d of %d category fields", len(d.Fields), len(d.CategoryFields()))
	}
	return nil
}

func (d *Draft) requireTypeAndCategory() error {
	switch d.ProductType {
	case catalog.TypeCustomDescription:
		return nil
	case catalog.TypeStandard:
		_, ok := catalog.LookupCategory(d.Category)
		return d.require(ok, "known category")
	}
	return fmt.Errorf("draft in %s needs a product type", d.State)
}

func (d *Draft) require(ok bool, what string) error {
	if !ok {
		return fmt.Errorf("draft in %s needs %s", d.State, what)
	}
	return nil
}

// Assemble builds the product the draft would commit. Non-main stamped images
// go to the gallery side-channel.
func (d *Draft) Assemble(id string) *catalog.Product {
	p := &catalog.Product{
		ID:           id,
		SellerID:     d.UserID,
		Title:        d.Title,
		Description:  d.Description,
		Type:         d.ProductType,
		IsActive:     true,
		IsPublic:     true,
		LikeEnabled:  true,
		SaveEnabled:  true,
		OrderEnabled: true,
	}
	if d.Price != nil {
		v := *d.Price
		p.Price = &v
	}
	if d.ProductType == catalog.TypeStandard {
		p.Category = d.Category
		p.Fields = catalog.FieldsOf(d.Fields)
	}
	if d.MainImageIndex != nil {
		main := *d.MainImageIndex
		p.ImagePath = d.AllImages[main]
		p.OriginalImagePath = d.AllOriginalImages[main]
		for i, img := range d.AllImages {
			if i != main {
				p.Fields.Gallery = append(p.Fields.Gallery, img)
			}
		}
	}
	return p
}
