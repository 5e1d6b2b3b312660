package intake

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/render"
)

// Text field limits.
const (
	MinTitleLen       = 3
	MaxTitleLen       = 200
	MaxDescriptionLen = 1000
	MaxFieldLen       = 200
	MaxPrice          = 10_000_000
)

// SkipWord leaves the description of a standard product empty.
const SkipWord = "skip"

// Text answers the question the draft is waiting on. Invalid input keeps the
// draft where it is and repeats the question with the reason.
func (e *Engine) Text(ctx context.Context, userID int64, text string) error {
	return e.step(ctx, userID, "text", func(d *draft.Draft) (Prompt, error) {
		text := strings.TrimSpace(text)
		switch d.State {
		case draft.WaitingTitle:
			return e.title(d, text)
		case draft.WaitingDescription:
			return e.description(d, text)
		case draft.WaitingPrice:
			return e.price(d, text)
		case draft.CollectingFields:
			return e.field(d, text)
		}
		return Prompt{}, errors.NewInvalidState(string(d.State), "send text")
	})
}

func (e *Engine) title(d *draft.Draft, text string) (Prompt, error) {
	if err := ValidateTitle(text); err != nil {
		return Prompt{}, err
	}
	d.Title = text

	if d.ProductType == catalog.TypeCustomDescription {
		d.State = draft.WaitingPrice
		return pricePrompt(fmt.Sprintf("✅ **Name: %s**\n\n", render.EscapeMarkdown(text))), nil
	}
	d.State = draft.WaitingDescription
	return descriptionPrompt(d, fmt.Sprintf("✅ Title: **%s**\n\n", render.EscapeMarkdown(text))), nil
}

func (e *Engine) description(d *draft.Draft, text string) (Prompt, error) {
	custom := d.ProductType == catalog.TypeCustomDescription
	if !custom && strings.EqualFold(text, SkipWord) {
		text = ""
	}
	if err := ValidateDescription(text, custom); err != nil {
		return Prompt{}, err
	}
	d.Description = text
	d.DescriptionSet = true

	if custom {
		d.State = draft.WaitingTitle
		return titlePrompt(d, "✅ **Description saved!**\n\n"), nil
	}
	d.State = draft.WaitingPrice
	return pricePrompt("✅ Description saved!\n\n"), nil
}

func (e *Engine) price(d *draft.Draft, text string) (Prompt, error) {
	v, err := ParsePrice(text)
	if err != nil {
		return Prompt{}, err
	}
	d.Price = &v

	if d.ProductType == catalog.TypeStandard && len(d.CategoryFields()) > 0 {
		d.State = draft.CollectingFields
		d.FieldIndex = 0
		d.Fields = nil
		return fieldPrompt(d, fmt.Sprintf("✅ Price: **%s**\n\n", render.EscapeMarkdown(render.FormatPrice(v)))), nil
	}
	d.State = draft.Previewing
	return previewPrompt(d), nil
}

func (e *Engine) field(d *draft.Draft, text string) (Prompt, error) {
	defs := d.CategoryFields()
	if d.FieldIndex >= len(defs) {
		return Prompt{}, errors.NewInvalidState(string(d.State), "send field value")
	}
	if err := ValidateFieldValue(text); err != nil {
		return Prompt{}, err
	}

	def := defs[d.FieldIndex]
	d.Fields = append(d.Fields, catalog.FieldValue{Key: def.Key, Value: text})
	d.FieldIndex++

	if d.FieldIndex < len(defs) {
		return fieldPrompt(d, fmt.Sprintf("✅ **%s** saved!\n\n", render.HumanizeKey(def.Key))), nil
	}
	d.State = draft.Previewing
	return previewPrompt(d), nil
}

// ValidateTitle enforces the title length in characters.
func ValidateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n < MinTitleLen {
		return errors.NewValidation("title", fmt.Sprintf("Title must be at least %d characters. Please try again.", MinTitleLen))
	}
	if n > MaxTitleLen {
		return errors.NewValidation("title", fmt.Sprintf("Title is too long (max %d characters). Please shorten it.", MaxTitleLen))
	}
	return nil
}

// ValidateDescription enforces the description length. Custom-description
// products must say something, since the description is all their channel
// post shows.
func ValidateDescription(desc string, required bool) error {
	if required && desc == "" {
		return errors.NewValidation("description", "Description cannot be empty.")
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLen {
		return errors.NewValidation("description", fmt.Sprintf("Description is too long (max %d characters). Please shorten it.", MaxDescriptionLen))
	}
	return nil
}

// ParsePrice reads a positive amount, ignoring thousands separators.
func ParsePrice(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.NewValidation("price", "Invalid price. Please enter a number (e.g., 2500).")
	}
	if v <= 0 {
		return 0, errors.NewValidation("price", "Price must be greater than 0. Please try again.")
	}
	if v > MaxPrice {
		return 0, errors.NewValidation("price", "Price seems too high. Please check and try again.")
	}
	return v, nil
}

// ValidateFieldValue enforces the length of a category field answer.
func ValidateFieldValue(value string) error {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return errors.NewValidation("field", "Please enter a value for this field.")
	}
	if n > MaxFieldLen {
		return errors.NewValidation("field", fmt.Sprintf("Value is too long (max %d characters).", MaxFieldLen))
	}
	return nil
}
