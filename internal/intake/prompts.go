package intake

import (
	"fmt"
	"strings"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/render"
)

// Callback data understood by the intake flow.
const (
	CallbackTypeStandard = "product_type_standard"
	CallbackTypeCustom   = "product_type_custom"
	CallbackCategory     = "category_"
	CallbackPhotosDone   = "photos_done"
	CallbackSelectMain   = "select_main_"
	CallbackConfirm      = "confirm_product"
	CallbackCancel       = "cancel_fsm"
	CallbackDone         = "done"
)

var (
	cancelRow = []render.Button{{Text: "❌ Cancel", Data: CallbackCancel}}
	doneRow   = []render.Button{{Text: "✅ Done adding photos", Data: CallbackPhotosDone}}
)

func cancelKeyboard() render.Keyboard {
	return render.Keyboard{cancelRow}
}

func typePrompt() Prompt {
	return Prompt{
		Text: "📦 **Add New Product**\n\n" +
			"What type of product would you like to create?\n\n" +
			"• **Standard Product**: Choose category with specific fields\n" +
			"• **Custom Description**: Just add your own description",
		Keyboard: render.Keyboard{
			{{Text: "📦 Standard Product", Data: CallbackTypeStandard}},
			{{Text: "📝 Custom Description", Data: CallbackTypeCustom}},
			cancelRow,
		},
	}
}

func categoryPrompt() Prompt {
	var kb render.Keyboard
	for _, c := range catalog.Categories() {
		kb = append(kb, []render.Button{{Text: c.Label, Data: CallbackCategory + c.Name}})
	}
	kb = append(kb, cancelRow)
	return Prompt{
		Text:     "📦 **Standard Product**\n\nSelect a category for your product:",
		Keyboard: kb,
	}
}

func photosPrompt(d *draft.Draft) Prompt {
	if d.ProductType == catalog.TypeCustomDescription {
		return Prompt{
			Text: "📝 **Custom Description**\n\n" +
				"Send me a **photo** first, then I'll ask for your custom description.\n" +
				"(Make sure it's clear and shows the product well)",
			Keyboard: cancelKeyboard(),
		}
	}
	return Prompt{
		Text: fmt.Sprintf("📂 **Category: %s**\n\n", categoryTitle(d.Category)) +
			"Now send me a **photo** of the product.\n" +
			"(Make sure it's clear and shows the product well)",
		Keyboard: cancelKeyboard(),
	}
}

func photoReceivedPrompt(received, total, limit, dropped int) Prompt {
	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}

	var b strings.Builder
	if received == 1 {
		b.WriteString("✅ Photo received!\n\n")
	} else {
		fmt.Fprintf(&b, "✅ %d photos received!\n\n", received)
	}
	if remaining > 0 {
		fmt.Fprintf(&b, "You can send up to %d more photo%s for this product.\n", remaining, plural(remaining))
	} else {
		fmt.Fprintf(&b, "That's the maximum of %d photos for this product.\n", limit)
	}
	b.WriteString("When you're finished, tap *Done adding photos*.")
	if dropped > 0 {
		fmt.Fprintf(&b, "\n\n⚠️ Only %d photos fit in one product; %d extra photo%s skipped.", limit, dropped, pluralWas(dropped))
	}
	return Prompt{
		Text:     b.String(),
		Keyboard: render.Keyboard{doneRow, cancelRow},
	}
}

func capacityPrompt(limit int) Prompt {
	return Prompt{
		Text:     fmt.Sprintf("⚠️ You already have %d photos, the maximum for one product.\nTap *Done adding photos* to continue.", limit),
		Keyboard: render.Keyboard{doneRow, cancelRow},
	}
}

func selectMainPrompt(d *draft.Draft, withGallery bool) Prompt {
	var kb render.Keyboard
	for i := range d.AllImages {
		kb = append(kb, []render.Button{{
			Text: fmt.Sprintf("🖼️ Image %d (Select as Main)", i+1),
			Data: fmt.Sprintf("%s%d", CallbackSelectMain, i),
		}})
	}
	kb = append(kb, cancelRow)

	p := Prompt{
		Text: "📸 **Select Main Image**\n\n" +
			fmt.Sprintf("You uploaded %d images. ", len(d.AllImages)) +
			"Please select which one should be the **main product image**.\n\n" +
			"The main image will be shown with the product description and buttons. " +
			"Other images will be shown in a gallery.",
		Keyboard: kb,
	}
	if withGallery {
		p.Gallery = append([]string(nil), d.AllImages...)
	}
	return p
}

func titlePrompt(d *draft.Draft, lead string) Prompt {
	if d.ProductType == catalog.TypeCustomDescription {
		return Prompt{
			Text: lead + "Now, what's the **product name**?\n" +
				"(Keep it short and descriptive)",
			Keyboard: cancelKeyboard(),
		}
	}
	return Prompt{
		Text: lead + "Now, what's the **product title**?\n" +
			"(Keep it short and descriptive, e.g., 'iPhone 15 Pro Max')",
		Keyboard: cancelKeyboard(),
	}
}

func descriptionPrompt(d *draft.Draft, lead string) Prompt {
	if d.ProductType == catalog.TypeCustomDescription {
		return Prompt{
			Text: lead + "Now, write your **custom description** for this product.\n" +
				"You can include any details you want to share.",
			Keyboard: cancelKeyboard(),
		}
	}
	return Prompt{
		Text: lead + "Great! Now add a **description**.\n" +
			"(Tell buyers about the product - features, condition, size, etc.)\n\n" +
			"Or type 'skip' if you don't want to add a description.",
		Keyboard: cancelKeyboard(),
	}
}

func pricePrompt(lead string) Prompt {
	return Prompt{
		Text: lead + "What's the **price** in Birr?\n" +
			"(Just enter the number, e.g., 2500)",
		Keyboard: cancelKeyboard(),
	}
}

func fieldPrompt(d *draft.Draft, lead string) Prompt {
	defs := d.CategoryFields()
	if d.FieldIndex >= len(defs) {
		return Prompt{Text: lead, Keyboard: cancelKeyboard()}
	}
	return Prompt{
		Text: lead + fmt.Sprintf("📋 **%s Details** (%d/%d)\n\n", categoryTitle(d.Category), d.FieldIndex+1, len(defs)) +
			"**" + defs[d.FieldIndex].Prompt + "**\n" +
			"Please enter the value for this field:",
		Keyboard: cancelKeyboard(),
	}
}

func previewPrompt(d *draft.Draft) Prompt {
	p := d.Assemble("")

	text := render.Caption(p, render.Context{})
	if d.ProductType == catalog.TypeCustomDescription {
		text = "📝 **Custom Description Preview**\n\n" + text
	}

	return Prompt{
		Text:    text,
		Photo:   p.ImagePath,
		Gallery: p.Fields.Gallery,
		Keyboard: render.Keyboard{
			{{Text: "✅ Create Product", Data: CallbackConfirm}},
			cancelRow,
		},
	}
}

func createdPrompt(productID string) Prompt {
	return Prompt{
		Text: "🎉 **Product Created!**\n\n" +
			"Your product has been added to your store. Use /myproducts to manage it.\n\n" +
			"Would you like to post this product to your channel?",
		Keyboard: render.Keyboard{
			{{Text: "📢 Post to Channel", Data: render.CallbackPostChannel + productID}},
			{{Text: "✅ Done", Data: CallbackDone}},
		},
	}
}

func commitFailedPrompt() Prompt {
	return Prompt{
		Text: "❌ Could not save your product right now.\n\n" +
			"Your answers are kept. Tap *Create Product* to try again.",
		Keyboard: render.Keyboard{
			{{Text: "✅ Create Product", Data: CallbackConfirm}},
			cancelRow,
		},
	}
}

func cancelledPrompt() Prompt {
	return Prompt{Text: "❌ Product creation cancelled."}
}

func registerFirstPrompt() Prompt {
	return Prompt{Text: "⚠️ You need a registered store to add products.\n\nUse /register to set up your store first."}
}

func limitPrompt(count, limit int) Prompt {
	return Prompt{
		Text: "⚠️ **Free Plan Limit Reached**\n\n" +
			fmt.Sprintf("You have %d products (max: %d).\n\n", count, limit) +
			"Upgrade to Premium for unlimited products!",
	}
}

// stepPrompt is the question the draft is currently waiting on.
func stepPrompt(d *draft.Draft) Prompt {
	switch d.State {
	case draft.ChoosingType:
		return typePrompt()
	case draft.ChoosingCategory:
		return categoryPrompt()
	case draft.CollectingPhotos:
		if n := len(d.CollectedPhotos); n > 0 {
			return Prompt{
				Text: fmt.Sprintf("📸 %d photo%s collected so far.\n\n", n, plural(n)) +
					"Send more or tap *Done adding photos* when finished.",
				Keyboard: render.Keyboard{doneRow, cancelRow},
			}
		}
		return photosPrompt(d)
	case draft.SelectingMainImage:
		return selectMainPrompt(d, false)
	case draft.WaitingTitle:
		return titlePrompt(d, "")
	case draft.WaitingDescription:
		return descriptionPrompt(d, "")
	case draft.WaitingPrice:
		return pricePrompt("")
	case draft.CollectingFields:
		return fieldPrompt(d, "")
	case draft.Previewing:
		return previewPrompt(d)
	}
	return Prompt{Text: "Use /addproduct to start a new product."}
}

func categoryTitle(name string) string {
	if c, ok := catalog.LookupCategory(name); ok {
		return render.HumanizeKey(c.Name)
	}
	return render.HumanizeKey(name)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralWas(n int) string {
	if n == 1 {
		return " was"
	}
	return "s were"
}
