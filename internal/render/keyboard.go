package render

import (
	"fmt"

	"github.com/hpungsan/storebot/internal/catalog"
)

// Button is one inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Callback data prefixes shared with the update router.
const (
	CallbackLike        = "like_"
	CallbackSave        = "save_"
	CallbackOrder       = "order_"
	CallbackPostChannel = "post_channel_"
	CallbackStats       = "stats_"
	CallbackEdit        = "edit_"
	CallbackMarkSold    = "mark_sold_"
	CallbackNav         = "myproducts_nav_"
	CallbackNoop        = "noop"
)

// Buttons builds the product keyboard. Row order: engagement, order, custom
// link, post, admin, navigation.
func Buttons(p *catalog.Product, rc Context) Keyboard {
	var kb Keyboard

	if p.LikeEnabled || p.SaveEnabled {
		var row []Button
		if p.LikeEnabled {
			row = append(row, Button{Text: fmt.Sprintf("❤️ Like - %d", p.LikesCount), Data: CallbackLike + p.ID})
		}
		if p.SaveEnabled {
			row = append(row, Button{Text: fmt.Sprintf("💾 Save - %d", p.SavesCount), Data: CallbackSave + p.ID})
		}
		kb = append(kb, row)
	}

	if p.OrderEnabled {
		kb = append(kb, []Button{{Text: "🛒 Order", Data: CallbackOrder + p.ID}})
	}

	if p.HasCustomButton() {
		kb = append(kb, []Button{{Text: "⚙️ " + p.CustomButtonText, URL: p.CustomButtonURL}})
	}

	if rc.ShowPostButton {
		kb = append(kb, []Button{{Text: "📢 Post to Channel", Data: CallbackPostChannel + p.ID}})
	}

	if rc.ShowAdminButtons {
		kb = append(kb,
			[]Button{
				{Text: "📊 Stats", Data: CallbackStats + p.ID},
				{Text: "✏️ Edit", Data: CallbackEdit + p.ID},
			},
			[]Button{{Text: "✅ Mark Sold", Data: CallbackMarkSold + p.ID}},
		)
	}

	if rc.TotalCount > 1 {
		var nav []Button
		if rc.CurrentIndex > 0 {
			nav = append(nav, Button{Text: "◀️ Previous", Data: fmt.Sprintf("%s%d", CallbackNav, rc.CurrentIndex-1)})
		}
		nav = append(nav, Button{Text: fmt.Sprintf("📦 %d/%d", rc.CurrentIndex+1, rc.TotalCount), Data: CallbackNoop})
		if rc.CurrentIndex < rc.TotalCount-1 {
			nav = append(nav, Button{Text: "Next ▶️", Data: fmt.Sprintf("%s%d", CallbackNav, rc.CurrentIndex+1)})
		}
		kb = append(kb, nav)
	}

	return kb
}

// Row is a convenience for single-row keyboards in prompts.
func Row(buttons ...Button) Keyboard {
	return Keyboard{buttons}
}
