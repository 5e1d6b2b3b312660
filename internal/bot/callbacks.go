package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/intake"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

// Callback data of the button editor opened from the owner carousel.
const (
	CallbackButtonToggle = "btn_toggle_"
	CallbackButtonClear  = "btn_clear_"
)

func (b *Bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	userID := q.From.ID
	data := q.Data
	toast, alert := "", false

	switch {
	case data == intake.CallbackTypeStandard:
		b.intakeResult(ctx, userID, "choose type", b.engine.ChooseType(ctx, userID, catalog.TypeStandard))
	case data == intake.CallbackTypeCustom:
		b.intakeResult(ctx, userID, "choose type", b.engine.ChooseType(ctx, userID, catalog.TypeCustomDescription))
	case strings.HasPrefix(data, intake.CallbackCategory):
		name := strings.TrimPrefix(data, intake.CallbackCategory)
		b.intakeResult(ctx, userID, "choose category", b.engine.ChooseCategory(ctx, userID, name))
	case data == intake.CallbackPhotosDone:
		b.intakeResult(ctx, userID, "done photos", b.engine.DonePhotos(ctx, userID))
	case strings.HasPrefix(data, intake.CallbackSelectMain):
		index, err := strconv.Atoi(strings.TrimPrefix(data, intake.CallbackSelectMain))
		if err != nil {
			index = -1
		}
		b.intakeResult(ctx, userID, "select main", b.engine.SelectMain(ctx, userID, index))
	case data == intake.CallbackConfirm:
		_, err := b.engine.Confirm(ctx, userID)
		b.intakeResult(ctx, userID, "confirm", err)
	case data == intake.CallbackCancel:
		b.intakeResult(ctx, userID, "cancel", b.engine.Cancel(ctx, userID))
	case data == intake.CallbackDone:
		toast = "👍"

	case strings.HasPrefix(data, render.CallbackPostChannel):
		b.postToChannel(ctx, userID, strings.TrimPrefix(data, render.CallbackPostChannel))
	case strings.HasPrefix(data, render.CallbackLike):
		toast = b.toggleEngagement(ctx, q, strings.TrimPrefix(data, render.CallbackLike), true)
	case strings.HasPrefix(data, render.CallbackSave):
		toast = b.toggleEngagement(ctx, q, strings.TrimPrefix(data, render.CallbackSave), false)
	case strings.HasPrefix(data, render.CallbackOrder):
		toast, alert = b.startOrder(ctx, &q.From, strings.TrimPrefix(data, render.CallbackOrder)), true
	case strings.HasPrefix(data, render.CallbackStats):
		b.stats(ctx, userID, strings.TrimPrefix(data, render.CallbackStats))
	case strings.HasPrefix(data, CallbackEditTitle):
		b.askEdit(ctx, userID, strings.TrimPrefix(data, CallbackEditTitle), actionEditTitle)
	case strings.HasPrefix(data, CallbackEditDesc):
		b.askEdit(ctx, userID, strings.TrimPrefix(data, CallbackEditDesc), actionEditDesc)
	case strings.HasPrefix(data, CallbackEditPrice):
		b.askEdit(ctx, userID, strings.TrimPrefix(data, CallbackEditPrice), actionEditPrice)
	case strings.HasPrefix(data, CallbackEditCategory):
		b.askEdit(ctx, userID, strings.TrimPrefix(data, CallbackEditCategory), actionEditCategory)
	case strings.HasPrefix(data, CallbackEditPhoto):
		b.askEdit(ctx, userID, strings.TrimPrefix(data, CallbackEditPhoto), actionEditPhoto)
	case strings.HasPrefix(data, CallbackEditButtons):
		b.editButtons(ctx, userID, strings.TrimPrefix(data, CallbackEditButtons))
	case strings.HasPrefix(data, CallbackDeleteProduct):
		b.askEdit(ctx, userID, strings.TrimPrefix(data, CallbackDeleteProduct), actionDeleteConfirm)
	case strings.HasPrefix(data, render.CallbackEdit):
		b.editMenu(ctx, userID, strings.TrimPrefix(data, render.CallbackEdit))
	case strings.HasPrefix(data, render.CallbackMarkSold):
		b.markSold(ctx, userID, strings.TrimPrefix(data, render.CallbackMarkSold))
	case strings.HasPrefix(data, render.CallbackNav):
		b.showCarousel(ctx, userID, atoiDefault(strings.TrimPrefix(data, render.CallbackNav), 0))
	case strings.HasPrefix(data, CallbackButtonToggle):
		id, button, _ := strings.Cut(strings.TrimPrefix(data, CallbackButtonToggle), ":")
		b.toggleButton(ctx, userID, id+" "+button)
	case strings.HasPrefix(data, CallbackButtonClear):
		if _, err := ops.ClearCustomButton(ctx, b.db, userID, strings.TrimPrefix(data, CallbackButtonClear)); err != nil {
			b.replyError(ctx, userID, "clear button", err)
		} else {
			toast = "Link button removed"
		}
	case data == render.CallbackNoop:
	default:
		b.log.Debug("unknown callback", "user_id", userID, "data", data)
	}

	if err := b.api.AnswerCallbackQuery(ctx, q.ID, toast, alert); err != nil {
		b.log.Debug("answer callback", "user_id", userID, "err", err)
	}
}

// intakeResult reports a failed intake step. The engine already told the user
// about anything except a missing draft.
func (b *Bot) intakeResult(ctx context.Context, userID int64, action string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, errors.ErrNotFound) {
		b.reply(ctx, userID, noDraftText, nil)
		return
	}
	b.log.Debug("intake "+action, "user_id", userID, "err", err)
}

func (b *Bot) postToChannel(ctx context.Context, userID int64, productID string) {
	post, err := b.publisher.PublishProduct(ctx, userID, productID)
	if err != nil {
		b.replyError(ctx, userID, "post to channel", err)
		return
	}
	b.reply(ctx, userID, fmt.Sprintf("✅ Posted to %s.", render.EscapeMarkdown(post.Channel)), nil)
}

// toggleEngagement flips a like or save and redraws the counters on the
// message the button belongs to.
func (b *Bot) toggleEngagement(ctx context.Context, q *telegram.CallbackQuery, productID string, like bool) string {
	var (
		out *ops.ToggleOutput
		err error
	)
	if like {
		out, err = ops.ToggleLike(ctx, b.db, q.From.ID, productID)
	} else {
		out, err = ops.ToggleSave(ctx, b.db, q.From.ID, productID)
	}
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "This product is no longer available."
		}
		b.log.Error("toggle engagement", "user_id", q.From.ID, "product_id", productID, "err", err)
		return "Something went wrong. Please try again."
	}

	if q.Message != nil {
		if err := b.publisher.RefreshKeyboard(ctx, chatRef(q.Message.Chat), q.Message.MessageID, out.Product); err != nil {
			b.log.Warn("refresh keyboard", "product_id", productID, "err", err)
		}
	}

	switch {
	case like && out.Active:
		return "❤️ Liked"
	case like:
		return "Like removed"
	case out.Active:
		return "💾 Saved"
	}
	return "Removed from saved"
}

func (b *Bot) markSold(ctx context.Context, userID int64, productID string) {
	res, err := b.publisher.MarkSold(ctx, userID, productID)
	if err != nil {
		b.replyError(ctx, userID, "mark sold", err)
		return
	}
	text := "✅ Marked as sold."
	if res.Posts > 0 {
		text += fmt.Sprintf(" Updated %d of %d channel posts.", res.Edited, res.Posts)
	}
	b.reply(ctx, userID, text, nil)
}

func (b *Bot) editButtons(ctx context.Context, userID int64, productID string) {
	toggle := func(label, button string) render.Button {
		return render.Button{Text: label, Data: CallbackButtonToggle + productID + ":" + button}
	}
	kb := render.Keyboard{
		{toggle("❤️ Like", ops.ButtonLike), toggle("💾 Save", ops.ButtonSave), toggle("🛒 Order", ops.ButtonOrder)},
		{{Text: "🔗 Remove link button", Data: CallbackButtonClear + productID}},
	}
	b.reply(ctx, userID, "✏️ **Edit buttons**\n\nTap a button to turn it on or off.\n"+
		"To add a link button send:\n`/setbutton "+productID+" | text | https://...`", kb)
}
