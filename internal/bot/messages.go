package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

const (
	noDraftText = "No product in progress. Use /addproduct to start one."

	notExpectingPhotoText = "⚠️ Not expecting a photo right now."

	registerUsage = "🏪 **Register your store**\n\n" +
		"Send:\n`/register Store name | phone | @channel`\n\n" +
		"The channel is optional; you can add it later by registering again."

	helpText = "**Seller commands**\n" +
		"/register - set up your store\n" +
		"/addproduct - add a product\n" +
		"/resume - continue the product in progress\n" +
		"/cancel - discard the product in progress\n" +
		"/myproducts - browse and manage your products\n" +
		"/schedule <product> <days> <HH:MM> - repost a product regularly\n" +
		"/schedules - list your schedules\n" +
		"/button <product> like|save|order - toggle a button\n" +
		"/setbutton <product> | text | url - add a link button\n" +
		"/clearbutton <product> - remove the link button\n" +
		"/stats <product> - product statistics\n" +
		"/buyers - people who ordered from you\n\n" +
		"**Buyers**\n" +
		"/browse - latest products\n" +
		"/saved - products you saved\n" +
		"/view <product> - see a product\n" +
		"Inline search: type the bot's @username and a few words in any chat."
)

// command is a parsed "/name@bot args" message.
type command struct {
	name string
	args string
}

// parseCommand splits a command message. Commands addressed to another bot
// are not commands for us.
func parseCommand(text, botUsername string) (command, bool) {
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	name, target, addressed := strings.Cut(head, "@")
	if addressed && botUsername != "" && !strings.EqualFold(target, botUsername) {
		return command{}, false
	}
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)

	// /pause_<id> style shortcuts from listings; ids keep their case
	if prefix, arg, ok := strings.Cut(head, "_"); ok && args == "" && arg != "" {
		if shortcuts[strings.ToLower(prefix)] {
			arg, _, _ = strings.Cut(arg, "@")
			return command{name: strings.ToLower(prefix), args: arg}, true
		}
	}
	return command{name: name, args: args}, true
}

var shortcuts = map[string]bool{
	"pause": true, "unpause": true, "unschedule": true, "view": true, "stats": true,
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) {
	if m.From == nil || m.From.IsBot || m.Chat.Type != "private" {
		return
	}
	from := m.From
	if err := ops.TouchUser(ctx, b.db, userFrom(from)); err != nil {
		b.log.Warn("touch user", "user_id", from.ID, "err", err)
	}

	if _, ok := m.LargestPhoto(); ok {
		b.handlePhoto(ctx, m)
		return
	}
	if cmd, ok := parseCommand(m.Text, b.cfg.BotUsername); ok {
		// a command abandons whatever prompt was open
		if b.pending(ctx, from.ID) != nil {
			b.clearPending(ctx, from.ID)
			if cmd.name == "cancel" {
				b.reply(ctx, from.ID, "👍 Cancelled.", nil)
				return
			}
		}
		b.handleCommand(ctx, from, cmd)
		return
	}
	if b.consumePending(ctx, m) {
		return
	}
	if strings.TrimSpace(m.Text) == "" {
		return
	}
	if err := b.engine.Text(ctx, from.ID, m.Text); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			b.reply(ctx, from.ID, "Send /help to see what I can do.", nil)
			return
		}
		b.log.Debug("intake text", "user_id", from.ID, "err", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, from *telegram.User, cmd command) {
	switch cmd.name {
	case "start":
		if id, ok := strings.CutPrefix(cmd.args, "view_"); ok {
			b.view(ctx, from.ID, id)
			return
		}
		b.start(ctx, from)
	case "help":
		b.reply(ctx, from.ID, helpText, nil)
	case "register":
		b.register(ctx, from, cmd.args)
	case "addproduct":
		if err := b.engine.Start(ctx, from.ID); err != nil {
			b.log.Debug("start intake", "user_id", from.ID, "err", err)
		}
	case "cancel":
		if err := b.engine.Cancel(ctx, from.ID); err != nil {
			b.replyError(ctx, from.ID, "cancel", err)
		}
	case "resume":
		if err := b.engine.Resume(ctx, from.ID); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				b.reply(ctx, from.ID, noDraftText, nil)
				return
			}
			b.replyError(ctx, from.ID, "resume", err)
		}
	case "myproducts":
		b.showCarousel(ctx, from.ID, 0)
	case "view":
		b.view(ctx, from.ID, cmd.args)
	case "schedule":
		b.createSchedule(ctx, from.ID, cmd.args)
	case "schedules":
		b.listSchedules(ctx, from.ID)
	case "pause":
		b.pauseSchedule(ctx, from.ID, cmd.args)
	case "unpause":
		b.resumeSchedule(ctx, from.ID, cmd.args)
	case "unschedule":
		b.deleteSchedule(ctx, from.ID, cmd.args)
	case "button":
		b.toggleButton(ctx, from.ID, cmd.args)
	case "setbutton":
		b.setButton(ctx, from.ID, cmd.args)
	case "clearbutton":
		if _, err := ops.ClearCustomButton(ctx, b.db, from.ID, cmd.args); err != nil {
			b.replyError(ctx, from.ID, "clear button", err)
			return
		}
		b.reply(ctx, from.ID, "✅ Link button removed.", nil)
	case "stats":
		b.stats(ctx, from.ID, cmd.args)
	case "saved":
		b.saved(ctx, from.ID)
	case "browse":
		b.browse(ctx, from.ID)
	case "buyers":
		b.buyers(ctx, from.ID)
	default:
		b.reply(ctx, from.ID, "Unknown command. Send /help for the list.", nil)
	}
}

func (b *Bot) start(ctx context.Context, from *telegram.User) {
	u, err := db.GetUser(ctx, b.db, from.ID)
	if err != nil {
		b.replyError(ctx, from.ID, "start", err)
		return
	}
	if u.IsSeller() {
		b.reply(ctx, from.ID, fmt.Sprintf("👋 Welcome back, *%s*!\n\n%s",
			render.EscapeMarkdown(u.DisplayName()), helpText), nil)
		return
	}
	b.reply(ctx, from.ID, "👋 Welcome!\n\nBrowse products in the channels you follow, or open your own store.\n\n"+registerUsage, nil)
}

func (b *Bot) register(ctx context.Context, from *telegram.User, args string) {
	if args == "" {
		b.reply(ctx, from.ID, registerUsage, nil)
		return
	}
	store, phone, channel, err := ops.ParseRegistration(args)
	if err != nil {
		b.replyError(ctx, from.ID, "register", err)
		return
	}
	u, err := ops.RegisterSeller(ctx, b.db, ops.RegisterSellerInput{
		UserID:    from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
		StoreName: store,
		Phone:     phone,
		Channel:   channel,
	})
	if err != nil {
		b.replyError(ctx, from.ID, "register", err)
		return
	}
	b.log.Info("seller registered", "user_id", u.ID, "channel", u.Channel)

	text := fmt.Sprintf("✅ Store *%s* is ready.\n\n", render.EscapeMarkdown(u.StoreName))
	if u.Channel == "" {
		text += "Add a channel later to post products.\n\n"
	} else {
		text += fmt.Sprintf("Products will be posted to %s. Make sure the bot is an admin there.\n\n", render.EscapeMarkdown(u.Channel))
	}
	b.reply(ctx, from.ID, text+"Use /addproduct to add your first product.", nil)
}

// handlePhoto downloads the largest size into the media directory and hands
// it to the intake flow with the message's media group as batch. A pending
// photo edit takes the photo instead.
func (b *Bot) handlePhoto(ctx context.Context, m *telegram.Message) {
	userID := m.From.ID
	if p := b.pending(ctx, userID); p != nil && p.Action == actionEditPhoto {
		b.replacePhoto(ctx, m, p)
		return
	}
	state, err := b.engine.State(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			b.reply(ctx, userID, noDraftText, nil)
			return
		}
		b.replyError(ctx, userID, "photo", err)
		return
	}
	if state != draft.CollectingPhotos {
		b.reply(ctx, userID, notExpectingPhotoText, nil)
		if err := b.engine.Resume(ctx, userID); err != nil {
			b.log.Debug("resume after stray photo", "user_id", userID, "err", err)
		}
		return
	}

	size, _ := m.LargestPhoto()
	path, err := b.download(ctx, size.FileID)
	if err != nil {
		b.log.Warn("download photo", "user_id", userID, "file_id", size.FileID, "err", err)
		b.reply(ctx, userID, "❌ Could not receive that photo. Please send it again.", nil)
		return
	}
	photo := draft.Photo{OriginalPath: path, SourceID: size.FileID}
	if err := b.engine.AddPhoto(ctx, userID, photo, m.MediaGroupID); err != nil {
		b.log.Debug("add photo", "user_id", userID, "err", err)
	}
}

func (b *Bot) download(ctx context.Context, fileID string) (string, error) {
	f, err := b.api.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.cfg.MediaDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(b.cfg.MediaDir, b.fileName())
	if err := b.api.Download(ctx, f.FilePath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (b *Bot) view(ctx context.Context, userID int64, productID string) {
	p, err := db.GetProduct(ctx, b.db, productID)
	if err != nil || !p.IsActive {
		b.reply(ctx, userID, "❌ This product is no longer available.", nil)
		return
	}
	seller, err := db.GetUser(ctx, b.db, p.SellerID)
	if err != nil {
		b.replyError(ctx, userID, "view", err)
		return
	}
	if err := ops.RecordView(ctx, b.db, p.ID); err != nil {
		b.log.Warn("record view", "product_id", p.ID, "err", err)
	}
	rc := render.Context{SellerName: seller.DisplayName(), SellerPhone: seller.Phone}
	b.sendProduct(ctx, userID, p, rc)
}

func (b *Bot) sendProduct(ctx context.Context, userID int64, p *catalog.Product, rc render.Context) {
	caption, kb := render.Render(p, rc)
	var err error
	if p.ImagePath != "" {
		_, err = b.api.SendPhoto(ctx, chatID(userID), p.ImagePath, caption, kb)
	} else {
		_, err = b.api.SendMessage(ctx, chatID(userID), caption, kb)
	}
	if err != nil {
		b.log.Warn("send product", "user_id", userID, "product_id", p.ID, "err", err)
	}
}

// showCarousel shows the seller's index-th active product with owner buttons.
func (b *Bot) showCarousel(ctx context.Context, userID int64, index int) {
	seller, err := db.GetUser(ctx, b.db, userID)
	if err != nil || !seller.IsSeller() {
		b.reply(ctx, userID, "⚠️ You need a registered store first. Use /register.", nil)
		return
	}
	products, err := db.ListSellerProducts(ctx, b.db, userID, true)
	if err != nil {
		b.replyError(ctx, userID, "my products", err)
		return
	}
	if len(products) == 0 {
		b.reply(ctx, userID, "📦 You have no products yet. Use /addproduct to add one.", nil)
		return
	}
	if index < 0 || index >= len(products) {
		index = 0
	}
	rc := render.Context{
		ShowAdminButtons: true,
		ShowPostButton:   seller.Channel != "",
		CurrentIndex:     index,
		TotalCount:       len(products),
		SellerName:       seller.DisplayName(),
		SellerPhone:      seller.Phone,
	}
	b.sendProduct(ctx, userID, products[index], rc)
}

func (b *Bot) toggleButton(ctx context.Context, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(ctx, userID, "Usage: /button <product> like|save|order", nil)
		return
	}
	p, err := ops.ToggleButton(ctx, b.db, userID, fields[0], fields[1])
	if err != nil {
		b.replyError(ctx, userID, "toggle button", err)
		return
	}
	b.reply(ctx, userID, "✅ Buttons updated.\n\n"+buttonSummary(p), nil)
}

func (b *Bot) setButton(ctx context.Context, userID int64, args string) {
	parts := strings.Split(args, "|")
	if len(parts) != 3 {
		b.reply(ctx, userID, "Usage: /setbutton <product> | text | url", nil)
		return
	}
	p, err := ops.SetCustomButton(ctx, b.db, userID, strings.TrimSpace(parts[0]), parts[1], parts[2])
	if err != nil {
		b.replyError(ctx, userID, "set button", err)
		return
	}
	b.reply(ctx, userID, "✅ Link button set.\n\n"+buttonSummary(p), nil)
}

func (b *Bot) stats(ctx context.Context, userID int64, productID string) {
	out, err := ops.ProductStats(ctx, b.db, userID, productID)
	if err != nil {
		b.replyError(ctx, userID, "stats", err)
		return
	}
	b.reply(ctx, userID, out.Text, nil)
}

func buttonSummary(p *catalog.Product) string {
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}
	s := fmt.Sprintf("Like: %s\nSave: %s\nOrder: %s", onOff(p.LikeEnabled), onOff(p.SaveEnabled), onOff(p.OrderEnabled))
	if p.HasCustomButton() {
		s += "\nLink: " + render.EscapeMarkdown(p.CustomButtonText)
	}
	return s
}

func userFrom(u *telegram.User) *catalog.User {
	return &catalog.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// productLabel names a product in listings; custom products may lack a title.
func productLabel(p *catalog.Product) string {
	if p.Title != "" {
		return p.Title
	}
	d := []rune(strings.TrimSpace(p.Description))
	if len(d) > 30 {
		return string(d[:30]) + "…"
	}
	if len(d) == 0 {
		return p.ID
	}
	return string(d)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
