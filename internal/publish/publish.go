// Package publish posts products to seller channels and keeps those posts
// up to date.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
	"github.com/hpungsan/storebot/internal/render"
)

// Transport is the outbound messaging API. Chats are "@channel" names or
// numeric ids. Implementations report an unauthorized destination as
// PermissionDenied and anything worth retrying as TransientDispatch.
type Transport interface {
	SendMessage(ctx context.Context, chat, text string, kb render.Keyboard) (int, error)
	SendPhoto(ctx context.Context, chat, imagePath, caption string, kb render.Keyboard) (int, error)
	SendMediaGroup(ctx context.Context, chat string, images []string) ([]int, error)
	EditMessageCaption(ctx context.Context, chat string, messageID int, caption string, kb render.Keyboard) error
	EditMessageReplyMarkup(ctx context.Context, chat string, messageID int, kb render.Keyboard) error
}

// Storage is what publishing reads and records.
type Storage interface {
	GetUser(ctx context.Context, id int64) (*catalog.User, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	SetProductActive(ctx context.Context, id string, active bool) error
	RecordChannelPost(ctx context.Context, cp *catalog.ChannelPost) error
	ListChannelPosts(ctx context.Context, productID string) ([]*catalog.ChannelPost, error)
}

// Options configure a Publisher.
type Options struct {
	// BotUsername is named in permission remediation text
	BotUsername string
	// DispatchTimeout bounds each single transport call
	DispatchTimeout time.Duration
}

// Publisher renders products and dispatches them to channels.
type Publisher struct {
	transport Transport
	storage   Storage
	events    events.Publisher
	opts      Options
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Publisher. pub and log may be nil.
func New(t Transport, s Storage, pub events.Publisher, opts Options, log *slog.Logger) *Publisher {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	return &Publisher{
		transport: t,
		storage:   s,
		events:    pub,
		opts:      opts,
		log:       log.With("component", "publish"),
		now:       time.Now,
	}
}

// ChannelContext is the render context for a seller's channel post.
func ChannelContext(seller *catalog.User) render.Context {
	name := seller.DisplayName()
	if name == "" {
		name = "Your Store"
	}
	rc := render.Context{ForChannel: true, SellerName: name}
	if seller != nil {
		rc.SellerPhone = seller.Phone
	}
	return rc
}

// Dispatch posts p to channel: the gallery as a media group first when
// withGallery is set, then the main image with caption and buttons. The post
// is recorded so later edits can find it.
func (p *Publisher) Dispatch(ctx context.Context, product *catalog.Product, seller *catalog.User, channel string, withGallery bool) (*catalog.ChannelPost, error) {
	caption, kb := render.Render(product, ChannelContext(seller))

	if withGallery && len(product.Fields.Gallery) > 0 {
		err := p.call(ctx, func(ctx context.Context) error {
			_, err := p.transport.SendMediaGroup(ctx, channel, product.Fields.Gallery)
			return err
		})
		if err != nil {
			return nil, p.classify(err, channel)
		}
	}

	var messageID int
	err := p.call(ctx, func(ctx context.Context) error {
		id, err := p.transport.SendPhoto(ctx, channel, product.ImagePath, caption, kb)
		messageID = id
		return err
	})
	if err != nil {
		return nil, p.classify(err, channel)
	}

	post := &catalog.ChannelPost{
		ProductID: product.ID,
		Channel:   channel,
		MessageID: messageID,
		PostedAt:  p.now(),
	}
	if err := p.storage.RecordChannelPost(ctx, post); err != nil {
		p.log.Error("record channel post", "product_id", product.ID, "channel", channel, "message_id", messageID, "err", err)
	}
	return post, nil
}

// PublishProduct posts a seller's product to the seller's channel now.
func (p *Publisher) PublishProduct(ctx context.Context, sellerID int64, productID string) (*catalog.ChannelPost, error) {
	product, seller, err := p.owned(ctx, sellerID, productID)
	if err != nil {
		return nil, err
	}
	if seller.Channel == "" {
		return nil, errors.NewValidation("channel", "You haven't set up a channel yet. Use /register to add your channel.")
	}
	if !product.IsActive {
		return nil, errors.NewValidation("product", "This product is no longer active.")
	}

	post, err := p.Dispatch(ctx, product, seller, seller.Channel, true)
	if err != nil {
		p.log.Warn("publish product", "product_id", productID, "channel", seller.Channel, "err", err)
		return nil, err
	}

	p.emit(ctx, events.Event{
		Type:      events.ProductPosted,
		ProductID: product.ID,
		SellerID:  seller.ID,
		Channel:   post.Channel,
		MessageID: post.MessageID,
		At:        post.PostedAt,
	})
	p.log.Info("product posted", "product_id", product.ID, "channel", post.Channel, "message_id", post.MessageID)
	return post, nil
}

// MarkSoldResult counts the channel posts touched by MarkSold.
type MarkSoldResult struct {
	Posts  int
	Edited int
	Failed int
}

// MarkSold rewrites every recorded channel post of the product with a sold
// marker in the title and deactivates the product. A post that cannot be
// edited is logged and counted; it does not stop the others.
func (p *Publisher) MarkSold(ctx context.Context, sellerID int64, productID string) (*MarkSoldResult, error) {
	product, seller, err := p.owned(ctx, sellerID, productID)
	if err != nil {
		return nil, err
	}

	posts, err := p.storage.ListChannelPosts(ctx, productID)
	if err != nil {
		return nil, err
	}

	rc := ChannelContext(seller)
	rc.TitleOverride = product.Title + render.SoldSuffix
	caption := render.Caption(product, rc)

	res := &MarkSoldResult{Posts: len(posts)}
	for _, post := range posts {
		err := p.call(ctx, func(ctx context.Context) error {
			return p.transport.EditMessageCaption(ctx, post.Channel, post.MessageID, caption, nil)
		})
		if err != nil {
			res.Failed++
			p.log.Warn("edit sold caption", "product_id", productID, "channel", post.Channel, "message_id", post.MessageID, "err", err)
			continue
		}
		res.Edited++
	}

	if err := p.storage.SetProductActive(ctx, productID, false); err != nil {
		return res, err
	}
	p.emit(ctx, events.Event{
		Type:      events.ProductSold,
		ProductID: productID,
		SellerID:  sellerID,
		At:        p.now(),
	})
	p.log.Info("product marked sold", "product_id", productID, "posts", res.Posts, "edited", res.Edited, "failed", res.Failed)
	return res, nil
}

// RefreshKeyboard redraws the buttons of one posted message, e.g. after a
// like changed the counters.
func (p *Publisher) RefreshKeyboard(ctx context.Context, chat string, messageID int, product *catalog.Product) error {
	kb := render.Buttons(product, render.Context{ForChannel: true})
	err := p.call(ctx, func(ctx context.Context) error {
		return p.transport.EditMessageReplyMarkup(ctx, chat, messageID, kb)
	})
	if err != nil {
		return p.classify(err, chat)
	}
	return nil
}

// Notify sends a plain text message to a user.
func (p *Publisher) Notify(ctx context.Context, userID int64, text string, kb render.Keyboard) error {
	chat := strconv.FormatInt(userID, 10)
	err := p.call(ctx, func(ctx context.Context) error {
		_, err := p.transport.SendMessage(ctx, chat, text, kb)
		return err
	})
	if err != nil {
		return p.classify(err, chat)
	}
	return nil
}

func (p *Publisher) owned(ctx context.Context, sellerID int64, productID string) (*catalog.Product, *catalog.User, error) {
	product, err := p.storage.GetProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if product.SellerID != sellerID {
		return nil, nil, errors.NewPermissionDenied("you don't own this product", "")
	}
	seller, err := p.storage.GetUser(ctx, sellerID)
	if err != nil {
		return nil, nil, err
	}
	return product, seller, nil
}

// call runs one transport request under the dispatch timeout.
func (p *Publisher) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.DispatchTimeout)
	defer cancel()
	return fn(ctx)
}

// classify maps transport failures onto the error taxonomy. Permission errors
// carry remediation text naming the bot and the channel.
func (p *Publisher) classify(err error, chat string) error {
	switch errors.CodeOf(err) {
	case errors.ErrPermissionDenied:
		return errors.NewPermissionDenied(
			fmt.Sprintf("the bot cannot post to %s", chat),
			remediation(p.opts.BotUsername, chat),
		)
	case errors.ErrTransientDispatch, errors.ErrValidation, errors.ErrNotFound:
		return err
	}
	return errors.NewTransientDispatch(err)
}

func remediation(bot, chat string) string {
	if bot == "" {
		bot = "this bot"
	} else {
		bot = "@" + bot
	}
	return fmt.Sprintf("Please make sure:\n"+
		"1. The bot (%s) is added to %s\n"+
		"2. The bot has admin rights\n"+
		"3. The bot can post messages\n\n"+
		"How to fix: open %s, go to Settings → Administrators, add %s and give it the 'Post Messages' permission.",
		bot, chat, chat, bot)
}

func (p *Publisher) emit(ctx context.Context, e events.Event) {
	if err := p.events.Publish(ctx, e); err != nil {
		p.log.Warn("publish event", "type", e.Type, "product_id", e.ProductID, "err", err)
	}
}
