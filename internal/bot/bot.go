// Package bot routes incoming chat updates to the intake flow, the store
// operations and the channel publisher.
package bot

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/storebot/internal/config"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
	"github.com/hpungsan/storebot/internal/intake"
	"github.com/hpungsan/storebot/internal/ops"
	"github.com/hpungsan/storebot/internal/publish"
	"github.com/hpungsan/storebot/internal/render"
	"github.com/hpungsan/storebot/internal/telegram"
)

// API is the part of the chat platform client the bot talks to.
type API interface {
	publish.Transport
	AnswerCallbackQuery(ctx context.Context, id, text string, alert bool) error
	AnswerInlineQuery(ctx context.Context, queryID string, results []telegram.InlineArticle, cacheTime int, emptyText string) error
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	Download(ctx context.Context, filePath, dst string) error
}

// Deps are the collaborators of a Bot. Events, Stamper and Logger may be nil;
// without a Stamper replacement photos are stored unstamped.
type Deps struct {
	API       API
	Engine    *intake.Engine
	DB        *sql.DB
	Publisher *publish.Publisher
	Events    events.Publisher
	Stamper   ops.Stamper
	Config    *config.Config
	Logger    *slog.Logger
}

// Bot handles one update at a time per call; calls may run concurrently.
type Bot struct {
	api       API
	engine    *intake.Engine
	db        *sql.DB
	publisher *publish.Publisher
	events    events.Publisher
	stamper   ops.Stamper
	cfg       *config.Config
	log       *slog.Logger

	now      func() time.Time
	fileName func() string
}

// New creates a Bot.
func New(d Deps) *Bot {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	pub := d.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Bot{
		api:       d.API,
		engine:    d.Engine,
		db:        d.DB,
		publisher: d.Publisher,
		events:    pub,
		stamper:   d.Stamper,
		cfg:       d.Config,
		log:       log.With("component", "bot"),
		now:       time.Now,
		fileName:  func() string { return uuid.NewString() + ".jpg" },
	}
}

// HandleUpdate dispatches one update. Failures are reported to the user where
// there is someone to tell, and logged; they are never returned.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	case u.InlineQuery != nil:
		b.handleInline(ctx, u.InlineQuery)
	default:
		b.log.Debug("ignored update", "update_id", u.UpdateID)
	}
}

// reply sends text to a private chat.
func (b *Bot) reply(ctx context.Context, userID int64, text string, kb render.Keyboard) {
	if _, err := b.api.SendMessage(ctx, chatID(userID), text, kb); err != nil {
		b.log.Warn("send reply", "user_id", userID, "err", err)
	}
}

// replyError turns an operation failure into a user message.
func (b *Bot) replyError(ctx context.Context, userID int64, action string, err error) {
	se, ok := errors.As(err)
	if !ok || se.Code == errors.ErrInternal || se.Code == errors.ErrStorageUnavailable {
		b.log.Error(action, "user_id", userID, "err", err)
		b.reply(ctx, userID, "❌ Something went wrong on our side. Please try again in a moment.", nil)
		return
	}
	b.log.Info(action+" rejected", "user_id", userID, "code", se.Code, "msg", se.Message)
	text := "❌ " + se.Message
	if fix := errors.Remediation(err); fix != "" {
		text += "\n\n" + fix
	}
	b.reply(ctx, userID, text, nil)
}

func chatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// chatRef names the chat a message lives in, preferring the public username.
func chatRef(c telegram.Chat) string {
	if c.Username != "" {
		return "@" + c.Username
	}
	return chatID(c.ID)
}
