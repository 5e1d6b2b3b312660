// Package intake walks a seller through creating a product: type, category,
// photos, main image, text fields and preview, ending in a committed product
// or a cancelled draft.
package intake

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hpungsan/storebot/internal/album"
	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
	"github.com/hpungsan/storebot/internal/render"
)

// Prompt is one outgoing message. Gallery images go out first as a media
// group; then Photo with Text as caption, or Text alone when Photo is empty.
type Prompt struct {
	Text     string
	Keyboard render.Keyboard
	Photo    string
	Gallery  []string
}

// Prompter delivers prompts to a user's private chat.
type Prompter interface {
	Send(ctx context.Context, chatID int64, p Prompt) error
}

// Storage is the slice of the product store the intake flow needs.
type Storage interface {
	GetUser(ctx context.Context, id int64) (*catalog.User, error)
	CountActiveProducts(ctx context.Context, sellerID int64) (int, error)
	CreateProduct(ctx context.Context, p *catalog.Product) error
}

// Stamper watermarks an image. It returns path unchanged when stamping fails.
type Stamper interface {
	Stamp(path, label, outputPath string) string
}

// Options tune the flow.
type Options struct {
	MaxPhotos       int
	MaxFreeProducts int
	BotUsername     string
	// DraftTTL discards drafts idle for longer; 0 keeps them forever
	DraftTTL time.Duration
	// AlbumWindow is the quiet period before a media group is merged
	AlbumWindow time.Duration
	// MergeTimeout bounds the storage and prompt work of one album merge
	MergeTimeout time.Duration
}

// Deps are the collaborators of an Engine. Events and Logger may be nil.
type Deps struct {
	Drafts   draft.Store
	Storage  Storage
	Stamper  Stamper
	Prompter Prompter
	Events   events.Publisher
	Logger   *slog.Logger
}

// Engine runs the intake state machine. All mutations of one user's draft are
// serialized through a per-user lock; different users proceed in parallel.
type Engine struct {
	opts     Options
	drafts   draft.Store
	storage  Storage
	stamper  Stamper
	prompter Prompter
	events   events.Publisher
	log      *slog.Logger

	locks *draft.Locker
	album *album.Aggregator

	now        func() time.Time
	newID      func() string
	removeFile func(string) error
}

// New creates an Engine with its own album aggregator.
func New(opts Options, deps Deps) *Engine {
	if opts.MaxPhotos <= 0 {
		opts.MaxPhotos = 8
	}
	if opts.AlbumWindow <= 0 {
		opts.AlbumWindow = 400 * time.Millisecond
	}
	if opts.MergeTimeout <= 0 {
		opts.MergeTimeout = 30 * time.Second
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}

	e := &Engine{
		opts:       opts,
		drafts:     deps.Drafts,
		storage:    deps.Storage,
		stamper:    deps.Stamper,
		prompter:   deps.Prompter,
		events:     pub,
		log:        log.With("component", "intake"),
		locks:      draft.NewLocker(),
		now:        time.Now,
		newID:      catalog.NewID,
		removeFile: os.Remove,
	}
	e.album = album.New(opts.AlbumWindow, e.mergeBatch)
	return e
}

// Close stops pending album timers and removes the files of batches that
// never reached a draft.
func (e *Engine) Close() {
	for _, b := range e.album.Close() {
		e.removePhotos(b.Photos)
	}
}

// Start opens a fresh draft for a registered seller, discarding any draft in
// progress. Non-premium sellers at the product limit are refused.
func (e *Engine) Start(ctx context.Context, userID int64) error {
	user, err := e.storage.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return e.storageFailure(ctx, userID, err)
	}
	if !user.IsSeller() {
		e.send(ctx, userID, registerFirstPrompt())
		return errors.NewPermissionDenied("only registered sellers can add products", "Register your store with /register first.")
	}

	if e.opts.MaxFreeProducts > 0 && !user.HasPremium(e.now()) {
		n, err := e.storage.CountActiveProducts(ctx, userID)
		if err != nil {
			return e.storageFailure(ctx, userID, err)
		}
		if n >= e.opts.MaxFreeProducts {
			e.send(ctx, userID, limitPrompt(n, e.opts.MaxFreeProducts))
			return errors.NewCapacityExceeded("products", e.opts.MaxFreeProducts)
		}
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	if old, err := e.drafts.Get(ctx, userID); err == nil {
		e.discard(ctx, old)
	}

	now := e.now()
	d := &draft.Draft{
		UserID:    userID,
		SessionID: e.newID(),
		State:     draft.ChoosingType,
		CreatedAt: now,
	}
	if err := e.save(ctx, d); err != nil {
		return e.storageFailure(ctx, userID, err)
	}
	e.send(ctx, userID, typePrompt())
	return nil
}

// ChooseType records the product type.
func (e *Engine) ChooseType(ctx context.Context, userID int64, t catalog.ProductType) error {
	return e.step(ctx, userID, "choose type", func(d *draft.Draft) (Prompt, error) {
		if d.State != draft.ChoosingType {
			return Prompt{}, errors.NewInvalidState(string(d.State), "choose type")
		}
		switch t {
		case catalog.TypeStandard:
			d.ProductType = t
			d.State = draft.ChoosingCategory
			return categoryPrompt(), nil
		case catalog.TypeCustomDescription:
			d.ProductType = t
			d.State = draft.CollectingPhotos
			return photosPrompt(d), nil
		}
		return Prompt{}, errors.NewValidation("product_type", "unknown product type")
	})
}

// ChooseCategory records the category of a standard product.
func (e *Engine) ChooseCategory(ctx context.Context, userID int64, name string) error {
	return e.step(ctx, userID, "choose category", func(d *draft.Draft) (Prompt, error) {
		if d.State != draft.ChoosingCategory {
			return Prompt{}, errors.NewInvalidState(string(d.State), "choose category")
		}
		c, ok := catalog.LookupCategory(name)
		if !ok {
			return Prompt{}, errors.NewValidation("category", "unknown category")
		}
		d.Category = c.Name
		d.State = draft.CollectingPhotos
		return photosPrompt(d), nil
	})
}

// Cancel deletes the draft and its image files. It never fails; a user
// without a draft just gets the confirmation. A pending album for the old
// session finds no matching draft when it fires and cleans up after itself.
func (e *Engine) Cancel(ctx context.Context, userID int64) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	if d, err := e.drafts.Get(ctx, userID); err == nil {
		e.discard(ctx, d)
	} else if !errors.Is(err, errors.ErrNotFound) {
		e.log.Warn("cancel: load draft", "user_id", userID, "err", err)
		if err := e.drafts.Delete(ctx, userID); err != nil {
			e.log.Warn("cancel: delete draft", "user_id", userID, "err", err)
		}
	}
	e.send(ctx, userID, cancelledPrompt())
	return nil
}

// State returns the step the user's draft is on.
func (e *Engine) State(ctx context.Context, userID int64) (draft.State, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	d, err := e.load(ctx, userID)
	if err != nil {
		return "", err
	}
	return d.State, nil
}

// Resume resends the question the draft is waiting on.
func (e *Engine) Resume(ctx context.Context, userID int64) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	d, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	e.send(ctx, userID, stepPrompt(d))
	return nil
}

// step runs fn on the user's draft under the user lock. fn mutates d and
// returns the next prompt. Recoverable errors reprompt the current step and
// leave the stored draft untouched.
func (e *Engine) step(ctx context.Context, userID int64, action string, fn func(d *draft.Draft) (Prompt, error)) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	d, err := e.load(ctx, userID)
	if err != nil {
		return err
	}

	before := d.Clone()
	next, err := fn(d)
	if err != nil {
		if errors.IsRecoverable(err) {
			e.reprompt(ctx, before, err)
		}
		return err
	}

	if err := e.save(ctx, d); err != nil {
		e.log.Error("save draft", "user_id", userID, "action", action, "err", err)
		return e.storageFailure(ctx, userID, err)
	}
	e.send(ctx, userID, next)
	return nil
}

// load fetches a live draft. Expired drafts are discarded and reported as missing.
func (e *Engine) load(ctx context.Context, userID int64) (*draft.Draft, error) {
	d, err := e.drafts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if d.Expired(e.now(), e.opts.DraftTTL) {
		e.log.Info("draft expired", "user_id", userID, "state", d.State)
		e.discard(ctx, d)
		return nil, errors.NewNotFound("draft", "expired")
	}
	return d, nil
}

// save checks the draft against its state before persisting it, so a step
// that forgot a field never reaches the store.
func (e *Engine) save(ctx context.Context, d *draft.Draft) error {
	d.UpdatedAt = e.now()
	if err := d.Check(e.opts.MaxPhotos); err != nil {
		return errors.NewInternal(err)
	}
	return e.drafts.Put(ctx, d)
}

func (e *Engine) discard(ctx context.Context, d *draft.Draft) {
	if err := e.drafts.Delete(ctx, d.UserID); err != nil {
		e.log.Warn("delete draft", "user_id", d.UserID, "err", err)
	}
	for _, f := range d.Files() {
		e.remove(f)
	}
}

func (e *Engine) removePhotos(photos []draft.Photo) {
	for _, p := range photos {
		e.remove(p.OriginalPath)
	}
}

func (e *Engine) remove(path string) {
	if path == "" {
		return
	}
	if err := e.removeFile(path); err != nil && !os.IsNotExist(err) {
		e.log.Warn("remove image", "path", path, "err", err)
	}
}

func (e *Engine) reprompt(ctx context.Context, d *draft.Draft, cause error) {
	p := stepPrompt(d)
	// Media is not resent with an error
	p.Gallery = nil
	if p.Photo != "" {
		p.Photo = ""
		p.Text = "Tap *Create Product* to save it, or cancel."
	}
	p.Text = "❌ " + message(cause) + "\n\n" + p.Text
	e.send(ctx, d.UserID, p)
}

// storageFailure tells the user something went wrong and returns a storage
// error, keeping typed errors from the store as they are.
func (e *Engine) storageFailure(ctx context.Context, userID int64, err error) error {
	e.send(ctx, userID, Prompt{Text: "❌ Something went wrong on our side. Please try again in a moment."})
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewStorageUnavailable(err)
}

func (e *Engine) send(ctx context.Context, userID int64, p Prompt) {
	if err := e.prompter.Send(ctx, userID, p); err != nil {
		e.log.Warn("send prompt", "user_id", userID, "err", err)
	}
}

func message(err error) string {
	if se, ok := errors.As(err); ok {
		return se.Message
	}
	return err.Error()
}
