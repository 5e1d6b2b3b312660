package publish

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/db"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
	"github.com/hpungsan/storebot/internal/render"
)

type sentCall struct {
	method  string
	chat    string
	image   string
	images  []string
	caption string
	kb      render.Keyboard
	msgID   int
}

type fakeTransport struct {
	mu       sync.Mutex
	calls    []sentCall
	nextID   int
	photoErr error
	groupErr error
	editErr  map[int]error
}

func (f *fakeTransport) record(c sentCall) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.msgID = f.nextID
	f.calls = append(f.calls, c)
	return f.nextID
}

func (f *fakeTransport) SendMessage(_ context.Context, chat, text string, kb render.Keyboard) (int, error) {
	return f.record(sentCall{method: "sendMessage", chat: chat, caption: text, kb: kb}), nil
}

func (f *fakeTransport) SendPhoto(_ context.Context, chat, imagePath, caption string, kb render.Keyboard) (int, error) {
	if f.photoErr != nil {
		return 0, f.photoErr
	}
	return f.record(sentCall{method: "sendPhoto", chat: chat, image: imagePath, caption: caption, kb: kb}), nil
}

func (f *fakeTransport) SendMediaGroup(_ context.Context, chat string, images []string) ([]int, error) {
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	id := f.record(sentCall{method: "sendMediaGroup", chat: chat, images: images})
	return []int{id}, nil
}

func (f *fakeTransport) EditMessageCaption(_ context.Context, chat string, messageID int, caption string, kb render.Keyboard) error {
	if err := f.editErr[messageID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{method: "editMessageCaption", chat: chat, msgID: messageID, caption: caption, kb: kb})
	return nil
}

func (f *fakeTransport) EditMessageReplyMarkup(_ context.Context, chat string, messageID int, kb render.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{method: "editMessageReplyMarkup", chat: chat, msgID: messageID, kb: kb})
	return nil
}

func (f *fakeTransport) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakeTransport) last() sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fixture struct {
	store     *db.Store
	transport *fakeTransport
	events    *events.Recorder
	pub       *Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqlDB, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertUser(ctx, sqlDB, &catalog.User{ID: 10, Username: "sam"}))
	require.NoError(t, db.UpdateSellerProfile(ctx, sqlDB, 10, "Sam Shop", "+251911000000", "@samshop"))
	require.NoError(t, db.UpsertUser(ctx, sqlDB, &catalog.User{ID: 20, Username: "nochannel"}))
	require.NoError(t, db.UpsertUser(ctx, sqlDB, &catalog.User{ID: 30, Username: "other"}))
	require.NoError(t, db.UpdateSellerProfile(ctx, sqlDB, 30, "Other", "+251922000000", "@other"))

	f := &fixture{
		store:     db.NewStore(sqlDB),
		transport: &fakeTransport{editErr: map[int]error{}},
		events:    &events.Recorder{},
	}
	f.pub = New(f.transport, f.store, f.events, Options{BotUsername: "storebot", DispatchTimeout: time.Second}, nil)
	return f
}

func (f *fixture) product(t *testing.T, id string, sellerID int64) *catalog.Product {
	t.Helper()
	price := 45000.0
	p := &catalog.Product{
		ID:                id,
		SellerID:          sellerID,
		Title:             "Lenovo ThinkPad",
		Description:       "Barely used",
		Price:             &price,
		Category:          "laptops",
		Type:              catalog.TypeStandard,
		ImagePath:         "media/main_watermarked.jpg",
		OriginalImagePath: "media/main.jpg",
		IsActive:          true,
		IsPublic:          true,
		LikeEnabled:       true,
		SaveEnabled:       true,
		OrderEnabled:      true,
	}
	p.Fields.Set("brand", "Lenovo")
	p.Fields.Gallery = []string{"media/g1_watermarked.jpg", "media/g2_watermarked.jpg"}
	require.NoError(t, f.store.CreateProduct(context.Background(), p))
	return p
}

func TestPublishProduct_GalleryThenCaptionedMain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "P1", 10)

	post, err := f.pub.PublishProduct(ctx, 10, "P1")
	require.NoError(t, err)

	assert.Equal(t, []string{"sendMediaGroup", "sendPhoto"}, f.transport.methods())
	photo := f.transport.last()
	assert.Equal(t, "@samshop", photo.chat)
	assert.Equal(t, "media/main_watermarked.jpg", photo.image)
	assert.Contains(t, photo.caption, "Lenovo ThinkPad")
	assert.Contains(t, photo.caption, "Sam Shop")
	require.NotEmpty(t, photo.kb)
	assert.Equal(t, render.CallbackLike+"P1", photo.kb[0][0].Data)

	assert.Equal(t, photo.msgID, post.MessageID)
	posts, err := f.store.ListChannelPosts(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "@samshop", posts[0].Channel)
	assert.Equal(t, photo.msgID, posts[0].MessageID)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.ProductPosted, evs[0].Type)
	assert.Equal(t, "P1", evs[0].ProductID)
	assert.Equal(t, "@samshop", evs[0].Channel)
}

func TestDispatch_WithoutGallery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "P1", 10)
	seller, err := f.store.GetUser(ctx, 10)
	require.NoError(t, err)

	_, err = f.pub.Dispatch(ctx, p, seller, "@elsewhere", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"sendPhoto"}, f.transport.methods())
	assert.Equal(t, "@elsewhere", f.transport.last().chat)
}

func TestPublishProduct_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "P1", 10)
	f.product(t, "P2", 20)

	_, err := f.pub.PublishProduct(ctx, 30, "P1")
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))

	_, err = f.pub.PublishProduct(ctx, 20, "P2")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.pub.PublishProduct(ctx, 10, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, f.store.SetProductActive(ctx, "P1", false))
	_, err = f.pub.PublishProduct(ctx, 10, "P1")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	assert.Empty(t, f.transport.methods())
	assert.Empty(t, f.events.Events())
}

func TestPublishProduct_PermissionRemediation(t *testing.T) {
	f := newFixture(t)
	f.product(t, "P1", 10)
	f.transport.photoErr = errors.NewPermissionDenied("chat write forbidden", "")

	_, err := f.pub.PublishProduct(context.Background(), 10, "P1")
	require.True(t, errors.Is(err, errors.ErrPermissionDenied))
	remedy := errors.Remediation(err)
	assert.Contains(t, remedy, "@storebot")
	assert.Contains(t, remedy, "@samshop")

	posts, lerr := f.store.ListChannelPosts(context.Background(), "P1")
	require.NoError(t, lerr)
	assert.Empty(t, posts)
	assert.Empty(t, f.events.Events())
}

func TestPublishProduct_TransientFailure(t *testing.T) {
	f := newFixture(t)
	f.product(t, "P1", 10)
	f.transport.groupErr = stderrors.New("connection reset")

	_, err := f.pub.PublishProduct(context.Background(), 10, "P1")
	assert.True(t, errors.Is(err, errors.ErrTransientDispatch))
	assert.Empty(t, f.transport.methods())
}

func TestMarkSold_EditsEveryPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "P1", 10)

	first, err := f.pub.PublishProduct(ctx, 10, "P1")
	require.NoError(t, err)
	second, err := f.pub.PublishProduct(ctx, 10, "P1")
	require.NoError(t, err)
	third, err := f.pub.PublishProduct(ctx, 10, "P1")
	require.NoError(t, err)
	f.transport.editErr[second.MessageID] = stderrors.New("message to edit not found")

	res, err := f.pub.MarkSold(ctx, 10, "P1")
	require.NoError(t, err)
	assert.Equal(t, &MarkSoldResult{Posts: 3, Edited: 2, Failed: 1}, res)

	var edited []int
	f.transport.mu.Lock()
	for _, c := range f.transport.calls {
		if c.method == "editMessageCaption" {
			edited = append(edited, c.msgID)
			assert.True(t, strings.Contains(c.caption, "Sold"), "caption %q", c.caption)
			assert.Nil(t, c.kb)
		}
	}
	f.transport.mu.Unlock()
	assert.Equal(t, []int{first.MessageID, third.MessageID}, edited)

	p, err := f.store.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, p.IsActive)
	assert.Equal(t, "Lenovo ThinkPad", p.Title)

	evs := f.events.Events()
	assert.Equal(t, events.ProductSold, evs[len(evs)-1].Type)
}

func TestMarkSold_NotOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "P1", 10)

	_, err := f.pub.MarkSold(ctx, 30, "P1")
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))

	p, err := f.store.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, p.IsActive)
}

func TestRefreshKeyboard(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P1", 10)
	p.LikesCount = 4

	require.NoError(t, f.pub.RefreshKeyboard(context.Background(), "@samshop", 77, p))
	c := f.transport.last()
	assert.Equal(t, "editMessageReplyMarkup", c.method)
	assert.Equal(t, 77, c.msgID)
	assert.Equal(t, "❤️ Like - 4", c.kb[0][0].Text)
}

func TestChannelContext_FallbackName(t *testing.T) {
	rc := ChannelContext(&catalog.User{ID: 1})
	assert.Equal(t, "Your Store", rc.SellerName)
	assert.True(t, rc.ForChannel)

	rc = ChannelContext(&catalog.User{ID: 1, StoreName: "Sam Shop", Phone: "+251"})
	assert.Equal(t, "Sam Shop", rc.SellerName)
	assert.Equal(t, "+251", rc.SellerPhone)
}

func TestNotify(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pub.Notify(context.Background(), 42, "hello", nil))
	c := f.transport.last()
	assert.Equal(t, "sendMessage", c.method)
	assert.Equal(t, "42", c.chat)
}
