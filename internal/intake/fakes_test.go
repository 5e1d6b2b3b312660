package intake

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/storebot/internal/catalog"
	"github.com/hpungsan/storebot/internal/draft"
	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/events"
	"github.com/hpungsan/storebot/internal/watermark"
)

type sentPrompt struct {
	chatID int64
	prompt Prompt
}

type fakePrompter struct {
	mu   sync.Mutex
	sent []sentPrompt
}

func (f *fakePrompter) Send(_ context.Context, chatID int64, p Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPrompt{chatID: chatID, prompt: p})
	return nil
}

func (f *fakePrompter) all() []Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Prompt, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.prompt
	}
	return out
}

func (f *fakePrompter) last() Prompt {
	all := f.all()
	if len(all) == 0 {
		return Prompt{}
	}
	return all[len(all)-1]
}

type fakeStorage struct {
	mu        sync.Mutex
	users     map[int64]*catalog.User
	products  []*catalog.Product
	active    int
	createErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{users: map[int64]*catalog.User{
		1: {ID: 1, Username: "abebe", Role: catalog.RoleSeller, StoreName: "Abebe Shop", Channel: "@abebeshop"},
		2: {ID: 2, Username: "buyer", Role: catalog.RoleBuyer},
	}}
}

func (f *fakeStorage) GetUser(_ context.Context, id int64) (*catalog.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, errors.NewNotFound("user", strconv.FormatInt(id, 10))
	}
	c := *u
	return &c, nil
}

func (f *fakeStorage) CountActiveProducts(context.Context, int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeStorage) CreateProduct(_ context.Context, p *catalog.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.products = append(f.products, p)
	return nil
}

func (f *fakeStorage) created() []*catalog.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*catalog.Product(nil), f.products...)
}

type fakeStamper struct {
	mu     sync.Mutex
	labels []string
	fail   map[string]bool
}

func (f *fakeStamper) Stamp(path, label, out string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, label)
	if f.fail[path] {
		return path
	}
	return out
}

type fileLog struct {
	mu      sync.Mutex
	removed []string
}

func (f *fileLog) remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fileLog) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

type harness struct {
	engine   *Engine
	drafts   *draft.MemoryStore
	storage  *fakeStorage
	stamper  *fakeStamper
	prompter *fakePrompter
	events   *events.Recorder
	files    *fileLog

	mu  sync.Mutex
	now time.Time
	ids int
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		drafts:   draft.NewMemoryStore(),
		storage:  newFakeStorage(),
		stamper:  &fakeStamper{fail: map[string]bool{}},
		prompter: &fakePrompter{},
		events:   &events.Recorder{},
		files:    &fileLog{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	if opts.BotUsername == "" {
		opts.BotUsername = "storebot"
	}
	if opts.AlbumWindow == 0 {
		// Tests drain albums with FlushAlbum unless they want the timer
		opts.AlbumWindow = time.Hour
	}
	h.engine = New(opts, Deps{
		Drafts:   h.drafts,
		Storage:  h.storage,
		Stamper:  h.stamper,
		Prompter: h.prompter,
		Events:   h.events,
	})
	h.engine.now = h.clock
	h.engine.newID = h.nextID
	h.engine.removeFile = h.files.remove
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) nextID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids++
	return fmt.Sprintf("ID%03d", h.ids)
}

func (h *harness) draft(t *testing.T, userID int64) *draft.Draft {
	t.Helper()
	d, err := h.drafts.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("draft for %d: %v", userID, err)
	}
	return d
}

func photoN(i int) draft.Photo {
	return draft.Photo{OriginalPath: fmt.Sprintf("/media/p%d.jpg", i), SourceID: fmt.Sprintf("file%d", i)}
}

func stamped(i int) string {
	return watermark.StampedPath(photoN(i).OriginalPath)
}
