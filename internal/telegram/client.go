// Package telegram adapts the go-telegram-bot-api client to what the store
// bot sends and receives, and maps Bot API failures onto the error taxonomy.
package telegram

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/render"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// ParseMarkdown is the legacy Markdown parse mode used for every caption.
const ParseMarkdown = tgbotapi.ModeMarkdown

// allowedUpdates lists the update kinds the bot subscribes to.
var allowedUpdates = []string{"message", "callback_query", "inline_query"}

// Client calls the Bot API for one bot token.
type Client struct {
	baseURL    string
	token      string
	parseMode  string
	httpClient *http.Client
	api        *tgbotapi.BotAPI
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API server (tests, local Bot API).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithParseMode sets the parse mode of outgoing text and captions.
func WithParseMode(mode string) Option {
	return func(c *Client) { c.parseMode = mode }
}

// NewClient creates a Bot API client. It does not contact the API; use GetMe
// to check the token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		token:     token,
		parseMode: ParseMarkdown,
		// getUpdates long polls up to 50s
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = &tgbotapi.BotAPI{Token: token, Client: c.httpClient, Buffer: 100}
	c.api.SetAPIEndpoint(c.baseURL + "/bot%s/%s")
	return c
}

// ctxDoer binds every request of one call to ctx.
type ctxDoer struct {
	ctx  context.Context
	base *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.base.Do(req.WithContext(d.ctx))
}

// with returns a per-call copy of the library client whose requests carry ctx.
func (c *Client) with(ctx context.Context) *tgbotapi.BotAPI {
	api := *c.api
	api.Client = ctxDoer{ctx: ctx, base: c.httpClient}
	return &api
}

// GetMe returns the bot account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	u, err := c.with(ctx).GetMe()
	if err != nil {
		return nil, classify("getMe", err)
	}
	return &User{ID: u.ID, IsBot: u.IsBot, Username: u.UserName, FirstName: u.FirstName, LastName: u.LastName}, nil
}

// GetUpdates long polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]Update, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", offset)
	params.AddNonZero("timeout", int(timeout/time.Second))
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return nil, errors.NewInternal(err)
	}
	var updates []Update
	if err := c.request(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends text to chat and returns the message id.
func (c *Client) SendMessage(ctx context.Context, chat, text string, kb render.Keyboard) (int, error) {
	msg := tgbotapi.MessageConfig{Text: text, ParseMode: c.parseMode}
	msg.BaseChat = baseChat(chat, kb)
	m, err := c.with(ctx).Send(msg)
	if err != nil {
		return 0, classify("sendMessage", err)
	}
	return m.MessageID, nil
}

// SendPhoto sends one photo with caption and keyboard. imagePath is uploaded
// when it names a local file; otherwise it is passed through as a file id or URL.
func (c *Client) SendPhoto(ctx context.Context, chat, imagePath, caption string, kb render.Keyboard) (int, error) {
	photo := tgbotapi.PhotoConfig{Caption: caption}
	if caption != "" {
		photo.ParseMode = c.parseMode
	}
	photo.BaseFile = tgbotapi.BaseFile{BaseChat: baseChat(chat, kb), File: fileRef(imagePath)}
	m, err := c.with(ctx).Send(photo)
	if err != nil {
		return 0, classify("sendPhoto", err)
	}
	return m.MessageID, nil
}

// SendMediaGroup sends up to 10 photos as one album.
func (c *Client) SendMediaGroup(ctx context.Context, chat string, images []string) ([]int, error) {
	if len(images) == 0 {
		return nil, nil
	}
	if len(images) > 10 {
		images = images[:10]
	}

	media := make([]interface{}, 0, len(images))
	for _, img := range images {
		media = append(media, tgbotapi.NewInputMediaPhoto(fileRef(img)))
	}
	cfg := tgbotapi.MediaGroupConfig{Media: media}
	cfg.ChatID, cfg.ChannelUsername = chatTarget(chat)

	msgs, err := c.with(ctx).SendMediaGroup(cfg)
	if err != nil {
		return nil, classify("sendMediaGroup", err)
	}
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	return ids, nil
}

// EditMessageCaption replaces a caption. A nil keyboard removes the buttons.
func (c *Client) EditMessageCaption(ctx context.Context, chat string, messageID int, caption string, kb render.Keyboard) error {
	edit := tgbotapi.EditMessageCaptionConfig{Caption: caption, ParseMode: c.parseMode}
	edit.BaseEdit = baseEdit(chat, messageID)
	if len(kb) > 0 {
		edit.ReplyMarkup = markup(kb)
	}
	_, err := c.with(ctx).Request(edit)
	return classify("editMessageCaption", err)
}

// EditMessageReplyMarkup replaces the buttons of a message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chat string, messageID int, kb render.Keyboard) error {
	edit := tgbotapi.EditMessageReplyMarkupConfig{BaseEdit: baseEdit(chat, messageID)}
	edit.ReplyMarkup = markup(kb)
	_, err := c.with(ctx).Request(edit)
	return classify("editMessageReplyMarkup", err)
}

// AnswerCallbackQuery acknowledges a button press with an optional toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string, alert bool) error {
	cb := tgbotapi.NewCallback(id, text)
	if text != "" && alert {
		cb = tgbotapi.NewCallbackWithAlert(id, text)
	}
	_, err := c.with(ctx).Request(cb)
	return classify("answerCallbackQuery", err)
}

// InlineArticle is one text result of an inline query.
type InlineArticle struct {
	ID          string
	Title       string
	Description string
	Text        string
	Keyboard    render.Keyboard
}

// AnswerInlineQuery replies to an inline search. With no results, emptyText
// is shown as a button that opens the private chat.
func (c *Client) AnswerInlineQuery(ctx context.Context, queryID string, results []InlineArticle, cacheTime int, emptyText string) error {
	cfg := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       make([]interface{}, 0, len(results)),
		CacheTime:     cacheTime,
	}
	for _, r := range results {
		article := tgbotapi.NewInlineQueryResultArticleMarkdown(r.ID, r.Title, r.Text)
		article.Description = r.Description
		if len(r.Keyboard) > 0 {
			article.ReplyMarkup = markup(r.Keyboard)
		}
		cfg.Results = append(cfg.Results, article)
	}
	if len(results) == 0 && emptyText != "" {
		cfg.SwitchPMText = emptyText
		cfg.SwitchPMParameter = "search"
	}
	_, err := c.with(ctx).Request(cfg)
	return classify("answerInlineQuery", err)
}

// GetFile resolves a file id to a download path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := c.with(ctx).GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, classify("getFile", err)
	}
	if f.FilePath == "" {
		return nil, errors.NewTransientDispatch(fmt.Errorf("getFile %s: empty file_path", fileID))
	}
	return &File{FileID: f.FileID, FilePath: f.FilePath}, nil
}

// Download fetches a file by its getFile path into dst.
func (c *Client) Download(ctx context.Context, filePath, dst string) error {
	u := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewTransientDispatch(fmt.Errorf("download %s: %w", filePath, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewTransientDispatch(fmt.Errorf("download %s: status %d", filePath, resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.NewInternal(err)
	}
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewTransientDispatch(fmt.Errorf("download %s: %w", filePath, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewInternal(err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return errors.NewInternal(err)
	}
	return nil
}

// SetWebhook registers url for update delivery. secret is echoed back in the
// X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return errors.NewInternal(err)
	}
	return c.request(ctx, "setWebhook", params, nil)
}

// DeleteWebhook switches the bot back to getUpdates.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.with(ctx).Request(tgbotapi.DeleteWebhookConfig{})
	return classify("deleteWebhook", err)
}

// GetWebhookInfo reports the current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	info, err := c.with(ctx).GetWebhookInfo()
	if err != nil {
		return nil, classify("getWebhookInfo", err)
	}
	return &WebhookInfo{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		LastErrorMessage:   info.LastErrorMessage,
	}, nil
}

// request calls a raw method and decodes its result into out.
func (c *Client) request(ctx context.Context, method string, params tgbotapi.Params, out any) error {
	resp, err := c.with(ctx).MakeRequest(method, params)
	if err != nil {
		return classify(method, err)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return errors.NewInternal(fmt.Errorf("%s: decode result: %w", method, err))
	}
	return nil
}

// chatTarget splits a chat reference into a numeric id or an @channel name.
func chatTarget(chat string) (int64, string) {
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return id, ""
	}
	return 0, chat
}

func baseChat(chat string, kb render.Keyboard) tgbotapi.BaseChat {
	var bc tgbotapi.BaseChat
	bc.ChatID, bc.ChannelUsername = chatTarget(chat)
	if len(kb) > 0 {
		bc.ReplyMarkup = *markup(kb)
	}
	return bc
}

func baseEdit(chat string, messageID int) tgbotapi.BaseEdit {
	var be tgbotapi.BaseEdit
	be.ChatID, be.ChannelUsername = chatTarget(chat)
	be.MessageID = messageID
	return be
}

// markup converts a rendered keyboard. An empty keyboard clears the buttons.
func markup(kb render.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, buttons)
	}
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// fileRef uploads local files and passes URLs and file ids through.
func fileRef(path string) tgbotapi.RequestFileData {
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return tgbotapi.FileURL(path)
	case isLocalFile(path):
		return tgbotapi.FilePath(path)
	}
	return tgbotapi.FileID(path)
}

// classify maps a Bot API failure onto the error taxonomy. A nil err stays nil.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !stderrors.As(err, &apiErr) {
		return errors.NewTransientDispatch(fmt.Errorf("%s: %w", method, err))
	}

	desc := apiErr.Message
	lower := strings.ToLower(desc)
	switch {
	case apiErr.Code == http.StatusForbidden,
		strings.Contains(lower, "chat not found"),
		strings.Contains(lower, "not enough rights"),
		strings.Contains(lower, "bot is not a member"),
		strings.Contains(lower, "need administrator rights"):
		return errors.NewPermissionDenied(desc, "")
	case apiErr.Code == http.StatusTooManyRequests:
		return errors.NewTransientDispatch(fmt.Errorf("%s: rate limited, retry after %ds: %s", method, apiErr.RetryAfter, desc))
	case apiErr.Code >= 500:
		return errors.NewTransientDispatch(fmt.Errorf("%s: %d %s", method, apiErr.Code, desc))
	case apiErr.Code == http.StatusNotFound:
		return errors.NewNotFound("method", method)
	}
	return errors.NewValidation("telegram", fmt.Sprintf("%s: %s", method, desc))
}

func isLocalFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
