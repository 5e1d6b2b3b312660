package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/storebot/internal/errors"
	"github.com/hpungsan/storebot/internal/render"
)

type captured struct {
	method      string
	contentType string
	form        map[string]string
	files       map[string]string
}

type apiServer struct {
	mu       sync.Mutex
	requests []captured
	replies  map[string]string
	status   map[string]int
}

func newAPIServer(t *testing.T) (*apiServer, *Client) {
	t.Helper()
	s := &apiServer{replies: map[string]string{}, status: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(srv.Close)
	return s, NewClient("TOKEN", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func (s *apiServer) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/botTOKEN/") {
		_, _ = io.WriteString(w, "JPEGDATA")
		return
	}
	method := strings.TrimPrefix(r.URL.Path, "/botTOKEN/")
	c := captured{method: method, contentType: r.Header.Get("Content-Type"), form: map[string]string{}, files: map[string]string{}}

	if strings.HasPrefix(c.contentType, "multipart/form-data") {
		_ = r.ParseMultipartForm(1 << 20)
		for k, v := range r.MultipartForm.Value {
			c.form[k] = v[0]
		}
		for k, fhs := range r.MultipartForm.File {
			f, _ := fhs[0].Open()
			data, _ := io.ReadAll(f)
			f.Close()
			c.files[k] = string(data)
		}
	} else {
		_ = r.ParseForm()
		for k, v := range r.PostForm {
			c.form[k] = v[0]
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, c)
	reply, ok := s.replies[method]
	status := s.status[method]
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
	}
	if !ok {
		reply = `{"ok":true,"result":true}`
	}
	_, _ = io.WriteString(w, reply)
}

func (s *apiServer) last() captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestSendMessage(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["sendMessage"] = `{"ok":true,"result":{"message_id":42,"chat":{"id":5,"type":"private"}}}`

	kb := render.Row(render.Button{Text: "Go", Data: "go"}, render.Button{Text: "Site", URL: "https://shop.example"})
	id, err := c.SendMessage(context.Background(), "5", "*hi*", kb)
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	req := s.last()
	assert.Equal(t, "sendMessage", req.method)
	assert.Equal(t, "5", req.form["chat_id"])
	assert.Equal(t, ParseMarkdown, req.form["parse_mode"])

	var markup struct {
		InlineKeyboard [][]map[string]string `json:"inline_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.form["reply_markup"]), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "go", markup.InlineKeyboard[0][0]["callback_data"])
	assert.Equal(t, "https://shop.example", markup.InlineKeyboard[0][1]["url"])
}

func TestSendMessage_ChannelUsername(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["sendMessage"] = `{"ok":true,"result":{"message_id":1,"chat":{"id":-100,"type":"channel"}}}`

	_, err := c.SendMessage(context.Background(), "@shop", "hello", nil)
	require.NoError(t, err)
	req := s.last()
	assert.Equal(t, "@shop", req.form["chat_id"])
	assert.NotContains(t, req.form, "reply_markup")
}

func TestSendPhoto_UploadsLocalFile(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["sendPhoto"] = `{"ok":true,"result":{"message_id":7,"chat":{"id":-100,"type":"channel"}}}`

	path := filepath.Join(t.TempDir(), "main_watermarked.jpg")
	require.NoError(t, os.WriteFile(path, []byte("IMG"), 0o644))

	id, err := c.SendPhoto(context.Background(), "@shop", path, "caption", render.Row(render.Button{Text: "Buy", Data: "order_P1"}))
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	req := s.last()
	assert.True(t, strings.HasPrefix(req.contentType, "multipart/form-data"))
	assert.Equal(t, "@shop", req.form["chat_id"])
	assert.Equal(t, "caption", req.form["caption"])
	assert.Contains(t, req.form["reply_markup"], "order_P1")
	assert.Equal(t, "IMG", req.files["photo"])
}

func TestSendPhoto_FileIDPassesThrough(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["sendPhoto"] = `{"ok":true,"result":{"message_id":8,"chat":{"id":1,"type":"private"}}}`

	_, err := c.SendPhoto(context.Background(), "1", "AgACAgQAAxkBAAIB", "", nil)
	require.NoError(t, err)
	req := s.last()
	assert.Equal(t, "AgACAgQAAxkBAAIB", req.form["photo"])
	assert.NotContains(t, req.form, "parse_mode")
	assert.Empty(t, req.files)
}

func TestSendMediaGroup(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["sendMediaGroup"] = `{"ok":true,"result":[{"message_id":10,"chat":{"id":1,"type":"channel"}},{"message_id":11,"chat":{"id":1,"type":"channel"}}]}`

	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	require.NoError(t, os.WriteFile(a, []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("B"), 0o644))

	ids, err := c.SendMediaGroup(context.Background(), "@shop", []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, ids)

	req := s.last()
	assert.Equal(t, "@shop", req.form["chat_id"])
	uploaded := make([]string, 0, len(req.files))
	for _, data := range req.files {
		uploaded = append(uploaded, data)
	}
	assert.ElementsMatch(t, []string{"A", "B"}, uploaded)
	assert.Contains(t, req.form["media"], "attach://")
}

func TestEditMessageCaption_NilKeyboardOmitsMarkup(t *testing.T) {
	s, c := newAPIServer(t)
	require.NoError(t, c.EditMessageCaption(context.Background(), "@shop", 9, "sold", nil))
	req := s.last()
	assert.Equal(t, "editMessageCaption", req.method)
	assert.Equal(t, "9", req.form["message_id"])
	assert.Equal(t, "sold", req.form["caption"])
	assert.NotContains(t, req.form, "reply_markup")
}

func TestEditMessageReplyMarkup_NilKeyboardClearsButtons(t *testing.T) {
	s, c := newAPIServer(t)
	require.NoError(t, c.EditMessageReplyMarkup(context.Background(), "-100123", 4, nil))
	req := s.last()
	assert.Equal(t, "-100123", req.form["chat_id"])
	assert.JSONEq(t, `{"inline_keyboard":[]}`, req.form["reply_markup"])
}

func TestAnswerCallbackQuery(t *testing.T) {
	s, c := newAPIServer(t)
	require.NoError(t, c.AnswerCallbackQuery(context.Background(), "cb1", "Saved", true))
	req := s.last()
	assert.Equal(t, "answerCallbackQuery", req.method)
	assert.Equal(t, "cb1", req.form["callback_query_id"])
	assert.Equal(t, "Saved", req.form["text"])
	assert.Equal(t, "true", req.form["show_alert"])
}

func TestAnswerInlineQuery(t *testing.T) {
	s, c := newAPIServer(t)
	results := []InlineArticle{{
		ID: "P1", Title: "Laptop", Description: "ETB 45,000.00 - Addis Electronics",
		Text: "*Laptop*", Keyboard: render.Row(render.Button{Text: "Order", Data: "order_P1"}),
	}}
	require.NoError(t, c.AnswerInlineQuery(context.Background(), "iq1", results, 30, ""))

	req := s.last()
	assert.Equal(t, "answerInlineQuery", req.method)
	assert.Equal(t, "iq1", req.form["inline_query_id"])
	assert.Equal(t, "30", req.form["cache_time"])

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.form["results"]), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "article", got[0]["type"])
	assert.Equal(t, "P1", got[0]["id"])
	assert.Equal(t, "ETB 45,000.00 - Addis Electronics", got[0]["description"])
	assert.Contains(t, req.form["results"], "order_P1")
}

func TestAnswerInlineQuery_EmptyShowsSwitchText(t *testing.T) {
	s, c := newAPIServer(t)
	require.NoError(t, c.AnswerInlineQuery(context.Background(), "iq2", nil, 10, "No products found"))
	req := s.last()
	assert.Equal(t, "No products found", req.form["switch_pm_text"])
	assert.Equal(t, "search", req.form["switch_pm_parameter"])
	assert.JSONEq(t, `[]`, req.form["results"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   errors.ErrorCode
	}{
		{"forbidden", 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`, errors.ErrPermissionDenied},
		{"chat not found", 400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, errors.ErrPermissionDenied},
		{"rate limited", 429, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`, errors.ErrTransientDispatch},
		{"server error", 502, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`, errors.ErrTransientDispatch},
		{"bad request", 400, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`, errors.ErrValidation},
		{"garbage", 502, `<html>bad gateway</html>`, errors.ErrTransientDispatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newAPIServer(t)
			s.replies["sendMessage"] = tt.body
			s.status["sendMessage"] = tt.status
			_, err := c.SendMessage(context.Background(), "@shop", "x", nil)
			assert.True(t, errors.Is(err, tt.code), "err = %v", err)
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	u := srv.URL
	srv.Close()

	c := NewClient("TOKEN", WithBaseURL(u))
	_, err := c.SendMessage(context.Background(), "1", "x", nil)
	assert.True(t, errors.Is(err, errors.ErrTransientDispatch))
}

func TestGetUpdates(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["getUpdates"] = `{"ok":true,"result":[
		{"update_id":100,"message":{"message_id":1,"from":{"id":5,"first_name":"Hana"},"chat":{"id":5,"type":"private"},"date":1,
		 "media_group_id":"g1","photo":[{"file_id":"small","file_unique_id":"s","width":90,"height":90},{"file_id":"big","file_unique_id":"b","width":1280,"height":960}]}},
		{"update_id":101,"callback_query":{"id":"cb1","from":{"id":5},"data":"like_P1","message":{"message_id":3,"chat":{"id":-100,"type":"channel","username":"shop"},"date":1}}},
		{"update_id":102,"inline_query":{"id":"iq1","from":{"id":9},"query":"laptop","offset":""}}
	]}`

	updates, err := c.GetUpdates(context.Background(), 100, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 3)

	photo, ok := updates[0].Message.LargestPhoto()
	require.True(t, ok)
	assert.Equal(t, "big", photo.FileID)
	assert.Equal(t, "g1", updates[0].Message.MediaGroupID)
	assert.Equal(t, "like_P1", updates[1].CallbackQuery.Data)
	assert.Equal(t, "laptop", updates[2].InlineQuery.Query)
	assert.EqualValues(t, 9, updates[2].Sender().ID)

	req := s.last()
	assert.Equal(t, "100", req.form["offset"])
	assert.Equal(t, "30", req.form["timeout"])
	assert.Contains(t, req.form["allowed_updates"], "inline_query")
}

func TestGetFileAndDownload(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["getFile"] = `{"ok":true,"result":{"file_id":"big","file_path":"photos/file_1.jpg"}}`

	f, err := c.GetFile(context.Background(), "big")
	require.NoError(t, err)
	assert.Equal(t, "photos/file_1.jpg", f.FilePath)

	dst := filepath.Join(t.TempDir(), "media", "x.jpg")
	require.NoError(t, c.Download(context.Background(), f.FilePath, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "JPEGDATA", string(data))
	_, err = os.Stat(dst + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestSetWebhook(t *testing.T) {
	s, c := newAPIServer(t)
	require.NoError(t, c.SetWebhook(context.Background(), "https://bot.example.com/webhook/abc", "abc"))
	req := s.last()
	assert.Equal(t, "setWebhook", req.method)
	assert.Equal(t, "https://bot.example.com/webhook/abc", req.form["url"])
	assert.Equal(t, "abc", req.form["secret_token"])
}

func TestGetMe(t *testing.T) {
	s, c := newAPIServer(t)
	s.replies["getMe"] = `{"ok":true,"result":{"id":77,"is_bot":true,"first_name":"Store","username":"addis_store_bot"}}`
	me, err := c.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "addis_store_bot", me.Username)
	assert.EqualValues(t, 77, me.ID)
}

func TestCanceledContextAbortsCall(t *testing.T) {
	_, c := newAPIServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SendMessage(ctx, "1", "x", nil)
	assert.True(t, errors.Is(err, errors.ErrTransientDispatch), "err = %v", err)
}
