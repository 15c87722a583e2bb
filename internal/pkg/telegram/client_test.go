package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOK(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	assert.NoError(t, err)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": json.RawMessage(raw)})
}

func TestSendDocumentMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendDocument", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "-100123", r.FormValue("chat_id"))
		assert.Equal(t, `{"v":1}`, r.FormValue("caption"))

		f, hdr, err := r.FormFile("document")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "chunk.part0", hdr.Filename)
		assert.Equal(t, "hello", string(data))

		writeOK(t, w, Message{
			MessageID: 7,
			Chat:      Chat{ID: -100123, Type: "channel"},
			Document:  &Document{FileID: "fid", FileUniqueID: "uniq", FileSize: 5},
		})
	}))
	defer srv.Close()

	c := NewClient("TOKEN", Options{BaseURL: srv.URL})
	msg, err := c.SendDocument(context.Background(), "-100123", "chunk.part0", `{"v":1}`, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), msg.MessageID)
	assert.Equal(t, "-100123", msg.Chat.IDString())
	assert.Equal(t, "fid", msg.Document.FileID)
}

func TestRateLimitParsedIntoAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN", Options{BaseURL: srv.URL})
	_, err := c.GetFile(context.Background(), "fid")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.RateLimited())
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, 3*time.Second, apiErr.RetryAfter)
	assert.NotContains(t, err.Error(), "TOKEN")
}

func TestPermanentErrorIsNotTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN", Options{BaseURL: srv.URL})
	err := c.DeleteMessage(context.Background(), "-100123", 9)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.Temporary())
	assert.Zero(t, apiErr.RetryAfter)
}

func TestGetFileAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/getFile", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "fid", r.FormValue("file_id"))
		writeOK(t, w, File{FileID: "fid", FilePath: "documents/file_1.bin"})
	})
	mux.HandleFunc("/file/botTOKEN/documents/file_1.bin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient("TOKEN", Options{BaseURL: srv.URL})
	f, err := c.GetFile(context.Background(), "fid")
	require.NoError(t, err)
	data, err := c.DownloadFile(context.Background(), f.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient("TOKEN", Options{BaseURL: srv.URL})
	_, err := c.DownloadFile(context.Background(), "documents/missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestGetUpdatesPrefersChannelPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "1000", r.FormValue("limit"))
		assert.True(t, strings.Contains(r.FormValue("allowed_updates"), "channel_post"))
		writeOK(t, w, []Update{
			{UpdateID: 1, ChannelPost: &Message{MessageID: 10, Caption: "a"}},
			{UpdateID: 2, Message: &Message{MessageID: 11, Caption: "b"}},
			{UpdateID: 3},
		})
	}))
	defer srv.Close()

	c := NewClient("TOKEN", Options{BaseURL: srv.URL})
	updates, err := c.GetUpdates(context.Background(), 0, 1000)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.Equal(t, int64(10), updates[0].Post().MessageID)
	assert.Equal(t, int64(11), updates[1].Post().MessageID)
	assert.Nil(t, updates[2].Post())
}

func TestPoolReusesClientPerToken(t *testing.T) {
	p := NewPool(2, time.Minute, Options{})
	a := p.Get("token-a")
	assert.Same(t, a, p.Get("token-a"))
	assert.NotSame(t, a, p.Get("token-b"))

	p.Get("token-c")
	assert.Equal(t, 2, p.Len())
	assert.NotSame(t, a, p.Get("token-a"), "least recently used client is evicted")
}
