package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/handlers"
	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/crypto"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage/storagetest"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories/repotest"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/3Eeeecho/go-tgdisk/internal/services/share"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	jwtSecret = "router-test-secret"
	owner     = uint64(42)
	stranger  = uint64(43)
)

func init() {
	logger.SetLogger(zap.NewNop())
}

type env struct {
	t      *testing.T
	engine *gin.Engine
	remote *storagetest.Storage
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		JWT:    config.JWTConfig{SecretKey: jwtSecret, Issuer: "go-tgdisk"},
		Upload: config.UploadConfig{
			DefaultChunkSize: 4,
			MinChunkSize:     1,
			MaxChunkSize:     16,
			SessionTTL:       time.Hour,
			ReadConcurrency:  2,
		},
		Quota: config.QuotaConfig{DefaultBytes: 1 << 30},
	}

	cipher, err := crypto.NewTokenCipher(jwtSecret)
	require.NoError(t, err)
	db := repotest.New()
	remote := storagetest.New()
	store := db.Store()

	creds := admin.NewCredentialResolver(store.Users, cipher,
		storage.Credentials{Token: "123:env-token", ChannelID: "-100777"}, cfg.Quota.DefaultBytes)
	reader := explorer.NewRangeReader(store.Files, creds, remote, cfg.Upload.ReadConcurrency)

	engine := InitRouter(&Deps{
		Uploads:   explorer.NewUploadService(store, db, creds, remote, explorer.UploadOptionsFromConfig(cfg)),
		Files:     explorer.NewFileService(store, db, creds, remote, reader),
		Reconcile: explorer.NewReconcileService(store, db, creds, remote, 100),
		Shares:    handlers.NewShareHandler(share.NewShareService(store.Shares, store.Files, reader)),
		Users:     handlers.NewUserHandler(admin.NewUserService(store.Users, cfg.Quota.DefaultBytes), creds),
	}, cfg)
	return &env{t: t, engine: engine, remote: remote}
}

func bearer(t *testing.T, userID uint64) string {
	tok, err := utils.GenerateToken(userID, jwtSecret, "go-tgdisk", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

type request struct {
	method  string
	path    string
	body    []byte
	json    any
	headers map[string]string
	as      uint64 // 0 表示匿名
}

func (e *env) do(r request) *httptest.ResponseRecorder {
	e.t.Helper()
	body := r.body
	if r.json != nil {
		var err error
		body, err = json.Marshal(r.json)
		require.NoError(e.t, err)
	}
	req := httptest.NewRequest(r.method, r.path, bytes.NewReader(body))
	if r.json != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.as != 0 {
		req.Header.Set("Authorization", bearer(e.t, r.as))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// decode 取出响应信封中的 data
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) (T, xerr.Response) {
	t.Helper()
	var out T
	var envelope struct {
		xerr.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		require.NoError(t, json.Unmarshal(envelope.Data, &out))
	}
	return out, envelope.Response
}

// upload 通过 HTTP 完整上传一个文件
func (e *env) upload(name string, content []byte) uint64 {
	e.t.Helper()
	w := e.do(request{method: http.MethodPost, path: "/api/v1/files/initiate-upload", as: owner,
		json: models.InitiateUploadRequest{Name: name, Size: int64(len(content))}})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	started, _ := decode[models.InitiateUploadResult](e.t, w)

	for i := started.TotalChunks - 1; i >= 0; i-- {
		from := int64(i) * started.ChunkSize
		to := min(from+started.ChunkSize, int64(len(content)))
		w = e.do(request{
			method:  http.MethodPut,
			path:    fmt.Sprintf("/api/v1/files/%d/chunks/%d", started.FileID, i),
			body:    content[from:to],
			headers: map[string]string{"X-Upload-Id": started.UploadID},
			as:      owner,
		})
		require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	}

	w = e.do(request{method: http.MethodPost, path: fmt.Sprintf("/api/v1/files/%d/complete-upload", started.FileID), as: owner,
		json: models.CompleteUploadRequest{UploadID: started.UploadID}})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	return started.FileID
}

func TestPingAndUnknownRoute(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(request{method: http.MethodGet, path: "/ping"}).Code)

	w := e.do(request{method: http.MethodGet, path: "/nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, resp := decode[any](t, w)
	assert.Equal(t, xerr.NotFoundCode, resp.Code)
}

func TestOwnerRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	w := e.do(request{method: http.MethodGet, path: "/api/v1/files/1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(request{method: http.MethodGet, path: "/api/v1/files/1",
		headers: map[string]string{"Authorization": "Bearer not-a-token"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	_, resp := decode[any](t, w)
	assert.Equal(t, xerr.TokenInvalidCode, resp.Code)
}

func TestDownloadFullAndPartial(t *testing.T) {
	e := newEnv(t)
	content := []byte("hello chunked world")
	fileID := e.upload("greeting.txt", content)
	path := fmt.Sprintf("/api/v1/files/%d/download", fileID)

	w := e.do(request{method: http.MethodGet, path: path, as: owner})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = e.do(request{method: http.MethodGet, path: path, as: owner, headers: map[string]string{"Range": "bytes=3-9"}})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, content[3:10], w.Body.Bytes())
	assert.Equal(t, fmt.Sprintf("bytes 3-9/%d", len(content)), w.Header().Get("Content-Range"))

	w = e.do(request{method: http.MethodGet, path: path, as: owner, headers: map[string]string{"Range": "bytes=-5"}})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, content[len(content)-5:], w.Body.Bytes())

	w = e.do(request{method: http.MethodGet, path: path + "?inline=1", as: owner, headers: map[string]string{"Range": "bytes=0-0"}})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "h", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")

	w = e.do(request{method: http.MethodGet, path: path, as: owner, headers: map[string]string{"Range": "bytes=100-"}})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, fmt.Sprintf("bytes */%d", len(content)), w.Header().Get("Content-Range"))

	// 其他用户看不到该文件
	w = e.do(request{method: http.MethodGet, path: path, as: stranger})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadReportsUpstreamOutageAsRetryable(t *testing.T) {
	e := newEnv(t)
	fileID := e.upload("a.txt", []byte("payload"))
	e.remote.FailFetch = true

	w := e.do(request{method: http.MethodGet, path: fmt.Sprintf("/api/v1/files/%d/download", fileID), as: owner})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	_, resp := decode[any](t, w)
	assert.Equal(t, xerr.UpstreamUnavailableCode, resp.Code)
}

func TestUploadChunkRejectsOversizedBody(t *testing.T) {
	e := newEnv(t)
	w := e.do(request{method: http.MethodPost, path: "/api/v1/files/initiate-upload", as: owner,
		json: models.InitiateUploadRequest{Name: "a.bin", Size: 64, ChunkSize: 16}})
	require.Equal(t, http.StatusCreated, w.Code)
	started, _ := decode[models.InitiateUploadResult](t, w)

	w = e.do(request{
		method: http.MethodPut,
		path:   fmt.Sprintf("/api/v1/files/%d/chunks/0?uploadId=%s", started.FileID, started.UploadID),
		body:   bytes.Repeat([]byte("x"), 17),
		as:     owner,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, e.remote.UploadCount())

	w = e.do(request{method: http.MethodPut, path: fmt.Sprintf("/api/v1/files/%d/chunks/0", started.FileID),
		body: []byte("x"), as: owner})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompleteReportsMissingChunks(t *testing.T) {
	e := newEnv(t)
	w := e.do(request{method: http.MethodPost, path: "/api/v1/files/initiate-upload", as: owner,
		json: models.InitiateUploadRequest{Name: "a.bin", Size: 8, ChunkSize: 4}})
	require.Equal(t, http.StatusCreated, w.Code)
	started, _ := decode[models.InitiateUploadResult](t, w)

	w = e.do(request{method: http.MethodPut,
		path: fmt.Sprintf("/api/v1/files/%d/chunks/1?uploadId=%s", started.FileID, started.UploadID),
		body: []byte("5678"), as: owner})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(request{method: http.MethodPost, path: fmt.Sprintf("/api/v1/files/%d/complete-upload", started.FileID), as: owner,
		json: models.CompleteUploadRequest{UploadID: started.UploadID}})
	assert.Equal(t, http.StatusConflict, w.Code)
	progress, resp := decode[map[string]int](t, w)
	assert.Equal(t, xerr.UploadIncompleteCode, resp.Code)
	assert.Equal(t, 1, progress["uploadedChunks"])
	assert.Equal(t, 2, progress["totalChunks"])

	w = e.do(request{method: http.MethodGet,
		path: fmt.Sprintf("/api/v1/files/%d/upload-progress?uploadId=%s", started.FileID, started.UploadID), as: owner})
	require.Equal(t, http.StatusOK, w.Code)
	p, _ := decode[models.UploadProgress](t, w)
	assert.Equal(t, []int{1}, p.ReceivedChunks)
}

func TestTrashRestoreAndDelete(t *testing.T) {
	e := newEnv(t)
	fileID := e.upload("doc.txt", []byte("some document"))
	base := fmt.Sprintf("/api/v1/files/%d", fileID)

	w := e.do(request{method: http.MethodPost, path: base + "/trash", as: owner})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(request{method: http.MethodGet, path: base + "/download", as: owner})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(request{method: http.MethodPost, path: base + "/restore", as: owner})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(request{method: http.MethodGet, path: "/api/v1/settings/usage", as: owner})
	usage, _ := decode[admin.Usage](t, w)
	assert.Equal(t, int64(len("some document")), usage.UsedBytes)

	w = e.do(request{method: http.MethodDelete, path: base + "/permanent", as: owner})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, e.remote.UploadCount(), e.remote.DeleteCount())

	w = e.do(request{method: http.MethodGet, path: "/api/v1/settings/usage", as: owner})
	usage, _ = decode[admin.Usage](t, w)
	assert.Zero(t, usage.UsedBytes)

	w = e.do(request{method: http.MethodGet, path: base, as: owner})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShareLinkFlow(t *testing.T) {
	e := newEnv(t)
	content := []byte("shared bytes here")
	fileID := e.upload("shared.txt", content)

	w := e.do(request{method: http.MethodPost, path: fmt.Sprintf("/api/v1/files/%d/share-links", fileID), as: owner,
		json: map[string]any{"permission": "view", "password": "pw"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	link, _ := decode[models.ShareLink](t, w)

	// 公开路由不需要 token，但需要密码
	w = e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token + "?password=pw"})
	require.Equal(t, http.StatusOK, w.Code)
	view, _ := decode[models.SharedFileView](t, w)
	assert.Equal(t, "shared.txt", view.Name)
	assert.Equal(t, int64(len(content)), view.Size)

	w = e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token + "/download",
		headers: map[string]string{"X-Share-Password": "pw", "Range": "bytes=7-11"}})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, content[7:12], w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")

	w = e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token + "/download?password=pw",
		headers: map[string]string{"Range": "bytes=50-60"}})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, fmt.Sprintf("bytes */%d", len(content)), w.Header().Get("Content-Range"))

	w = e.do(request{method: http.MethodGet, path: fmt.Sprintf("/api/v1/files/%d/share-links", fileID), as: owner})
	links, _ := decode[[]models.ShareLink](t, w)
	require.Len(t, links, 1)

	w = e.do(request{method: http.MethodDelete, path: fmt.Sprintf("/api/v1/share-links/%d", link.ID), as: owner})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token + "?password=pw"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrivateShareVisibleOnlyToOwner(t *testing.T) {
	e := newEnv(t)
	fileID := e.upload("private.txt", []byte("private"))

	w := e.do(request{method: http.MethodPost, path: fmt.Sprintf("/api/v1/files/%d/share-links", fileID), as: owner,
		json: map[string]any{"isPublic": false}})
	require.Equal(t, http.StatusCreated, w.Code)
	link, _ := decode[models.ShareLink](t, w)

	assert.Equal(t, http.StatusNotFound, e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token, as: stranger}).Code)
	assert.Equal(t, http.StatusOK, e.do(request{method: http.MethodGet, path: "/api/v1/share/" + link.Token, as: owner}).Code)
}

func TestTelegramConfigSettings(t *testing.T) {
	e := newEnv(t)

	w := e.do(request{method: http.MethodGet, path: "/api/v1/settings/telegram-config", as: owner})
	require.Equal(t, http.StatusOK, w.Code)
	view, _ := decode[admin.OwnerConfigView](t, w)
	assert.Equal(t, admin.SourceEnv, view.Source)

	w = e.do(request{method: http.MethodPut, path: "/api/v1/settings/telegram-config", as: owner,
		json: handlers.TelegramConfigRequest{BotToken: "987654:ABCDEFGHIJKL", StorageChatID: "@mychannel"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "987654:ABCDEFGHIJKL")

	w = e.do(request{method: http.MethodGet, path: "/api/v1/settings/telegram-config", as: owner})
	view, _ = decode[admin.OwnerConfigView](t, w)
	assert.Equal(t, admin.SourceUser, view.Source)
	assert.Equal(t, "@mychannel", view.StorageChatID)

	w = e.do(request{method: http.MethodPut, path: "/api/v1/settings/telegram-config", as: owner,
		json: map[string]string{"botToken": "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconstructRoute(t *testing.T) {
	e := newEnv(t)
	w := e.do(request{method: http.MethodPost, path: "/api/v1/files/reconstruct", as: owner})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result, _ := decode[explorer.ReconcileResult](t, w)
	assert.Zero(t, result.RestoredFiles)
}
