package explorer

import (
	"context"
	"testing"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/crypto"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage/storagetest"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories/repotest"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

const (
	testOwner   uint64 = 1
	testChannel        = "-100500"
)

var envCredentials = storage.Credentials{Token: "123:env-token", ChannelID: testChannel}

type harness struct {
	db        *repotest.DB
	remote    *storagetest.Storage
	creds     admin.CredentialResolver
	uploads   *uploadService
	files     *fileService
	reader    RangeReader
	reconcile *reconcileService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, envCredentials)
}

func newHarnessWith(t *testing.T, fallback storage.Credentials) *harness {
	t.Helper()
	cipher, err := crypto.NewTokenCipher("explorer-test-secret")
	require.NoError(t, err)

	db := repotest.New()
	remote := storagetest.New()
	creds := admin.NewCredentialResolver(db.Store().Users, cipher, fallback, 1<<40)
	reader := NewRangeReader(db.Store().Files, creds, remote, 3)

	opts := UploadOptions{
		DefaultChunkSize: 4,
		MinChunkSize:     1,
		MaxChunkSize:     1 << 30,
		SessionTTL:       6 * time.Hour,
		DefaultQuota:     1 << 40,
	}
	return &harness{
		db:        db,
		remote:    remote,
		creds:     creds,
		uploads:   NewUploadService(db.Store(), db, creds, remote, opts).(*uploadService),
		files:     NewFileService(db.Store(), db, creds, remote, reader).(*fileService),
		reader:    reader,
		reconcile: NewReconcileService(db.Store(), db, creds, remote, 500).(*reconcileService),
	}
}

// chunks 按 chunkSize 切分内容
func chunks(content []byte, chunkSize int) [][]byte {
	var out [][]byte
	for off := 0; off < len(content); off += chunkSize {
		end := min(off+chunkSize, len(content))
		out = append(out, content[off:end])
	}
	return out
}

// uploadFile 完整走一遍 initiate / accept / complete
func (h *harness) uploadFile(t *testing.T, owner uint64, name string, content []byte, chunkSize int64) *models.File {
	t.Helper()
	ctx := context.Background()
	started, err := h.uploads.Initiate(ctx, owner, &models.InitiateUploadRequest{
		Name:      name,
		Size:      int64(len(content)),
		ChunkSize: chunkSize,
	})
	require.NoError(t, err)
	for i, part := range chunks(content, int(started.ChunkSize)) {
		_, err := h.uploads.AcceptChunk(ctx, owner, started.FileID, started.UploadID, i, part)
		require.NoError(t, err)
	}
	file, err := h.uploads.Complete(ctx, owner, started.FileID, &models.CompleteUploadRequest{UploadID: started.UploadID})
	require.NoError(t, err)
	return file
}

func sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}
