package explorer

import (
	"context"
	"testing"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrashAndRestoreAreIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	file := h.uploadFile(t, testOwner, "a.bin", sequence(10), 4)

	for i := 0; i < 2; i++ {
		trashed, err := h.files.Trash(ctx, testOwner, file.ID)
		require.NoError(t, err)
		assert.Equal(t, models.FileStatusTrashed, trashed.Status)
		assert.True(t, trashed.IsTrashed)
		assert.NotNil(t, trashed.TrashedAt)
	}
	assert.Equal(t, int64(10), h.db.User(testOwner).UsedBytes)
	assert.Equal(t, 3, h.remote.Live())

	_, err := h.files.Read(ctx, testOwner, file.ID, nil)
	assert.ErrorIs(t, err, xerr.ErrFileStatusInvalid)

	for i := 0; i < 2; i++ {
		restored, err := h.files.Restore(ctx, testOwner, file.ID)
		require.NoError(t, err)
		assert.Equal(t, models.FileStatusActive, restored.Status)
		assert.False(t, restored.IsTrashed)
		assert.Nil(t, restored.TrashedAt)
	}

	res, err := h.files.Read(ctx, testOwner, file.ID, &ByteRange{Start: 2, End: 6})
	require.NoError(t, err)
	assert.Equal(t, sequence(10)[2:7], res.Data)
}

func TestTrashRejectsUploadingFile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	started, err := h.uploads.Initiate(ctx, testOwner, &models.InitiateUploadRequest{Name: "a.bin", Size: 10})
	require.NoError(t, err)

	_, err = h.files.Trash(ctx, testOwner, started.FileID)
	assert.ErrorIs(t, err, xerr.ErrFileStatusInvalid)
	_, err = h.files.Restore(ctx, testOwner, started.FileID)
	assert.ErrorIs(t, err, xerr.ErrFileStatusInvalid)
}

func TestLifecycleScopedToOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	file := h.uploadFile(t, testOwner, "a.bin", sequence(4), 4)

	_, err := h.files.Trash(ctx, 2, file.ID)
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)
	assert.ErrorIs(t, h.files.PermanentDelete(ctx, 2, file.ID), xerr.ErrNotFound)
	_, err = h.files.Read(ctx, 2, file.ID, nil)
	assert.ErrorIs(t, err, xerr.ErrNotFound)
}

func TestPermanentDeleteTwiceDecrementsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	file := h.uploadFile(t, testOwner, "a.bin", sequence(10), 4)
	h.uploadFile(t, testOwner, "b.bin", sequence(7), 4)
	require.Equal(t, int64(17), h.db.User(testOwner).UsedBytes)

	_, err := h.files.Trash(ctx, testOwner, file.ID)
	require.NoError(t, err)

	require.NoError(t, h.files.PermanentDelete(ctx, testOwner, file.ID))
	require.NoError(t, h.files.PermanentDelete(ctx, testOwner, file.ID))

	assert.Equal(t, int64(7), h.db.User(testOwner).UsedBytes)
	assert.Equal(t, 2, h.remote.Live())
	assert.Empty(t, h.db.Refs(file.ID))

	stored, ok := h.db.File(file.ID)
	require.True(t, ok)
	assert.NotNil(t, stored.DeletedAt)
	assert.True(t, stored.IsTrashed)
	assert.Equal(t, models.FileStatusFailed, stored.Status)

	_, err = h.files.GetFile(ctx, testOwner, file.ID)
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)
}

func TestPermanentDeleteProceedsWhenRemoteDeleteFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.db.PutUser(models.User{ID: testOwner, UsedBytes: 8, QuotaBytes: 100})
	id := h.db.PutFile(models.File{
		OwnerID: testOwner, Name: "gone", Size: 8, ChunkSize: 4, ChunksCount: 2, Status: models.FileStatusActive,
		ChunkRefs: []models.ChunkRef{
			{ChunkIndex: 0, MessageID: 900, ChatID: testChannel, BlobID: "x0", Size: 4},
			{ChunkIndex: 1, MessageID: 901, ChatID: testChannel, BlobID: "x1", Size: 4},
		},
	})

	require.NoError(t, h.files.PermanentDelete(ctx, testOwner, id))
	assert.Equal(t, 2, h.remote.DeleteCount())
	assert.Zero(t, h.db.User(testOwner).UsedBytes)
	assert.Empty(t, h.db.Refs(id))
}

func TestPermanentDeleteRevokesShares(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	file := h.uploadFile(t, testOwner, "a.bin", sequence(4), 4)

	shares := h.db.Store().Shares
	first := &models.ShareLink{Token: "t1", FileID: file.ID, OwnerID: testOwner, Permission: models.SharePermissionView, IsPublic: true}
	second := &models.ShareLink{Token: "t2", FileID: file.ID, OwnerID: testOwner, Permission: models.SharePermissionDownload, IsPublic: true}
	require.NoError(t, shares.Create(ctx, first))
	require.NoError(t, shares.Create(ctx, second))

	require.NoError(t, h.files.PermanentDelete(ctx, testOwner, file.ID))
	assert.NotNil(t, h.db.Share(first.ID).RevokedAt)
	assert.NotNil(t, h.db.Share(second.ID).RevokedAt)
}

func TestPermanentDeleteUploadingFileKeepsQuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.uploadFile(t, testOwner, "done.bin", sequence(6), 4)

	started, err := h.uploads.Initiate(ctx, testOwner, &models.InitiateUploadRequest{Name: "a.bin", Size: 10, ChunkSize: 4})
	require.NoError(t, err)
	_, err = h.uploads.AcceptChunk(ctx, testOwner, started.FileID, started.UploadID, 0, []byte("abcd"))
	require.NoError(t, err)

	require.NoError(t, h.files.PermanentDelete(ctx, testOwner, started.FileID))
	assert.Equal(t, int64(6), h.db.User(testOwner).UsedBytes)

	session, _ := h.db.SessionByFile(started.FileID)
	assert.Equal(t, models.UploadStatusAborted, session.Status)
}
