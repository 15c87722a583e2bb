package admin

import (
	"context"
	"testing"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/crypto"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

func newResolver(t *testing.T, fallback storage.Credentials) (CredentialResolver, *repotest.DB, *crypto.TokenCipher) {
	t.Helper()
	c, err := crypto.NewTokenCipher("test-secret")
	require.NoError(t, err)
	db := repotest.New()
	return NewCredentialResolver(db.Store().Users, c, fallback, 1<<30), db, c
}

func TestForOwnerPrefersOwnerConfig(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newResolver(t, storage.Credentials{Token: "env-token", ChannelID: "-100env"})

	_, err := r.SaveOwnerConfig(ctx, 7, "  1234:owner-token  ", " -100owner ")
	require.NoError(t, err)

	res, err := r.ForOwner(ctx, 7, ResolveOptions{AllowFallback: true, RequireConfigured: true})
	require.NoError(t, err)
	assert.Equal(t, SourceUser, res.Source)
	assert.Equal(t, "1234:owner-token", res.Token)
	assert.Equal(t, "-100owner", res.ChannelID)
}

func TestForOwnerFallbackChain(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newResolver(t, storage.Credentials{Token: "env-token", ChannelID: "-100env"})

	res, err := r.ForOwner(ctx, 1, ResolveOptions{AllowFallback: true})
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, res.Source)

	res, err = r.ForOwner(ctx, 1, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceNone, res.Source)

	_, err = r.ForOwner(ctx, 1, ResolveOptions{RequireConfigured: true})
	assert.ErrorIs(t, err, xerr.ErrStorageNotConfigured)
	assert.Contains(t, err.Error(), "telegram.bot_token")
}

func TestForFileUsesSnapshotAfterRotation(t *testing.T) {
	ctx := context.Background()
	r, _, c := newResolver(t, storage.Credentials{})

	_, err := r.SaveOwnerConfig(ctx, 3, "new-token-value", "-100new")
	require.NoError(t, err)

	enc, err := c.Encrypt("old-token-value")
	require.NoError(t, err)
	file := &models.File{ID: 10, OwnerID: 3, StorageTokenEnc: enc, StorageChatID: "-100old"}

	res, err := r.ForFile(ctx, file, ResolveOptions{AllowFallback: true, RequireConfigured: true})
	require.NoError(t, err)
	assert.Equal(t, SourceFile, res.Source)
	assert.Equal(t, "old-token-value", res.Token)
	assert.Equal(t, "-100old", res.ChannelID)

	res, err = r.ForFile(ctx, &models.File{ID: 11, OwnerID: 3}, ResolveOptions{RequireConfigured: true})
	require.NoError(t, err)
	assert.Equal(t, SourceUser, res.Source)
}

func TestOwnerConfigStoredEncryptedAndMasked(t *testing.T) {
	ctx := context.Background()
	r, db, _ := newResolver(t, storage.Credentials{})

	view, err := r.SaveOwnerConfig(ctx, 5, "123456789:ABCDEFGH", "@mychannel")
	require.NoError(t, err)
	assert.Equal(t, "1234****EFGH", view.BotTokenMasked)

	u := db.User(5)
	assert.NotEmpty(t, u.TelegramBotTokenEnc)
	assert.NotContains(t, u.TelegramBotTokenEnc, "ABCDEFGH")
	assert.NotNil(t, u.TelegramConfiguredAt)

	desc, err := r.DescribeOwnerConfig(ctx, 5)
	require.NoError(t, err)
	assert.True(t, desc.Configured)
	assert.Equal(t, "@mychannel", desc.StorageChatID)
	assert.Equal(t, "1234****EFGH", desc.BotTokenMasked)
	assert.NotNil(t, desc.ConfiguredAt)
}

func TestSaveOwnerConfigValidates(t *testing.T) {
	r, _, _ := newResolver(t, storage.Credentials{})
	_, err := r.SaveOwnerConfig(context.Background(), 1, " ", "-100")
	assert.ErrorIs(t, err, xerr.ErrValidation)
}
