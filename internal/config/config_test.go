package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("jwt.secret_key", "secret")

	cfg := &Config{}
	require.NoError(t, v.Unmarshal(cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 19*MiB, cfg.Upload.DefaultChunkSize)
	assert.Equal(t, MiB, cfg.Upload.MinChunkSize)
	assert.Equal(t, 6*time.Hour, cfg.Upload.SessionTTL)
	assert.Equal(t, 5, cfg.Telegram.MaxAttempts)
	assert.Equal(t, 800*time.Millisecond, cfg.Telegram.RetryBaseDelay)
	assert.Equal(t, 20*GiB, cfg.Quota.DefaultBytes)
}

func TestTokenEncryptionSecretFallsBackToJWT(t *testing.T) {
	cfg := &Config{JWT: JWTConfig{SecretKey: "jwt"}}
	assert.Equal(t, "jwt", cfg.TokenEncryptionSecret())

	cfg.Crypto.TokenEncryptionKey = "dedicated"
	assert.Equal(t, "dedicated", cfg.TokenEncryptionSecret())
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	require.NoError(t, v.Unmarshal(cfg))
	assert.Error(t, cfg.Validate())
}
