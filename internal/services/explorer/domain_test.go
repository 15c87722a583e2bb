package explorer

import (
	"testing"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
)

func TestChunkPlan(t *testing.T) {
	p := NewChunkPlan(10*config.MiB, 4*config.MiB)
	assert.Equal(t, 3, p.Count)
	assert.Equal(t, int64(4*config.MiB), p.ChunkLen(0))
	assert.Equal(t, int64(4*config.MiB), p.ChunkLen(1))
	assert.Equal(t, int64(2*config.MiB), p.ChunkLen(2))
	assert.Zero(t, p.ChunkLen(3))

	exact := NewChunkPlan(8, 4)
	assert.Equal(t, 2, exact.Count)
	assert.Equal(t, int64(4), exact.ChunkLen(1))
}

func TestNormalizeChunkSize(t *testing.T) {
	opts := UploadOptions{DefaultChunkSize: 19 * config.MiB, MinChunkSize: config.MiB, MaxChunkSize: 20 * config.MiB}
	tests := []struct {
		name      string
		requested int64
		want      int64
	}{
		{"default", 0, 19 * config.MiB},
		{"negative", -5, 19 * config.MiB},
		{"below min", 10, config.MiB},
		{"above max", 64 * config.MiB, 20 * config.MiB},
		{"in range", 4 * config.MiB, 4 * config.MiB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeChunkSize(tt.requested, opts))
		})
	}
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "pdf", fileExtension("Report.PDF"))
	assert.Equal(t, "", fileExtension("Makefile"))
	assert.Equal(t, "text/x-custom", detectMimeType(" text/x-custom ", "txt"))
	assert.Equal(t, "application/pdf", detectMimeType("", "pdf"))
	assert.Equal(t, defaultMimeType, detectMimeType("", "definitely-unknown-ext"))
	assert.Equal(t, defaultMimeType, detectMimeType("", ""))
}

func TestValidateFileName(t *testing.T) {
	name, err := validateFileName("  a.txt ")
	assert.NoError(t, err)
	assert.Equal(t, "a.txt", name)

	for _, bad := range []string{"", "   ", "dir/a.txt", string(make([]rune, 256))} {
		_, err := validateFileName(bad)
		assert.ErrorIs(t, err, xerr.ErrValidation, bad)
	}
}
