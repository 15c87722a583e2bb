package storage

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptionEncodeDecode(t *testing.T) {
	s, err := ChunkCaption{FileID: 12, ChunkIndex: 3, Name: "movie.mkv", Checksum: "abc"}.Encode()
	require.NoError(t, err)

	got, err := DecodeCaption(s)
	require.NoError(t, err)
	assert.Equal(t, ChunkCaption{Version: 1, FileID: 12, ChunkIndex: 3, Name: "movie.mkv", Checksum: "abc"}, got)
}

func TestCaptionTruncatesLongNames(t *testing.T) {
	s, err := ChunkCaption{FileID: 1, Name: strings.Repeat("名", 2000)}.Encode()
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(s), maxCaptionLength)

	got, err := DecodeCaption(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.FileID)
}

func TestDecodeCaptionRejectsForeignShapes(t *testing.T) {
	cases := map[string]string{
		"plain text":      "holiday photos",
		"unknown version": `{"v":2,"fileId":1,"chunkIndex":0}`,
		"missing version": `{"fileId":1,"chunkIndex":0}`,
		"missing index":   `{"v":1,"fileId":1}`,
		"zero file":       `{"v":1,"fileId":0,"chunkIndex":0}`,
		"negative index":  `{"v":1,"fileId":1,"chunkIndex":-1}`,
		"string index":    `{"v":1,"fileId":1,"chunkIndex":"0"}`,
	}
	for name, caption := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCaption(caption)
			assert.ErrorIs(t, err, ErrUnknownCaption)
		})
	}
}
