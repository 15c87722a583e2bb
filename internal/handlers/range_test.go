package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    *explorer.ByteRange
		wantErr bool
	}{
		{name: "empty", header: "", size: 10, want: nil},
		{name: "closed", header: "bytes=2-5", size: 10, want: &explorer.ByteRange{Start: 2, End: 5}},
		{name: "open end", header: "bytes=7-", size: 10, want: &explorer.ByteRange{Start: 7, End: 9}},
		{name: "suffix", header: "bytes=-3", size: 10, want: &explorer.ByteRange{Start: 7, End: 9}},
		{name: "suffix longer than file", header: "bytes=-50", size: 10, want: &explorer.ByteRange{Start: 0, End: 9}},
		{name: "end past size is passed through", header: "bytes=0-10", size: 10, want: &explorer.ByteRange{Start: 0, End: 10}},
		{name: "wrong unit", header: "items=0-1", size: 10, wantErr: true},
		{name: "multiple ranges", header: "bytes=0-1,4-5", size: 10, wantErr: true},
		{name: "no dash", header: "bytes=5", size: 10, wantErr: true},
		{name: "garbage start", header: "bytes=a-5", size: 10, wantErr: true},
		{name: "garbage end", header: "bytes=1-b", size: 10, wantErr: true},
		{name: "zero suffix", header: "bytes=-0", size: 10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if tt.wantErr {
				assert.ErrorIs(t, err, xerr.ErrRangeNotSatisfiable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteReadResultPartial(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeReadResult(c, &explorer.ReadResult{
		Data:      []byte("llo w"),
		Start:     2,
		End:       6,
		TotalSize: 11,
		IsPartial: true,
		File:      &models.File{Name: "hello.txt", MimeType: "text/plain"},
	}, "attachment")

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 2-6/11", w.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "5", w.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename=hello.txt`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "llo w", w.Body.String())
}

func TestWriteReadResultFull(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	writeReadResult(c, &explorer.ReadResult{
		Data:      []byte("abc"),
		End:       2,
		TotalSize: 3,
		File:      &models.File{Name: "my file.bin"},
	}, "inline")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Range"))
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="my file.bin"`, w.Header().Get("Content-Disposition"))
}

func TestFailReadSetsUnsatisfiedRange(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	failRead(c, 11, xerr.ErrRangeNotSatisfiable)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */11", w.Header().Get("Content-Range"))

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	failRead(c, -1, xerr.ErrRangeNotSatisfiable)
	assert.Empty(t, w.Header().Get("Content-Range"))
}
