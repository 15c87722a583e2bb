package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/gin-gonic/gin"
)

// ParseRange 解析单段 Range 头，支持 bytes=a-b、bytes=a- 和 bytes=-n。
// 头为空时返回 nil，表示读取整个文件；越界由读取方判断。
func ParseRange(header string, size int64) (*explorer.ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, fmt.Errorf("unsupported range %q: %w", header, xerr.ErrRangeNotSatisfiable)
	}
	rawStart, rawEnd, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, fmt.Errorf("malformed range %q: %w", header, xerr.ErrRangeNotSatisfiable)
	}

	if rawStart == "" {
		// 后缀形式：最后 n 个字节
		n, err := strconv.ParseInt(rawEnd, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("malformed range %q: %w", header, xerr.ErrRangeNotSatisfiable)
		}
		start := max(size-n, 0)
		return &explorer.ByteRange{Start: start, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(rawStart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed range %q: %w", header, xerr.ErrRangeNotSatisfiable)
	}
	end := size - 1
	if rawEnd != "" {
		end, err = strconv.ParseInt(rawEnd, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed range %q: %w", header, xerr.ErrRangeNotSatisfiable)
		}
	}
	return &explorer.ByteRange{Start: start, End: end}, nil
}

// writeReadResult 把读取结果映射为 200 或 206 响应
func writeReadResult(c *gin.Context, res *explorer.ReadResult, disposition string) {
	file := res.File
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": file.Name}))
	c.Header("Content-Length", strconv.Itoa(len(res.Data)))

	status := http.StatusOK
	if res.IsPartial {
		status = http.StatusPartialContent
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", res.Start, res.End, res.TotalSize))
	}
	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(status, contentType, res.Data)
}

// failRead 416 响应需要携带文件总大小，size 未知时传 -1
func failRead(c *gin.Context, size int64, err error) {
	if size >= 0 && xerr.Is(err, xerr.ErrRangeNotSatisfiable) {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
	}
	xerr.Fail(c, err)
}
