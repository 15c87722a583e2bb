package explorer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"go.uber.org/zap"
)

const (
	maxFileNameLength = 255
	defaultMimeType   = "application/octet-stream"
)

// ChunkPlan 文件的分片规划
type ChunkPlan struct {
	Size      int64
	ChunkSize int64
	Count     int
}

// NormalizeChunkSize 未指定时使用默认值，并限制在 [min, max] 内
func NormalizeChunkSize(requested int64, opts UploadOptions) int64 {
	size := requested
	if size <= 0 {
		size = opts.DefaultChunkSize
	}
	if size < opts.MinChunkSize {
		size = opts.MinChunkSize
	}
	if size > opts.MaxChunkSize {
		size = opts.MaxChunkSize
	}
	return size
}

func NewChunkPlan(size, chunkSize int64) ChunkPlan {
	return ChunkPlan{
		Size:      size,
		ChunkSize: chunkSize,
		Count:     int((size + chunkSize - 1) / chunkSize),
	}
}

// ChunkLen 第 index 个分片应有的字节数，只有最后一个分片可以更短
func (p ChunkPlan) ChunkLen(index int) int64 {
	if index < 0 || index >= p.Count {
		return 0
	}
	if index == p.Count-1 {
		return p.Size - int64(p.Count-1)*p.ChunkSize
	}
	return p.ChunkSize
}

func planOf(f *models.File) ChunkPlan {
	return ChunkPlan{Size: f.Size, ChunkSize: f.ChunkSize, Count: f.ChunksCount}
}

// fileExtension 小写且不带点
func fileExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return strings.TrimPrefix(ext, ".")
}

// detectMimeType 优先使用客户端声明的类型，其次按扩展名推断
func detectMimeType(declared, ext string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	if ext != "" {
		if t := mime.TypeByExtension("." + ext); t != "" {
			return t
		}
	}
	return defaultMimeType
}

// placeholderChecksum 客户端未提供校验和时的占位值，complete 时可被覆盖
func placeholderChecksum(ownerID uint64, name string, size int64, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%d:%d", ownerID, name, size, now.UnixNano())))
	return hex.EncodeToString(sum[:])
}

func chunkChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", xerr.Validationf("file name is required")
	}
	if len([]rune(name)) > maxFileNameLength {
		return "", xerr.Validationf("file name exceeds %d characters", maxFileNameLength)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", xerr.Validationf("file name must not contain path separators")
	}
	return name, nil
}

// checkOwnedFile 查找属于 ownerID 且未被永久删除的文件
func checkOwnedFile(ctx context.Context, files repositories.FileRepository, ownerID, fileID uint64) (*models.File, error) {
	file, err := files.FindByIDAndOwner(ctx, fileID, ownerID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted() {
		logger.Warn("checkOwnedFile: file already deleted", zap.Uint64("fileID", fileID), zap.Uint64("ownerID", ownerID))
		return nil, xerr.ErrFileNotFound
	}
	return file, nil
}
