package explorer

import (
	"context"
	"fmt"
	"sort"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ByteRange 闭区间 [Start, End]
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// ReadResult 可以直接映射为 200/206 响应
type ReadResult struct {
	Data      []byte
	Start     int64
	End       int64
	TotalSize int64
	IsPartial bool
	File      *models.File
}

// RangeReader 按 manifest 重建文件的任意字节区间
type RangeReader interface {
	// Read rng 为 nil 时读取整个文件
	Read(ctx context.Context, file *models.File, rng *ByteRange) (*ReadResult, error)
}

type rangeReader struct {
	files       repositories.FileRepository
	creds       admin.CredentialResolver
	storage     storage.ChunkStorage
	concurrency int
}

func NewRangeReader(files repositories.FileRepository, creds admin.CredentialResolver, cs storage.ChunkStorage, concurrency int) RangeReader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &rangeReader{files: files, creds: creds, storage: cs, concurrency: concurrency}
}

func (r *rangeReader) Read(ctx context.Context, file *models.File, rng *ByteRange) (*ReadResult, error) {
	refs := file.ChunkRefs
	if len(refs) == 0 {
		var err error
		refs, err = r.files.ListChunkRefs(ctx, file.ID)
		if err != nil {
			return nil, err
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("range reader: file %d: %w", file.ID, xerr.ErrNoChunks)
	}

	total := file.Size
	want := ByteRange{Start: 0, End: total - 1}
	if rng != nil {
		want = *rng
	}
	if want.Start < 0 || want.Start > want.End || want.End >= total {
		return nil, fmt.Errorf("range reader: bytes %d-%d of %d: %w", want.Start, want.End, total, xerr.ErrRangeNotSatisfiable)
	}

	refs = append([]models.ChunkRef(nil), refs...)
	sort.Slice(refs, func(i, j int) bool { return refs[i].ChunkIndex < refs[j].ChunkIndex })

	var covered int64
	for _, ref := range refs {
		covered += ref.Size
	}
	if covered < want.End+1 {
		logger.Error("Read: manifest shorter than file",
			zap.Uint64("fileID", file.ID), zap.Int64("covered", covered), zap.Int64("size", total))
		return nil, fmt.Errorf("range reader: manifest covers %d of %d bytes: %w", covered, total, xerr.ErrNoChunks)
	}

	resolved, err := r.creds.ForFile(ctx, file, writeCredentials)
	if err != nil {
		return nil, err
	}

	// 并发拉取相交的分片，各自写入缓冲区中不重叠的位置
	buf := make([]byte, want.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var offset int64
	for _, ref := range refs {
		chunkStart := offset
		chunkEnd := offset + ref.Size - 1
		offset += ref.Size
		// 不相交的分片完全不访问远端
		if chunkEnd < want.Start || chunkStart > want.End {
			continue
		}

		ref := ref
		g.Go(func() error {
			data, err := r.storage.FetchChunk(gctx, resolved.Credentials, ref.BlobID)
			if err != nil {
				return fmt.Errorf("range reader: chunk %d: %w", ref.ChunkIndex, err)
			}
			if int64(len(data)) != ref.Size {
				return fmt.Errorf("range reader: chunk %d returned %d bytes, expected %d: %w",
					ref.ChunkIndex, len(data), ref.Size, xerr.ErrInternalServer)
			}
			from := max(0, want.Start-chunkStart)
			to := min(ref.Size, want.End-chunkStart+1)
			copy(buf[chunkStart+from-want.Start:], data[from:to])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Read: failed to reconstruct range",
			zap.Uint64("fileID", file.ID),
			zap.Int64("start", want.Start),
			zap.Int64("end", want.End),
			zap.Error(err))
		return nil, err
	}

	return &ReadResult{
		Data:      buf,
		Start:     want.Start,
		End:       want.End,
		TotalSize: total,
		IsPartial: rng != nil,
		File:      file,
	}, nil
}
