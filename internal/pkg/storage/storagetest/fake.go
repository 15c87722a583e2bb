// Package storagetest 提供内存版 ChunkStorage，供服务层测试使用
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
)

type message struct {
	chatID  string
	caption string
	data    []byte
	blobID  string
}

// Storage 记录所有调用，方便断言
type Storage struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*message
	blobs    map[string][]byte
	history  []storage.HistoryEntry

	Uploads   int
	Fetches   map[string]int
	Deletes   int
	ChatID    string // 非空时覆盖返回的 chat id
	FailFetch bool

	// UploadErr 非 nil 时 UploadChunk 直接返回该错误
	UploadErr error
	// BeforeUpload 在上传实际发生前调用，可用于制造并发
	BeforeUpload func(meta storage.ChunkCaption)
}

var _ storage.ChunkStorage = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		messages: make(map[int64]*message),
		blobs:    make(map[string][]byte),
		Fetches:  make(map[string]int),
	}
}

func (s *Storage) UploadChunk(ctx context.Context, creds storage.Credentials, meta storage.ChunkCaption, data []byte) (*storage.RemoteChunk, error) {
	if s.BeforeUpload != nil {
		s.BeforeUpload(meta)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return nil, s.UploadErr
	}
	if creds.Token == "" || creds.ChannelID == "" {
		return nil, errors.New("storagetest: missing credentials")
	}
	caption, err := meta.Encode()
	if err != nil {
		return nil, err
	}

	s.nextID++
	s.Uploads++
	chatID := creds.ChannelID
	if s.ChatID != "" {
		chatID = s.ChatID
	}
	blobID := fmt.Sprintf("blob-%d", s.nextID)
	buf := append([]byte(nil), data...)
	s.messages[s.nextID] = &message{chatID: chatID, caption: caption, data: buf, blobID: blobID}
	s.blobs[blobID] = buf
	s.history = append(s.history, storage.HistoryEntry{
		MessageID:    s.nextID,
		ChatID:       chatID,
		BlobID:       blobID,
		BlobUniqueID: "u" + strconv.FormatInt(s.nextID, 10),
		Size:         int64(len(buf)),
		Caption:      caption,
	})
	return &storage.RemoteChunk{
		MessageID:    s.nextID,
		ChatID:       chatID,
		BlobID:       blobID,
		BlobUniqueID: "u" + strconv.FormatInt(s.nextID, 10),
		Size:         int64(len(buf)),
		Checksum:     meta.Checksum,
	}, nil
}

func (s *Storage) FetchChunk(ctx context.Context, _ storage.Credentials, blobID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetches[blobID]++
	if s.FailFetch {
		return nil, fmt.Errorf("%w: fetchChunk", xerr.ErrUpstreamExhausted)
	}
	b, ok := s.blobs[blobID]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", xerr.ErrUpstreamRejected, blobID)
	}
	return append([]byte(nil), b...), nil
}

func (s *Storage) DeleteChunk(_ context.Context, _ storage.Credentials, chatID string, messageID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	m, ok := s.messages[messageID]
	if !ok || m.chatID != chatID {
		return false
	}
	delete(s.messages, messageID)
	delete(s.blobs, m.blobID)
	return true
}

func (s *Storage) ListRecentHistory(_ context.Context, _ storage.Credentials, limit int) ([]storage.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]storage.HistoryEntry(nil), h...), nil
}

// AddHistory 注入任意历史记录
func (s *Storage) AddHistory(entries ...storage.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entries...)
}

// Live 当前仍存在的远端消息数
func (s *Storage) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Put 直接放入一个 blob，用于读取测试
func (s *Storage) Put(blobID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[blobID] = append([]byte(nil), data...)
}

// FetchCount 某个 blob 被读取的次数
func (s *Storage) FetchCount(blobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Fetches[blobID]
}

// UploadCount / DeleteCount 线程安全的计数读取
func (s *Storage) UploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Uploads
}

func (s *Storage) DeleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Deletes
}
