package storage

import (
	"encoding/json"
	"errors"
	"unicode/utf8"
)

const (
	CaptionSchemaVersion = 1
	maxCaptionLength     = 1024 // Bot API caption 上限
)

var ErrUnknownCaption = errors.New("storage: caption is not a chunk record")

// ChunkCaption 随每个分片附带的版本化元数据
type ChunkCaption struct {
	Version    int    `json:"v"`
	FileID     uint64 `json:"fileId"`
	ChunkIndex int    `json:"chunkIndex"`
	Name       string `json:"name"`
	Checksum   string `json:"checksum"`
}

// Encode 序列化 caption，文件名过长时截断
func (c ChunkCaption) Encode() (string, error) {
	c.Version = CaptionSchemaVersion
	for {
		b, err := json.Marshal(c)
		if err != nil {
			return "", err
		}
		if utf8.RuneCount(b) <= maxCaptionLength || c.Name == "" {
			return string(b), nil
		}
		r := []rune(c.Name)
		c.Name = string(r[:len(r)/2])
	}
}

type rawCaption struct {
	Version    *int    `json:"v"`
	FileID     *uint64 `json:"fileId"`
	ChunkIndex *int    `json:"chunkIndex"`
	Name       string  `json:"name"`
	Checksum   string  `json:"checksum"`
}

// DecodeCaption 只接受当前版本且字段齐全的记录
func DecodeCaption(s string) (ChunkCaption, error) {
	var raw rawCaption
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return ChunkCaption{}, ErrUnknownCaption
	}
	if raw.Version == nil || *raw.Version != CaptionSchemaVersion {
		return ChunkCaption{}, ErrUnknownCaption
	}
	if raw.FileID == nil || *raw.FileID == 0 || raw.ChunkIndex == nil || *raw.ChunkIndex < 0 {
		return ChunkCaption{}, ErrUnknownCaption
	}
	return ChunkCaption{
		Version:    *raw.Version,
		FileID:     *raw.FileID,
		ChunkIndex: *raw.ChunkIndex,
		Name:       raw.Name,
		Checksum:   raw.Checksum,
	}, nil
}
