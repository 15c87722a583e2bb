package models

// InitiateUploadRequest 初始化分片上传的请求体
type InitiateUploadRequest struct {
	Name      string  `json:"name" binding:"required"`
	Size      int64   `json:"size" binding:"required"`
	MimeType  string  `json:"mimeType"`
	FolderID  *uint64 `json:"folderId"`
	ChunkSize int64   `json:"chunkSize"`
	Checksum  string  `json:"checksum"`
}

// InitiateUploadResult 初始化分片上传的响应体
type InitiateUploadResult struct {
	FileID      uint64 `json:"fileId"`
	UploadID    string `json:"uploadId"`
	ChunkSize   int64  `json:"chunkSize"`
	TotalChunks int    `json:"totalChunks"`
}

// ChunkAcceptResult 单个分片的处理结果
type ChunkAcceptResult struct {
	ChunkIndex     int  `json:"chunkIndex"`
	Duplicate      bool `json:"duplicate"`
	UploadedChunks int  `json:"uploadedChunks"`
	TotalChunks    int  `json:"totalChunks"`
}

// CompleteUploadRequest 完成上传的请求体
type CompleteUploadRequest struct {
	UploadID string `json:"uploadId" binding:"required"`
	Checksum string `json:"checksum"`
}

// AbortUploadRequest 取消上传的请求体
type AbortUploadRequest struct {
	UploadID string `json:"uploadId" binding:"required"`
}

// UploadProgress 断点续传查询结果
type UploadProgress struct {
	FileID         uint64 `json:"fileId"`
	UploadID       string `json:"uploadId"`
	Status         string `json:"status"`
	ReceivedChunks []int  `json:"receivedChunks"`
	TotalChunks    int    `json:"totalChunks"`
	ChunkSize      int64  `json:"chunkSize"`
}
