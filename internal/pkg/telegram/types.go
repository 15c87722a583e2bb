package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Chat Bot API 的 Chat 对象，只保留用到的字段
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// IDString 以字符串形式返回 chat id，和落库格式一致
func (c Chat) IDString() string {
	return strconv.FormatInt(c.ID, 10)
}

type Document struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

type Message struct {
	MessageID int64     `json:"message_id"`
	Chat      Chat      `json:"chat"`
	Date      int64     `json:"date"`
	Caption   string    `json:"caption,omitempty"`
	Document  *Document `json:"document,omitempty"`
}

// Update getUpdates 返回的单条记录，频道消息在 channel_post 中
type Update struct {
	UpdateID          int64    `json:"update_id"`
	Message           *Message `json:"message,omitempty"`
	ChannelPost       *Message `json:"channel_post,omitempty"`
	EditedChannelPost *Message `json:"edited_channel_post,omitempty"`
}

// Post 返回 update 携带的消息，没有时为 nil
func (u Update) Post() *Message {
	switch {
	case u.ChannelPost != nil:
		return u.ChannelPost
	case u.Message != nil:
		return u.Message
	default:
		return u.EditedChannelPost
	}
}

type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// APIError Bot API 返回 ok=false 或下载返回非 2xx 时的错误
// RetryAfter 在调用边界解析一次，重试策略只看这个字段
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %s)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// RateLimited 429 且带了建议等待时间
func (e *APIError) RateLimited() bool {
	return e.Code == 429
}

// Temporary 429 和 5xx 可以重试，其余 4xx 视为永久错误
func (e *APIError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

func newAPIError(method string, resp *apiResponse, httpStatus int) *APIError {
	e := &APIError{Method: method, Code: resp.ErrorCode, Description: resp.Description}
	if e.Code == 0 {
		e.Code = httpStatus
	}
	if resp.Parameters != nil && resp.Parameters.RetryAfter > 0 {
		e.RetryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
	}
	return e
}
