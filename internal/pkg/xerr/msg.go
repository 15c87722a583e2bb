package xerr

import (
	"errors"
	"fmt"
)

var (
	ErrInternalServer = errors.New("服务器内部错误")

	// 客户端请求错误
	ErrInvalidParams        = errors.New("无效的请求参数")
	ErrValidation           = errors.New("参数验证失败")
	ErrStorageNotConfigured = errors.New("Telegram 存储未配置")
	ErrFileStatusInvalid    = errors.New("文件状态异常，无法执行操作")

	// 认证与授权错误
	ErrUnauthorized = errors.New("用户未授权")
	ErrTokenInvalid = errors.New("认证 Token 无效或已过期")

	// 权限错误
	ErrPermissionDenied       = errors.New("您没有操作此资源的权限")
	ErrSharePasswordRequired  = errors.New("分享链接需要密码")
	ErrSharePasswordIncorrect = errors.New("分享链接密码不正确")

	// 资源未找到错误，具体错误都包裹 ErrNotFound
	ErrNotFound              = errors.New("资源不存在")
	ErrUserNotFound          = fmt.Errorf("用户%w", ErrNotFound)
	ErrFileNotFound          = fmt.Errorf("文件%w", ErrNotFound)
	ErrDirectoryNotFound     = fmt.Errorf("目录%w", ErrNotFound)
	ErrShareNotFound         = fmt.Errorf("分享链接%w", ErrNotFound)
	ErrUploadSessionNotFound = fmt.Errorf("上传会话%w", ErrNotFound)

	// 业务冲突
	ErrConflict         = errors.New("资源状态冲突")
	ErrUploadIncomplete = errors.New("分片尚未全部上传")
	ErrNoChunks         = errors.New("文件没有可读取的分片")

	ErrExpired             = errors.New("分享链接已过期")
	ErrQuotaExceeded       = errors.New("超出存储配额")
	ErrRangeNotSatisfiable = errors.New("请求的字节范围无效")

	// 外部服务错误
	ErrDatabaseError     = errors.New("数据库操作失败")
	ErrUpstreamExhausted = errors.New("Telegram API request failed after retries")
	ErrUpstreamRejected  = errors.New("Telegram API rejected the request")
)

// UploadIncompleteError 携带已接收和总分片数
type UploadIncompleteError struct {
	Received int
	Total    int
}

func (e *UploadIncompleteError) Error() string {
	return fmt.Sprintf("%s: %d/%d", ErrUploadIncomplete.Error(), e.Received, e.Total)
}

func (e *UploadIncompleteError) Unwrap() error {
	return ErrUploadIncomplete
}

// Validationf 构造一个包裹 ErrValidation 的错误
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
