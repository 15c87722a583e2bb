package xerr

// 统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode        = 40000 // 无效的请求参数
	ValidationFailedCode     = 40001 // 参数验证失败
	StorageNotConfiguredCode = 40002 // 存储渠道未配置
	FileStatusInvalidCode    = 40006 // 文件状态异常，无法操作

	// --- 认证与授权错误系列 (401xx) ---
	UnauthorizedCode = 40100 // 通用未授权
	TokenInvalidCode = 40101 // Token 无效或过期

	// --- 权限错误系列 (403xx) ---
	ForbiddenCode              = 40300
	PermissionDeniedCode       = 40301
	SharePasswordRequiredCode  = 40302 // 分享需要密码
	SharePasswordIncorrectCode = 40303 // 分享密码不正确

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode              = 40400
	UserNotFoundCode          = 40401
	FileNotFoundCode          = 40402
	DirectoryNotFoundCode     = 40403
	ShareNotFoundCode         = 40404
	UploadSessionNotFoundCode = 40406

	// --- 业务逻辑冲突系列 (409xx) ---
	ConflictCode         = 40900
	UploadIncompleteCode = 40905 // 分片未全部上传
	NoChunksCode         = 40906 // 文件没有分片

	// --- 其他客户端错误 ---
	ShareExpiredCode        = 41000 // 分享链接已过期
	QuotaExceededCode       = 41300 // 超出存储配额
	RangeNotSatisfiableCode = 41600 // 请求的字节范围无效

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000
	DatabaseErrorCode       = 50001
	UpstreamErrorCode       = 50200 // Telegram API 拒绝请求
	UpstreamUnavailableCode = 50300 // Telegram API 重试耗尽，可稍后重试
)
