package xerr

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// CodeError 在服务层传递带业务码的错误
type CodeError struct {
	Code int   // 业务错误码
	Err  error // 被包裹的底层错误
}

func (e *CodeError) Error() string {
	return e.Err.Error()
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

func NewCodeError(code int, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

// Is 等价于 errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Response 是通用 JSON 响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Message string `json:"message"` // 消息
	Data    any    `json:"data"`    // 响应数据
}

func JSONResponse(c *gin.Context, httpStatus int, code int, message string, data any) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success 成功响应
func Success(c *gin.Context, httpStatus int, message string, data any) {
	JSONResponse(c, httpStatus, SuccessCode, message, data)
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	JSONResponse(c, httpStatus, code, message, nil)
}

// ErrorWithData 错误响应，附带结构化数据（例如未完成上传的进度）
func ErrorWithData(c *gin.Context, httpStatus int, code int, message string, data any) {
	JSONResponse(c, httpStatus, code, message, data)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	Error(c, httpStatus, code, message)
	c.Abort()
}

// Fail 根据错误类型选择状态码并写响应
func Fail(c *gin.Context, err error) {
	httpStatus, code := Status(err)
	var incomplete *UploadIncompleteError
	if errors.As(err, &incomplete) {
		ErrorWithData(c, httpStatus, code, err.Error(), gin.H{
			"uploadedChunks": incomplete.Received,
			"totalChunks":    incomplete.Total,
		})
		return
	}
	Error(c, httpStatus, code, err.Error())
}
