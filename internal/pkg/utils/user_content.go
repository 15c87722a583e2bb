package utils

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

const ContextUserIDKey = "userID"

// GetUserIDFromContext 从 Gin 上下文中获取用户ID
// 获取失败时中止请求并返回错误
func GetUserIDFromContext(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(ContextUserIDKey)
	if !exists {
		xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "User ID not found in context")
		return 0, false
	}
	currentUserID, ok := userID.(uint64)
	if !ok {
		xerr.AbortWithError(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "Invalid user ID type in context")
		return 0, false
	}
	return currentUserID, true
}

// ParseUint64Param 解析路径参数，失败时写 400 响应
func ParseUint64Param(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "invalid "+name)
		return 0, false
	}
	return v, true
}
