package middlewares

import (
	"net/http"
	"strings"

	"github.com/3Eeeecho/go-tgdisk/internal/config"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bearerToken 取出 "Bearer <token>" 中的 token
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AuthMiddleware 校验调用方身份并把用户 ID 写入上下文
func AuthMiddleware(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Token
		tokenString, ok := bearerToken(c)
		if !ok {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Authorization header is required")
			return
		}

		// 2. 解析和验证 Token
		claims, err := utils.ParseToken(tokenString, cfg.SecretKey, cfg.Issuer)
		if err != nil {
			logger.Debug("AuthMiddleware: token rejected", zap.Error(err))
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.TokenInvalidCode, xerr.ErrTokenInvalid.Error())
			return
		}

		// 3. 将用户信息存储到 Gin Context 中
		c.Set(utils.ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

// OptionalAuthMiddleware 用于公开分享路由：有合法 token 时记录身份，否则按匿名处理
func OptionalAuthMiddleware(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := utils.ParseToken(tokenString, cfg.SecretKey, cfg.Issuer); err == nil {
				c.Set(utils.ContextUserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}
