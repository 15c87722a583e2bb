package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/services/admin"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService admin.UserService
	creds       admin.CredentialResolver
}

func NewUserHandler(userService admin.UserService, creds admin.CredentialResolver) *UserHandler {
	return &UserHandler{
		userService: userService,
		creds:       creds,
	}
}

// TelegramConfigRequest 保存所有者 Telegram 存储配置的请求体
type TelegramConfigRequest struct {
	BotToken      string `json:"botToken" binding:"required"`
	StorageChatID string `json:"storageChatId" binding:"required"`
}

// GetUsage 获取当前用户的配额使用情况
// @Summary 获取配额使用情况
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "配额使用情况"
// @Router /api/v1/settings/usage [get]
func (h *UserHandler) GetUsage(c *gin.Context) {
	currentUserID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	usage, err := h.userService.GetUsage(c.Request.Context(), currentUserID)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "成功获取配额使用情况", usage)
}

// GetTelegramConfig 查看当前生效的存储配置，token 只返回掩码
// @Summary 获取 Telegram 存储配置
// @Tags User
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "存储配置"
// @Router /api/v1/settings/telegram-config [get]
func (h *UserHandler) GetTelegramConfig(c *gin.Context) {
	currentUserID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	view, err := h.creds.DescribeOwnerConfig(c.Request.Context(), currentUserID)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "成功获取存储配置", view)
}

// PutTelegramConfig 保存所有者自己的 bot token 和存储频道
// @Summary 保存 Telegram 存储配置
// @Tags User
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TelegramConfigRequest true "存储配置"
// @Success 200 {object} xerr.Response "存储配置已保存"
// @Failure 400 {object} xerr.Response "参数错误"
// @Router /api/v1/settings/telegram-config [put]
func (h *UserHandler) PutTelegramConfig(c *gin.Context) {
	currentUserID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req TelegramConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Invalid request body")
		return
	}

	view, err := h.creds.SaveOwnerConfig(c.Request.Context(), currentUserID, req.BotToken, req.StorageChatID)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "存储配置已保存", view)
}
