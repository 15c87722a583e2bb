package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/3Eeeecho/go-tgdisk/internal/services/share"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ShareHandler struct {
	shareService share.ShareService
}

func NewShareHandler(shareService share.ShareService) *ShareHandler {
	return &ShareHandler{shareService: shareService}
}

// resolveOptions 公开路由上认证是可选的，密码可以放在 query 或请求头中
func resolveOptions(c *gin.Context) share.ResolveOptions {
	opts := share.ResolveOptions{Password: c.Query("password")}
	if opts.Password == "" {
		opts.Password = c.GetHeader("X-Share-Password")
	}
	if v, ok := c.Get(utils.ContextUserIDKey); ok {
		if id, ok := v.(uint64); ok {
			opts.CallerID = id
		}
	}
	return opts
}

// CreateShare 为文件创建分享链接
// @Summary 创建分享链接
// @Description 为可读文件创建分享链接，可设置权限、密码和有效期
// @Tags 分享
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Param request body models.CreateShareRequest true "分享链接信息"
// @Success 201 {object} xerr.Response "分享链接创建成功"
// @Failure 400 {object} xerr.Response "请求参数无效"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Failure 409 {object} xerr.Response "文件状态异常"
// @Router /api/v1/files/{fileId}/share-links [post]
func (h *ShareHandler) CreateShare(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	fileID, ok := utils.ParseUint64Param(c, "fileId")
	if !ok {
		return
	}
	var req models.CreateShareRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
			return
		}
	}

	link, err := h.shareService.CreateShareLink(c.Request.Context(), userID, fileID, &req)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusCreated, "分享链接创建成功", link)
}

// ListShares 列出文件的分享链接
// @Summary 列出文件的分享链接
// @Tags 分享
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Success 200 {object} xerr.Response "分享链接列表"
// @Router /api/v1/files/{fileId}/share-links [get]
func (h *ShareHandler) ListShares(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	fileID, ok := utils.ParseUint64Param(c, "fileId")
	if !ok {
		return
	}

	links, err := h.shareService.ListShareLinks(c.Request.Context(), userID, fileID)
	if err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取分享链接成功", links)
}

// RevokeShare 撤销分享链接
// @Summary 撤销分享链接
// @Tags 分享
// @Produce json
// @Security BearerAuth
// @Param shareId path int true "分享ID"
// @Success 200 {object} xerr.Response "分享链接已撤销"
// @Failure 404 {object} xerr.Response "分享链接不存在"
// @Router /api/v1/share-links/{shareId} [delete]
func (h *ShareHandler) RevokeShare(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	shareID, ok := utils.ParseUint64Param(c, "shareId")
	if !ok {
		return
	}

	if err := h.shareService.RevokeShareLink(c.Request.Context(), userID, shareID); err != nil {
		xerr.Fail(c, err)
		return
	}
	xerr.Success(c, http.StatusOK, "分享链接已撤销", nil)
}

// GetSharedFile 获取分享的文件信息，不包含内容
// @Summary 获取分享详情
// @Tags 分享
// @Produce json
// @Param token path string true "分享 token"
// @Param password query string false "分享密码"
// @Success 200 {object} xerr.Response "分享详情"
// @Failure 403 {object} xerr.Response "需要密码或密码不正确"
// @Failure 404 {object} xerr.Response "分享链接不存在或已撤销"
// @Failure 410 {object} xerr.Response "分享链接已过期"
// @Router /api/v1/share/{token} [get]
func (h *ShareHandler) GetSharedFile(c *gin.Context) {
	token := c.Param("token")
	resolved, err := h.shareService.ResolveShareToken(c.Request.Context(), token, resolveOptions(c))
	if err != nil {
		xerr.Fail(c, err)
		return
	}

	file := resolved.File
	xerr.Success(c, http.StatusOK, "获取分享详情成功", models.SharedFileView{
		Token:      resolved.Share.Token,
		Permission: resolved.Share.Permission,
		FileID:     file.ID,
		Name:       file.Name,
		Size:       file.Size,
		MimeType:   file.MimeType,
		UpdatedAt:  file.UpdatedAt,
	})
}

// DownloadShared 下载分享的文件，支持 Range 请求
// view 权限的分享以 inline 方式返回
// @Summary 下载分享文件
// @Tags 分享
// @Produce octet-stream
// @Param token path string true "分享 token"
// @Param password query string false "分享密码"
// @Param Range header string false "字节范围"
// @Success 200 {file} file "完整文件"
// @Success 206 {file} file "部分内容"
// @Router /api/v1/share/{token}/download [get]
func (h *ShareHandler) DownloadShared(c *gin.Context) {
	token := c.Param("token")
	header := c.GetHeader("Range")
	size := int64(-1)
	pick := func(n int64) (*explorer.ByteRange, error) {
		size = n
		return ParseRange(header, n)
	}

	res, link, err := h.shareService.ReadShared(c.Request.Context(), token, resolveOptions(c), pick)
	if err != nil {
		logger.Warn("DownloadShared: read failed", zap.String("token", token), zap.Error(err))
		failRead(c, size, err)
		return
	}

	disposition := "attachment"
	if link.Permission == models.SharePermissionView {
		disposition = "inline"
	}
	writeReadResult(c, res, disposition)
}
