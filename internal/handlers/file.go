package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-tgdisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetFile 获取文件元数据和分片清单
// @Summary 获取文件详情
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Success 200 {object} xerr.Response "文件详情"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/files/{fileId} [get]
func GetFile(fileService explorer.FileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}

		file, err := fileService.GetFile(c.Request.Context(), currentUserID, fileID)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "File retrieved successfully", file)
	}
}

// DownloadFile 下载文件，支持 Range 请求
// inline=1 时以 inline 方式返回，便于浏览器直接预览
// @Summary 下载文件
// @Tags 文件
// @Produce octet-stream
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Param Range header string false "字节范围，例如 bytes=0-1023"
// @Success 200 {file} file "完整文件"
// @Success 206 {file} file "部分内容"
// @Failure 416 {object} xerr.Response "范围无效"
// @Router /api/v1/files/{fileId}/download [get]
func DownloadFile(fileService explorer.FileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}

		// 先取元数据，Range 的后缀形式依赖文件大小
		file, err := fileService.GetFile(c.Request.Context(), currentUserID, fileID)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		rng, err := ParseRange(c.GetHeader("Range"), file.Size)
		if err != nil {
			failRead(c, file.Size, err)
			return
		}

		res, err := fileService.Read(c.Request.Context(), currentUserID, fileID, rng)
		if err != nil {
			logger.Warn("DownloadFile: read failed",
				zap.Uint64("userID", currentUserID), zap.Uint64("fileID", fileID), zap.Error(err))
			failRead(c, file.Size, err)
			return
		}
		writeReadResult(c, res, dispositionOf(c))
	}
}

func dispositionOf(c *gin.Context) string {
	if c.Query("inline") == "1" {
		return "inline"
	}
	return "attachment"
}

// TrashFile 移入回收站
// @Summary 移入回收站
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Success 200 {object} xerr.Response "已移入回收站"
// @Router /api/v1/files/{fileId}/trash [post]
func TrashFile(fileService explorer.FileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}

		file, err := fileService.Trash(c.Request.Context(), currentUserID, fileID)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "File moved to trash", file)
	}
}

// RestoreFile 从回收站恢复
// @Summary 从回收站恢复文件
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Success 200 {object} xerr.Response "文件已恢复"
// @Router /api/v1/files/{fileId}/restore [post]
func RestoreFile(fileService explorer.FileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}

		file, err := fileService.Restore(c.Request.Context(), currentUserID, fileID)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "File restored successfully", file)
	}
}

// PermanentDeleteFile 永久删除文件并清理远端分片
// @Summary 永久删除文件
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Success 200 {object} xerr.Response "文件已永久删除"
// @Failure 404 {object} xerr.Response "文件未找到"
// @Router /api/v1/files/{fileId}/permanent [delete]
func PermanentDeleteFile(fileService explorer.FileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}

		if err := fileService.PermanentDelete(c.Request.Context(), currentUserID, fileID); err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "File permanently deleted", nil)
	}
}

// ReconstructFiles 根据频道历史重建丢失的分片清单
// @Summary 重建文件清单
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "扫描结果"
// @Router /api/v1/files/reconstruct [post]
func ReconstructFiles(reconcileService explorer.ReconcileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}

		result, err := reconcileService.Reconcile(c.Request.Context(), currentUserID)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "Reconciliation finished", result)
	}
}
