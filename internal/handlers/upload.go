package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/services/explorer"
	"github.com/gin-gonic/gin"
)

// uploadIDFrom 分片请求的 uploadId 可以放在 query 或请求头中
func uploadIDFrom(c *gin.Context) string {
	if id := c.Query("uploadId"); id != "" {
		return id
	}
	return c.GetHeader("X-Upload-Id")
}

// InitiateUpload 处理上传初始化请求
// @Summary 初始化分片上传
// @Tags 文件上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.InitiateUploadRequest true "上传初始化参数"
// @Success 201 {object} xerr.Response "上传会话已创建"
// @Failure 400 {object} xerr.Response "参数错误或存储未配置"
// @Failure 413 {object} xerr.Response "超出配额"
// @Router /api/v1/files/initiate-upload [post]
func InitiateUpload(uploadService explorer.UploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		var req models.InitiateUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Invalid request body")
			return
		}

		resp, err := uploadService.Initiate(c.Request.Context(), currentUserID, &req)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusCreated, "Upload initialized successfully", resp)
	}
}

// UploadChunk 处理分片上传请求，请求体即分片原始字节
// @Summary 上传文件分片
// @Tags 文件上传
// @Accept application/octet-stream
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Param chunkIndex path int true "分片序号"
// @Param uploadId query string true "上传会话ID"
// @Success 200 {object} xerr.Response "分片上传成功"
// @Failure 400 {object} xerr.Response "参数错误"
// @Failure 502 {object} xerr.Response "Telegram 调用失败"
// @Router /api/v1/files/{fileId}/chunks/{chunkIndex} [put]
func UploadChunk(uploadService explorer.UploadService, maxChunkSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}
		chunkIndex, err := strconv.Atoi(c.Param("chunkIndex"))
		if err != nil || chunkIndex < 0 {
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "invalid chunkIndex")
			return
		}
		uploadID := uploadIDFrom(c)
		if uploadID == "" {
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "uploadId is required")
			return
		}

		// 多读一个字节用于判断是否超限
		data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxChunkSize+1))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				xerr.AbortWithError(c, http.StatusRequestEntityTooLarge, xerr.ValidationFailedCode, "chunk exceeds the maximum chunk size")
				return
			}
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Failed to read chunk body")
			return
		}
		if int64(len(data)) > maxChunkSize {
			xerr.AbortWithError(c, http.StatusRequestEntityTooLarge, xerr.ValidationFailedCode, "chunk exceeds the maximum chunk size")
			return
		}

		resp, err := uploadService.AcceptChunk(c.Request.Context(), currentUserID, fileID, uploadID, chunkIndex, data)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "Chunk uploaded successfully", resp)
	}
}

// CompleteUpload 完成上传，分片缺失时返回 409 和上传进度
// @Summary 完成文件上传
// @Tags 文件上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Param request body models.CompleteUploadRequest true "完成上传参数"
// @Success 200 {object} xerr.Response "上传完成"
// @Failure 409 {object} xerr.Response "分片未全部上传"
// @Router /api/v1/files/{fileId}/complete-upload [post]
func CompleteUpload(uploadService explorer.UploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}
		var req models.CompleteUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Invalid request body")
			return
		}

		file, err := uploadService.Complete(c.Request.Context(), currentUserID, fileID, &req)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "Upload completed successfully", file)
	}
}

// AbortUpload 取消上传并清理已上传的分片
// @Summary 取消文件上传
// @Tags 文件上传
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Param request body models.AbortUploadRequest true "取消上传参数"
// @Success 200 {object} xerr.Response "上传已取消"
// @Router /api/v1/files/{fileId}/abort-upload [post]
func AbortUpload(uploadService explorer.UploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}
		var req models.AbortUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "Invalid request body")
			return
		}

		if err := uploadService.Abort(c.Request.Context(), currentUserID, fileID, req.UploadID); err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "Upload aborted successfully", nil)
	}
}

// UploadProgress 查询已接收的分片，用于断点续传
// @Summary 查询上传进度
// @Tags 文件上传
// @Produce json
// @Security BearerAuth
// @Param fileId path int true "文件ID"
// @Param uploadId query string true "上传会话ID"
// @Success 200 {object} xerr.Response "上传进度"
// @Router /api/v1/files/{fileId}/upload-progress [get]
func UploadProgress(uploadService explorer.UploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		currentUserID, ok := utils.GetUserIDFromContext(c)
		if !ok {
			return
		}
		fileID, ok := utils.ParseUint64Param(c, "fileId")
		if !ok {
			return
		}
		uploadID := uploadIDFrom(c)
		if uploadID == "" {
			xerr.AbortWithError(c, http.StatusBadRequest, xerr.InvalidParamsCode, "uploadId is required")
			return
		}

		progress, err := uploadService.Progress(c.Request.Context(), currentUserID, fileID, uploadID)
		if err != nil {
			xerr.Fail(c, err)
			return
		}
		xerr.Success(c, http.StatusOK, "Upload progress retrieved successfully", progress)
	}
}
