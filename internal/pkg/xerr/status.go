package xerr

import (
	"errors"
	"net/http"
)

type statusEntry struct {
	target     error
	httpStatus int
	code       int
}

// 顺序敏感：具体错误必须排在其包裹的通用错误之前
var statusTable = []statusEntry{
	{ErrValidation, http.StatusBadRequest, ValidationFailedCode},
	{ErrInvalidParams, http.StatusBadRequest, InvalidParamsCode},
	{ErrStorageNotConfigured, http.StatusBadRequest, StorageNotConfiguredCode},
	{ErrFileStatusInvalid, http.StatusConflict, FileStatusInvalidCode},
	{ErrUnauthorized, http.StatusUnauthorized, UnauthorizedCode},
	{ErrTokenInvalid, http.StatusUnauthorized, TokenInvalidCode},
	{ErrPermissionDenied, http.StatusForbidden, PermissionDeniedCode},
	{ErrSharePasswordRequired, http.StatusForbidden, SharePasswordRequiredCode},
	{ErrSharePasswordIncorrect, http.StatusForbidden, SharePasswordIncorrectCode},
	{ErrUserNotFound, http.StatusNotFound, UserNotFoundCode},
	{ErrFileNotFound, http.StatusNotFound, FileNotFoundCode},
	{ErrDirectoryNotFound, http.StatusNotFound, DirectoryNotFoundCode},
	{ErrShareNotFound, http.StatusNotFound, ShareNotFoundCode},
	{ErrUploadSessionNotFound, http.StatusNotFound, UploadSessionNotFoundCode},
	{ErrNotFound, http.StatusNotFound, NotFoundCode},
	{ErrUploadIncomplete, http.StatusConflict, UploadIncompleteCode},
	{ErrNoChunks, http.StatusConflict, NoChunksCode},
	{ErrConflict, http.StatusConflict, ConflictCode},
	{ErrExpired, http.StatusGone, ShareExpiredCode},
	{ErrQuotaExceeded, http.StatusRequestEntityTooLarge, QuotaExceededCode},
	{ErrRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable, RangeNotSatisfiableCode},
	{ErrUpstreamExhausted, http.StatusServiceUnavailable, UpstreamUnavailableCode},
	{ErrUpstreamRejected, http.StatusBadGateway, UpstreamErrorCode},
	{ErrDatabaseError, http.StatusInternalServerError, DatabaseErrorCode},
}

// Status 把错误映射为 HTTP 状态码和业务码
func Status(err error) (int, int) {
	var ce *CodeError
	if errors.As(err, &ce) {
		for _, e := range statusTable {
			if e.code == ce.Code {
				return e.httpStatus, ce.Code
			}
		}
	}
	for _, e := range statusTable {
		if errors.Is(err, e.target) {
			return e.httpStatus, e.code
		}
	}
	return http.StatusInternalServerError, InternalServerErrorCode
}
