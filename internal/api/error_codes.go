// internal/api/error_codes.go
package api

import (
	"errors"

	apperrors "github.com/Corphon/VogueVault/internal/errors"
)

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorValidation    = "VALIDATION_ERROR"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 衣橱相关错误
	ErrorItemNotFound  = "ITEM_NOT_FOUND"
	ErrorImageNotFound = "IMAGE_NOT_FOUND"
	ErrorImageInvalid  = "IMAGE_INVALID"

	// 会话相关错误
	ErrorSessionNotFound = "SESSION_NOT_FOUND"
)

func asAppError(err error, target **apperrors.AppError) bool {
	return errors.As(err, target)
}
