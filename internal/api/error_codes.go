// internal/api/error_codes.go
package api

import (
	"errors"
	"net/http"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/services"
)

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 会话与生成流程
	ErrorSessionNotFound      = "SESSION_NOT_FOUND"
	ErrorSessionBusy          = "SESSION_BUSY"
	ErrorEmptyInput           = "EMPTY_INPUT"
	ErrorInvalidStage         = "INVALID_STAGE"
	ErrorNoActiveScript       = "NO_ACTIVE_SCRIPT"
	ErrorConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrorVersionNotFound      = "VERSION_NOT_FOUND"

	// LLM服务相关错误
	ErrorLLMCallFailed         = "LLM_CALL_FAILED"
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"

	// 导出与任务
	ErrorExportDataEmpty = "NO_CONTENT_TO_EXPORT"
	ErrorTaskNotFound    = "TASK_NOT_FOUND"
)

// statusForError 按错误类型确定 HTTP 状态码与错误代码
func statusForError(err error) (int, string) {
	if errors.Is(err, services.ErrLLMNotReady) {
		return http.StatusServiceUnavailable, ErrorLLMServiceUnavailable
	}

	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, ErrorBadRequest
	case apperrors.ErrorTypeEmptyInput:
		return http.StatusBadRequest, ErrorEmptyInput
	case apperrors.ErrorTypeConfirmationRequired:
		return http.StatusBadRequest, ErrorConfirmationRequired
	case apperrors.ErrorTypeInvalidStage:
		return http.StatusBadRequest, ErrorInvalidStage
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound, ErrorNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict, ErrorSessionBusy
	case apperrors.ErrorTypeNoActiveScript:
		return http.StatusUnprocessableEntity, ErrorNoActiveScript
	case apperrors.ErrorTypeNoContentToExport:
		return http.StatusUnprocessableEntity, ErrorExportDataEmpty
	case apperrors.ErrorTypeLLM:
		return http.StatusBadGateway, ErrorLLMCallFailed
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}
