// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"

	// 生成流程前置条件
	ErrorTypeEmptyInput           ErrorType = "empty_input"
	ErrorTypeNoActiveScript       ErrorType = "no_active_script"
	ErrorTypeNoContentToExport    ErrorType = "no_content_to_export"
	ErrorTypeInvalidStage         ErrorType = "invalid_stage"
	ErrorTypeConfirmationRequired ErrorType = "confirmation_required"

	// 上游模型调用失败
	ErrorTypeLLM ErrorType = "llm_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewEmptyInputError 输入为空
func NewEmptyInputError(message string) *AppError {
	return NewAppError(ErrorTypeEmptyInput, message, nil)
}

// NewNoActiveScriptError 当前没有可操作的剧本
func NewNoActiveScriptError(message string) *AppError {
	return NewAppError(ErrorTypeNoActiveScript, message, nil)
}

// NewNoContentToExportError 没有可导出的内容
func NewNoContentToExportError(message string) *AppError {
	return NewAppError(ErrorTypeNoContentToExport, message, nil)
}

// NewInvalidStageError 当前阶段不允许该操作
func NewInvalidStageError(message string) *AppError {
	return NewAppError(ErrorTypeInvalidStage, message, nil)
}

// NewConfirmationRequiredError 破坏性操作缺少确认
func NewConfirmationRequiredError(message string) *AppError {
	return NewAppError(ErrorTypeConfirmationRequired, message, nil)
}

// NewLLMError 包装模型调用失败
func NewLLMError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeLLM, message, originalError)
}

// TypeOf 返回错误链上第一个 AppError 的类型，没有则返回空
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// IsType 检查错误链上是否存在指定类型的 AppError
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "SESSION_BUSY"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeEmptyInput:
		return "EMPTY_INPUT"
	case ErrorTypeNoActiveScript:
		return "NO_ACTIVE_SCRIPT"
	case ErrorTypeNoContentToExport:
		return "NO_CONTENT_TO_EXPORT"
	case ErrorTypeInvalidStage:
		return "INVALID_STAGE"
	case ErrorTypeConfirmationRequired:
		return "CONFIRMATION_REQUIRED"
	case ErrorTypeLLM:
		return "LLM_CALL_FAILED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
