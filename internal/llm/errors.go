// internal/llm/errors.go
package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ErrorKind 接口调用失败的类别
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindHTTP              ErrorKind = "http"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindNetwork           ErrorKind = "network"
	KindExhausted         ErrorKind = "exhausted"
)

// ApiError 模型接口调用错误
type ApiError struct {
	Kind     ErrorKind
	Status   int    // 仅 KindHTTP
	Message  string // KindExhausted 时为最后一次失败的消息
	Attempts int    // 仅 KindExhausted
	Err      error
}

// 按类别匹配的哨兵，配合 errors.Is 使用
var (
	ErrTimeout           = &ApiError{Kind: KindTimeout}
	ErrHTTP              = &ApiError{Kind: KindHTTP}
	ErrMalformedResponse = &ApiError{Kind: KindMalformedResponse}
	ErrNetwork           = &ApiError{Kind: KindNetwork}
	ErrExhausted         = &ApiError{Kind: KindExhausted}
)

func (e *ApiError) Error() string {
	if e.Kind == KindExhausted {
		return fmt.Sprintf("API调用失败 (已重试%d次): %s", e.Attempts, e.Message)
	}
	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

// Is 同类别即视为匹配
func (e *ApiError) Is(target error) bool {
	t, ok := target.(*ApiError)
	return ok && t.Kind == e.Kind
}

// NewTimeoutError 单次请求超时
func NewTimeoutError(timeout time.Duration, err error) *ApiError {
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	return &ApiError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("请求超时（%s秒），请重试", secs),
		Err:     err,
	}
}

// NewHTTPError 非 2xx 响应，消息优先取响应体中的 error.message
func NewHTTPError(status int, body []byte) *ApiError {
	message := fmt.Sprintf("HTTP错误: %d", status)

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		message = payload.Error.Message
	}

	return &ApiError{Kind: KindHTTP, Status: status, Message: message}
}

// NewHTTPStatusError 已知消息的 HTTP 错误
func NewHTTPStatusError(status int, message string) *ApiError {
	if message == "" {
		message = fmt.Sprintf("HTTP错误: %d", status)
	}
	return &ApiError{Kind: KindHTTP, Status: status, Message: message}
}

// NewMalformedResponseError 响应中缺少可用内容
func NewMalformedResponseError(err error) *ApiError {
	return &ApiError{Kind: KindMalformedResponse, Message: "API返回格式错误", Err: err}
}

// NewNetworkError 传输层失败
func NewNetworkError(err error) *ApiError {
	return &ApiError{Kind: KindNetwork, Message: fmt.Sprintf("网络错误: %v", err), Err: err}
}
