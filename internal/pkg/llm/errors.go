package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// maxBodySnippet 错误信息中保留的响应体长度
const maxBodySnippet = 500

// ServiceError 生成服务调用失败：传输错误（Status 为 0）或非成功状态码
type ServiceError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // 来自 Retry-After 响应头
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("service error: %s", e.Body)
	}
	return fmt.Sprintf("service error: HTTP %d: %s", e.Status, e.Body)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Temporary 传输错误、429 与 5xx 视为暂时性错误
func (e *ServiceError) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// DecodeError 响应体无法解析为预期的结构
type DecodeError struct {
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %v | raw: %s", e.Err, e.Body)
	}
	return fmt.Sprintf("decode error: %s", e.Body)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否值得重试，调用方主动取消的请求不重试
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Temporary()
}

func snippet(s string) string {
	if len(s) > maxBodySnippet {
		return s[:maxBodySnippet]
	}
	return s
}
