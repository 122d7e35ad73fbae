package llm

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// retryHintPatterns 供应商在 429 响应体中给出的等待时间
var retryHintPatterns = []struct {
	re   *regexp.Regexp
	unit time.Duration
}{
	{regexp.MustCompile(`(?i)(?:try again|retry after) in (\d+)\s*s`), time.Second},
	{regexp.MustCompile(`(?i)(?:try again|retry after) in (\d+)\s*m`), time.Minute},
	{regexp.MustCompile(`(?i)retry after (\d+)\s*s`), time.Second},
	{regexp.MustCompile(`(?i)retry after (\d+)\s*m`), time.Minute},
}

// IsRateLimited 判断是否为限流错误
func IsRateLimited(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	if svcErr.Status == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(svcErr.Body)
	for _, keyword := range []string{"rate limit", "too many requests", "quota exceeded", "rate-limited"} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// RetryAfter 返回服务端建议的等待时间，没有建议时为 0
func RetryAfter(err error) time.Duration {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return 0
	}
	if svcErr.RetryAfter > 0 {
		return svcErr.RetryAfter
	}
	if !IsRateLimited(err) {
		return 0
	}
	for _, p := range retryHintPatterns {
		if m := p.re.FindStringSubmatch(svcErr.Body); len(m) == 2 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return time.Duration(n) * p.unit
			}
		}
	}
	return 0
}

// parseRetryAfter 解析 Retry-After 头：秒数或 HTTP 日期
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
