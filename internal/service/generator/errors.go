package generator

import (
	"context"
	"errors"

	"github.com/shiptoday/nanochat/internal/pkg/llm"
	"github.com/shiptoday/nanochat/internal/prompt"
	"github.com/shiptoday/nanochat/internal/service/orchestrator"
	"github.com/shiptoday/nanochat/internal/sink"
	"github.com/shiptoday/nanochat/internal/validator"
)

// ErrRejectionsPresent 配置了 fail_on_rejection 且存在被拒绝的任务
var ErrRejectionsPresent = errors.New("run finished with rejected tasks")

// 拒绝原因分类，用于日志、指标与审计
const (
	KindServiceError     = "ServiceError"
	KindDecodeError      = "DecodeError"
	KindPersistenceError = "PersistenceError"
	KindTemplateError    = "TemplateError"
	KindCanceled         = "Canceled"
	KindPanic            = "Panic"
	KindUnknown          = "Unknown"
)

// ErrorKind 返回错误所属的分类
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var svcErr *llm.ServiceError
	var decErr *llm.DecodeError
	var valErr *validator.Error
	var perErr *sink.PersistenceError
	var tplErr *prompt.MissingPlaceholderError

	switch {
	case errors.As(err, &valErr):
		return string(valErr.Kind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// 传输层的取消也会包装成 ServiceError，需先判断
		return KindCanceled
	case errors.As(err, &svcErr):
		return KindServiceError
	case errors.As(err, &decErr):
		return KindDecodeError
	case errors.As(err, &perErr):
		return KindPersistenceError
	case errors.As(err, &tplErr):
		return KindTemplateError
	case errors.Is(err, orchestrator.ErrTaskPanicked):
		return KindPanic
	default:
		return KindUnknown
	}
}
