package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shiptoday/nanochat/internal/domain"
	"github.com/shiptoday/nanochat/internal/utils"
	"k8s.io/klog/v2"
)

// DefaultMinMessages 一条对话至少包含的消息条数
const DefaultMinMessages = 6

// Options 校验选项
type Options struct {
	MinMessages  int  // 低于 DefaultMinMessages 时按 DefaultMinMessages 处理
	RequireASCII bool // 要求所有内容为 ASCII
}

// Validator 对模型返回的结构化对话做严格校验
// 只判定，不修正：要么整体通过，要么整体拒绝
type Validator struct {
	opts Options
}

// New 创建 Validator
func New(opts Options) *Validator {
	if opts.MinMessages < DefaultMinMessages {
		opts.MinMessages = DefaultMinMessages
	}
	return &Validator{opts: opts}
}

var defaultValidator = New(Options{})

// Validate 使用默认选项校验
func Validate(raw string) (*domain.ConversationRecord, error) {
	return defaultValidator.Validate(raw)
}

type rawMessage struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

type rawPayload struct {
	Messages *[]rawMessage `json:"messages"`
}

// Validate 解析并校验 raw，遇到第一个问题即返回对应的 *Error
func (v *Validator) Validate(raw string) (*domain.ConversationRecord, error) {
	messages, err := parse(raw)
	if err != nil {
		return nil, err
	}

	if len(messages) < v.opts.MinMessages {
		return nil, &Error{
			Kind:   KindTooShort,
			Index:  -1,
			Detail: fmt.Sprintf("got %d messages, need at least %d", len(messages), v.opts.MinMessages),
		}
	}

	if domain.Role(*messages[0].Role) != domain.RoleUser {
		return nil, &Error{
			Kind:   KindWrongFirstRole,
			Index:  0,
			Detail: fmt.Sprintf("role %q", *messages[0].Role),
		}
	}

	for i := 1; i < len(messages); i++ {
		expected := domain.ExpectedRole(i)
		if got := domain.Role(*messages[i].Role); got != expected {
			return nil, &Error{
				Kind:   KindRoleAlternationViolation,
				Index:  i,
				Detail: fmt.Sprintf("role %q, expected %q", got, expected),
			}
		}
	}

	for i, m := range messages {
		if strings.TrimSpace(*m.Content) == "" {
			return nil, &Error{Kind: KindEmptyContent, Index: i}
		}
	}

	if v.opts.RequireASCII {
		for i, m := range messages {
			if pos := firstNonASCII(*m.Content); pos >= 0 {
				return nil, &Error{
					Kind:   KindNonASCIIContent,
					Index:  i,
					Detail: fmt.Sprintf("byte offset %d", pos),
				}
			}
		}
	}

	record := &domain.ConversationRecord{Messages: make([]domain.Message, len(messages))}
	for i, m := range messages {
		record.Messages[i] = domain.Message{Role: domain.Role(*m.Role), Content: *m.Content}
	}
	return record, nil
}

// parse 解析出 messages 数组；直接解析失败时尝试截取文本中的 JSON 对象
func parse(raw string) ([]rawMessage, error) {
	var payload rawPayload
	err := json.Unmarshal([]byte(raw), &payload)
	if err != nil {
		extracted := utils.ExtractJSON(raw)
		if extracted == raw {
			return nil, &Error{Kind: KindMalformedPayload, Index: -1, Err: err}
		}
		klog.V(6).Infof("直接解析失败，使用截取后的 JSON 重试: len=%d", len(extracted))
		payload = rawPayload{}
		if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
			return nil, &Error{Kind: KindMalformedPayload, Index: -1, Err: err}
		}
	}

	if payload.Messages == nil {
		return nil, &Error{Kind: KindMalformedPayload, Index: -1, Detail: "missing messages field"}
	}
	messages := *payload.Messages
	for i, m := range messages {
		if m.Role == nil || m.Content == nil {
			return nil, &Error{Kind: KindMalformedPayload, Index: i, Detail: "message requires role and content"}
		}
	}
	return messages, nil
}

func firstNonASCII(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return i
		}
	}
	return -1
}
