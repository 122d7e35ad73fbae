package validator

import (
	"fmt"
)

// ErrorKind 校验失败的类别
type ErrorKind string

const (
	KindMalformedPayload         ErrorKind = "MalformedPayload"
	KindTooShort                 ErrorKind = "TooShort"
	KindWrongFirstRole           ErrorKind = "WrongFirstRole"
	KindRoleAlternationViolation ErrorKind = "RoleAlternationViolation"
	KindEmptyContent             ErrorKind = "EmptyContent"
	KindNonASCIIContent          ErrorKind = "NonASCIIContent"
)

// 与 errors.Is 配合使用的哨兵错误
var (
	ErrMalformedPayload         = &Error{Kind: KindMalformedPayload, Index: -1}
	ErrTooShort                 = &Error{Kind: KindTooShort, Index: -1}
	ErrWrongFirstRole           = &Error{Kind: KindWrongFirstRole, Index: -1}
	ErrRoleAlternationViolation = &Error{Kind: KindRoleAlternationViolation, Index: -1}
	ErrEmptyContent             = &Error{Kind: KindEmptyContent, Index: -1}
	ErrNonASCIIContent          = &Error{Kind: KindNonASCIIContent, Index: -1}
)

// Error 结构校验错误，只描述第一个发现的问题
// Index 为出问题的消息下标，与具体消息无关时为 -1
type Error struct {
	Kind   ErrorKind
	Index  int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s(at_index=%d)", e.Kind, e.Index)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is 按 Kind 比较，使 errors.Is(err, ErrTooShort) 成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
