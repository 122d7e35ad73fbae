package domain

import (
	"encoding/json"
	"time"
)

// Role 消息发言方
type Role string

const (
	RoleUser      Role = "user"      // 用户
	RoleAssistant Role = "assistant" // 助手
)

// ExpectedRole 返回对话第 i 条消息应有的角色：偶数位为 user，奇数位为 assistant
func ExpectedRole(i int) Role {
	if i%2 == 0 {
		return RoleUser
	}
	return RoleAssistant
}

// Valid 判断角色是否为已知取值
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message 单条对话消息，生成后不可修改
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationRecord 一条通过结构校验的多轮对话
// 序列化为消息数组，即输出 JSONL 文件中的一行
type ConversationRecord struct {
	Messages []Message
}

// Len 返回消息条数
func (r *ConversationRecord) Len() int {
	return len(r.Messages)
}

func (r ConversationRecord) MarshalJSON() ([]byte, error) {
	if r.Messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Messages)
}

func (r *ConversationRecord) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Messages)
}

// OutcomeStatus 任务终态
type OutcomeStatus string

const (
	OutcomeAccepted OutcomeStatus = "accepted"
	OutcomeRejected OutcomeStatus = "rejected"
)

// Outcome 单个任务的终态结果，产生后不再变化
type Outcome struct {
	Index    int
	Status   OutcomeStatus
	Record   *ConversationRecord // 仅 accepted 时非空
	Err      error               // 仅 rejected 时非空
	Attempts int
	Duration time.Duration
}

// Accepted 构造接受结果
func Accepted(idx int, rec *ConversationRecord) Outcome {
	return Outcome{Index: idx, Status: OutcomeAccepted, Record: rec}
}

// Rejected 构造拒绝结果
func Rejected(idx int, err error) Outcome {
	return Outcome{Index: idx, Status: OutcomeRejected, Err: err}
}
