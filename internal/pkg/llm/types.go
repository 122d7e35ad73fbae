package llm

import (
	"encoding/json"
)

// SchemaNode JSON Schema 节点，用于约束结构化输出
type SchemaNode struct {
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]*SchemaNode `json:"properties,omitempty"`
	Items                *SchemaNode            `json:"items,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// JSONSchemaFormat response_format 中的 json_schema 部分
type JSONSchemaFormat struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// ResponseFormat 结构化输出描述
type ResponseFormat struct {
	Type       string            `json:"type"` // 固定为 "json_schema"
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

// ChatMessage 请求中的单条消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest chat/completions 请求体
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Stream         bool            `json:"stream"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse chat/completions 响应体
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// ConversationSchema 返回多轮对话的严格 JSON Schema
// 结构为 {"messages": [{"role": ..., "content": ...}, ...]}
func ConversationSchema() *ResponseFormat {
	closed := false
	message := &SchemaNode{
		Type: "object",
		Properties: map[string]*SchemaNode{
			"role": {
				Type:        "string",
				Description: "The role of the speaker, either 'user' or 'assistant'",
			},
			"content": {
				Type:        "string",
				Description: "The message content",
			},
		},
		Required:             []string{"role", "content"},
		AdditionalProperties: &closed,
	}
	root := &SchemaNode{
		Type: "object",
		Properties: map[string]*SchemaNode{
			"messages": {
				Type:        "array",
				Description: "A list of conversation messages alternating between user and assistant, with the first message being a user message",
				Items:       message,
			},
		},
		Required:             []string{"messages"},
		AdditionalProperties: &closed,
	}

	schema, _ := json.Marshal(root)
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchemaFormat{
			Name:   "conversation",
			Strict: true,
			Schema: schema,
		},
	}
}
