package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shiptoday/nanochat/config"
	"k8s.io/klog/v2"
)

// OpenAIGenerator 基于 go-openai SDK 的生成服务实现
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIGenerator 创建 go-openai 客户端
func NewOpenAIGenerator(cfg *config.Config) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.APIURL != "" {
		clientCfg.BaseURL = cfg.LLM.APIURL
	}
	timeout := cfg.LLM.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.LLM.Model,
		maxTokens: cfg.LLM.MaxTokens,
	}
}

// Generate 实现 Generator 接口
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, format *ResponseFormat, temperature float64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: float32(temperature),
	}
	if format != nil && format.JSONSchema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   format.JSONSchema.Name,
				Schema: format.JSONSchema.Schema,
				Strict: format.JSONSchema.Strict,
			},
		}
	}

	klog.V(6).Infof("[OpenAIGenerator] Generate 开始: model=%s, promptLen=%d", g.model, len(prompt))
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &DecodeError{Body: "'choices' missing in response"}
	}
	klog.V(6).Infof("[OpenAIGenerator] Generate 完成: tokens=%d", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// mapOpenAIError 把 SDK 错误映射为 ServiceError / DecodeError
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ServiceError{Status: reqErr.HTTPStatusCode, Body: snippet(reqErr.Error()), Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &DecodeError{Body: "response body is not a chat completion", Err: err}
	}
	return &ServiceError{Body: err.Error(), Err: err}
}
