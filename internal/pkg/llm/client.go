package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shiptoday/nanochat/config"
	"k8s.io/klog/v2"
)

// Generator 生成服务边界：给定提示词、输出结构与温度，返回模型原始文本
type Generator interface {
	Generate(ctx context.Context, prompt string, format *ResponseFormat, temperature float64) (string, error)
}

// Client 兼容 OpenAI chat/completions 协议的 HTTP 客户端
type Client struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Client    *http.Client
}

// NewClient 创建新的 LLM 客户端
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.LLM.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		BaseURL:   strings.TrimRight(cfg.LLM.APIURL, "/"),
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewGenerator 按 llm.backend 选择生成服务实现
func NewGenerator(cfg *config.Config) (Generator, error) {
	switch cfg.LLM.Backend {
	case "", "http":
		return NewClient(cfg), nil
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLM.Backend)
	}
}

// Generate 发送单轮请求并返回第一个 choice 的内容
func (c *Client) Generate(ctx context.Context, prompt string, format *ResponseFormat, temperature float64) (string, error) {
	klog.V(6).Infof("Generate 请求: model=%s, promptLen=%d, temperature=%v", c.Model, len(prompt), temperature)
	resp, err := c.sendRequest(ctx, ChatRequest{
		Model:          c.Model,
		Messages:       []ChatMessage{{Role: "user", Content: prompt}},
		Stream:         false,
		MaxTokens:      c.MaxTokens,
		Temperature:    temperature,
		ResponseFormat: format,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", &DecodeError{Body: "'choices' missing in response"}
	}
	klog.V(6).Infof("Generate 完成: finish=%s, tokens=%d", resp.Choices[0].FinishReason, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// sendRequest 发送 HTTP 请求到 LLM API
func (c *Client) sendRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	url := c.BaseURL + "/chat/completions"
	klog.V(6).Infof("发送 LLM 请求: url=%s, model=%s", url, reqBody.Model)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &ServiceError{Body: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Body: "failed to read response: " + err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{
			Status:     resp.StatusCode,
			Body:       snippet(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &DecodeError{Body: snippet(string(body)), Err: err}
	}

	if chatResp.Error != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Body: chatResp.Error.Message}
	}

	return &chatResp, nil
}
