// Package llm 提供上游 Chat Completion 提供商客户端
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"beanwise-ai-api/internal/config"
)

// Completion 一次上游调用的结果与实际成本
type Completion struct {
	Answer           string
	Provider         string
	Model            string
	TokensPrompt     int
	TokensCompletion int
	// Cost 按配置单价由实际 token 用量折算
	Cost     float64
	Duration time.Duration
}

// Client OpenAI 兼容的 Chat Completion 客户端
type Client struct {
	provider             string
	baseURL              string
	apiKey               string
	model                string
	maxTokens            int
	temperature          float64
	promptPricePer1K     float64
	completionPricePer1K float64
	httpClient           *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewClient 创建上游客户端
func NewClient(cfg *config.LLMConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		provider:             cfg.Provider,
		baseURL:              strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:               cfg.APIKey,
		model:                cfg.Model,
		maxTokens:            cfg.MaxTokens,
		temperature:          cfg.Temperature,
		promptPricePer1K:     cfg.PromptPricePer1K,
		completionPricePer1K: cfg.CompletionPricePer1K,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Complete 调用上游生成回答。超时或失败由调用方按上游不可用处理，不计成本。
func (c *Client) Complete(ctx context.Context, query string) (*Completion, error) {
	reqBody, err := json.Marshal(&chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: query},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	if c.baseURL == "" {
		return nil, fmt.Errorf("llm base url is empty")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat request failed: status=%d", httpResp.StatusCode)
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices")
	}

	return &Completion{
		Answer:           resp.Choices[0].Message.Content,
		Provider:         c.provider,
		Model:            c.model,
		TokensPrompt:     resp.Usage.PromptTokens,
		TokensCompletion: resp.Usage.CompletionTokens,
		Cost:             c.costOf(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		Duration:         time.Since(start),
	}, nil
}

// costOf 按配置单价折算实际成本
func (c *Client) costOf(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*c.promptPricePer1K +
		float64(completionTokens)/1000*c.completionPricePer1K
}
