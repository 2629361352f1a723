package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hsn0918/dentalrag/internal/clients/base"
	"github.com/hsn0918/dentalrag/internal/config"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultMaxTokens = 2048
	ServiceName      = "llm"
)

var ErrEmptyCompletion = errors.New("llm returned no content")

type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Completer is the text-completion contract the triage pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error)
}

type Client struct {
	httpClient *base.HTTPClient
	model      string
}

var (
	_ ChatCompleter = (*Client)(nil)
	_ Completer     = (*Client)(nil)
)

func NewClient(cfg config.ServiceConfig, opts ...base.Option) *Client {
	return &Client{
		httpClient: base.NewHTTPClient(ServiceName, cfg, DefaultTimeout, opts...),
		model:      cfg.Model,
	}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	// 温度 0 必须显式发送，不能 omitempty
	Temperature float64 `json:"temperature"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse accepts both the OpenAI-style choices array and gateways
// that answer with a flat "result" field.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Result  string   `json:"result"`
}

// Content returns the generated text.
func (r *ChatResponse) Content() string {
	if r.Result != "" {
		return r.Result
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var result ChatResponse
	if err := c.httpClient.Post(ctx, "/chat/completions", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Complete sends an optional system prompt plus one user prompt.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	resp, err := c.CreateChatCompletion(ctx, ChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content())
	if content == "" {
		return "", base.NewClientError(ServiceName, "POST /chat/completions", ErrEmptyCompletion)
	}
	return content, nil
}
