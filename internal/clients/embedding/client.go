package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hsn0918/dentalrag/internal/clients/base"
	"github.com/hsn0918/dentalrag/internal/config"
)

const (
	DefaultTimeout = 30 * time.Second
	ServiceName    = "embedding"
)

var ErrEmptyResponse = errors.New("embedding response has no data")

type Embedder interface {
	CreateEmbedding(ctx context.Context, req Request) (*Response, error)
	CreateEmbeddingWithDefaults(ctx context.Context, text string) ([]float32, error)
	CreateBatchEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type Client struct {
	httpClient *base.HTTPClient
	model      string
	dimensions int
}

var _ Embedder = (*Client)(nil)

func NewClient(cfg config.ServiceConfig, dimensions int, opts ...base.Option) *Client {
	return &Client{
		httpClient: base.NewHTTPClient(ServiceName, cfg, DefaultTimeout, opts...),
		model:      cfg.Model,
		dimensions: dimensions,
	}
}

func (c *Client) Configured() bool { return c.httpClient.Configured() }

type Request struct {
	Model          string `json:"model"`
	Input          any    `json:"input"`
	EncodingFormat string `json:"encoding_format,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
}

type Data struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type Response struct {
	Object string `json:"object"`
	Model  string `json:"model"`
	Data   []Data `json:"data"`
	Usage  Usage  `json:"usage"`
}

func (c *Client) CreateEmbedding(ctx context.Context, req Request) (*Response, error) {
	var result Response
	if err := c.httpClient.Post(ctx, "/embeddings", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) request(input any) Request {
	req := Request{Model: c.model, Input: input, EncodingFormat: "float"}
	// 只有支持可变维度的模型才显式传 dimensions
	if GetSupportedDimensions(c.model) != nil {
		req.Dimensions = c.dimensions
	}
	return req
}

func (c *Client) CreateEmbeddingWithDefaults(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.CreateEmbedding(ctx, c.request(text))
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// CreateBatchEmbedding returns one vector per input, in input order.
func (c *Client) CreateBatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.CreateEmbedding(ctx, c.request(texts))
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) || out[idx] != nil {
			idx = i
		}
		out[idx] = toFloat32(d.Embedding)
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

const (
	ModelBGELargeZhV15      = "BAAI/bge-large-zh-v1.5"
	ModelBGEM3              = "BAAI/bge-m3"
	ModelBCEEmbeddingBaseV1 = "netease-youdao/bce-embedding-base_v1"
	ModelQwen3Embedding8B   = "Qwen/Qwen3-Embedding-8B"
	ModelQwen3Embedding4B   = "Qwen/Qwen3-Embedding-4B"
	ModelQwen3Embedding06B  = "Qwen/Qwen3-Embedding-0.6B"
)

func GetSupportedDimensions(model string) []int {
	switch model {
	case ModelQwen3Embedding8B:
		return []int{64, 128, 256, 512, 768, 1024, 2048, 4096}
	case ModelQwen3Embedding4B:
		return []int{64, 128, 256, 512, 768, 1024, 2048}
	case ModelQwen3Embedding06B:
		return []int{64, 128, 256, 512, 768, 1024}
	default:
		return nil
	}
}

func GetDefaultDimensions(model string) int {
	switch model {
	case ModelQwen3Embedding8B:
		return 4096
	case ModelQwen3Embedding4B:
		return 2048
	case ModelQwen3Embedding06B, ModelBGELargeZhV15, ModelBGEM3:
		return 1024
	case ModelBCEEmbeddingBaseV1:
		return 768
	default:
		return 1536
	}
}
