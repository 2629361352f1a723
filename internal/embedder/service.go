// Package embedder turns text into vectors through the remote embedding
// service. Initialization is lazy and succeeds at most once per process.
// A missing endpoint or a dimension mismatch leaves the provider permanently
// unavailable; a failed remote probe is retried after RetryInterval. While
// unavailable, callers fall back to non-vector paths.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/logger"
)

var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider is what retrieval and the batch job depend on.
type Provider interface {
	Init(ctx context.Context) error
	Ready() bool
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is the subset of the embedding HTTP client used here.
type Client interface {
	Configured() bool
	CreateEmbeddingWithDefaults(ctx context.Context, text string) ([]float32, error)
	CreateBatchEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache stores query vectors; nil disables caching.
type Cache interface {
	GetEmbedding(ctx context.Context, model, text string) ([]float32, error)
	CacheEmbedding(ctx context.Context, model, text string, embedding []float32) error
}

const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryInterval = time.Minute
	probeText            = "口腔健康"
)

type Service struct {
	client     Client
	cache      Cache
	model      string
	dimensions int
	timeout    time.Duration
	retry      time.Duration
	now        func() time.Time

	mu          sync.Mutex
	ready       atomic.Bool
	initErr     error
	permanent   bool
	lastAttempt time.Time
}

var _ Provider = (*Service)(nil)

type Option func(*Service)

func WithCache(c Cache) Option      { return func(s *Service) { s.cache = c } }
func WithModel(model string) Option { return func(s *Service) { s.model = model } }
func WithDimensions(n int) Option   { return func(s *Service) { s.dimensions = n } }
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetryInterval sets how long a failed remote probe is remembered
// before the next call probes again.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retry = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(client Client, opts ...Option) *Service {
	s := &Service{client: client, timeout: DefaultTimeout, retry: DefaultRetryInterval, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init probes the service. Concurrent callers share one probe; after a
// transient failure the cached error is returned until RetryInterval passes.
func (s *Service) Init(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Load() {
		return nil
	}
	if s.initErr != nil && (s.permanent || s.now().Sub(s.lastAttempt) < s.retry) {
		return s.initErr
	}

	s.lastAttempt = s.now()
	s.permanent, s.initErr = s.probe(context.WithoutCancel(ctx))
	if s.initErr != nil {
		logger.GetLogger().Warn("向量模型不可用，检索将降级为关键词匹配",
			zap.String("model", s.model),
			zap.Bool("permanent", s.permanent),
			zap.Error(s.initErr))
		return s.initErr
	}
	s.ready.Store(true)
	logger.GetLogger().Info("向量模型初始化完成", zap.String("model", s.model))
	return nil
}

// probe reports whether a failure is permanent (configuration) or worth
// retrying (remote call).
func (s *Service) probe(ctx context.Context) (permanent bool, err error) {
	if s.client == nil || !s.client.Configured() {
		return true, fmt.Errorf("%w: endpoint not configured", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.client.CreateEmbeddingWithDefaults(ctx, probeText)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return true, fmt.Errorf("%w: model returned %d dimensions, store expects %d", ErrUnavailable, len(vec), s.dimensions)
	}
	return false, nil
}

func (s *Service) Ready() bool { return s.ready.Load() }

func (s *Service) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if vec, err := s.cache.GetEmbedding(ctx, s.model, text); err != nil {
			logger.GetLogger().Warn("读取向量缓存失败", zap.Error(err))
		} else if vec != nil {
			return vec, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	vec, err := s.client.CreateEmbeddingWithDefaults(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.CacheEmbedding(ctx, s.model, text, vec); err != nil {
			logger.GetLogger().Warn("写入向量缓存失败", zap.Error(err))
		}
	}
	return vec, nil
}

func (s *Service) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	vecs, err := s.client.CreateBatchEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return vecs, nil
}
