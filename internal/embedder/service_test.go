package embedder_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/embedder"
)

type fakeClient struct {
	configured bool
	err        error
	calls      atomic.Int32
}

func (f *fakeClient) Configured() bool { return f.configured }

func (f *fakeClient) CreateEmbeddingWithDefaults(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeClient) CreateBatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.CreateEmbeddingWithDefaults(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func (m *mapCache) GetEmbedding(_ context.Context, model, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[model+"|"+text], nil
}

func (m *mapCache) CacheEmbedding(_ context.Context, model, text string, v []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[model+"|"+text] = v
	return nil
}

func TestUnconfiguredIsUnavailable(t *testing.T) {
	s := embedder.New(&fakeClient{})
	_, err := s.Encode(context.Background(), "牙疼")
	assert.ErrorIs(t, err, embedder.ErrUnavailable)
	assert.False(t, s.Ready())
}

func TestInitRunsOnceUnderConcurrency(t *testing.T) {
	client := &fakeClient{configured: true}
	s := embedder.New(client, embedder.WithDimensions(3))

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() { _ = s.Init(context.Background()) })
	}
	wg.Wait()

	assert.True(t, s.Ready())
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestRemoteFailureRetriesAfterInterval(t *testing.T) {
	client := &fakeClient{configured: true, err: errors.New("connection refused")}
	now := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
	s := embedder.New(client,
		embedder.WithRetryInterval(time.Minute),
		embedder.WithClock(func() time.Time { return now }))

	_, err := s.Encode(context.Background(), "a")
	require.ErrorIs(t, err, embedder.ErrUnavailable)

	// the endpoint is back but the failure is still remembered
	client.err = nil
	now = now.Add(30 * time.Second)
	_, err = s.Encode(context.Background(), "a")
	require.ErrorIs(t, err, embedder.ErrUnavailable)
	assert.Equal(t, int32(1), client.calls.Load())

	now = now.Add(31 * time.Second)
	vec, err := s.Encode(context.Background(), "a")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.True(t, s.Ready())
	// failed probe + successful probe + encode
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestConfigurationFailureIsSticky(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		opts   []embedder.Option
		calls  int32
	}{
		{name: "not configured", client: &fakeClient{}, calls: 0},
		{name: "dimension mismatch", client: &fakeClient{configured: true}, opts: []embedder.Option{embedder.WithDimensions(1024)}, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
			opts := append([]embedder.Option{
				embedder.WithRetryInterval(time.Minute),
				embedder.WithClock(func() time.Time { return now }),
			}, tt.opts...)
			s := embedder.New(tt.client, opts...)

			require.ErrorIs(t, s.Init(context.Background()), embedder.ErrUnavailable)
			now = now.Add(time.Hour)
			assert.ErrorIs(t, s.Init(context.Background()), embedder.ErrUnavailable)
			assert.Equal(t, tt.calls, tt.client.calls.Load())
			assert.False(t, s.Ready())
		})
	}
}

func TestDimensionMismatchIsUnavailable(t *testing.T) {
	s := embedder.New(&fakeClient{configured: true}, embedder.WithDimensions(1024))
	assert.ErrorIs(t, s.Init(context.Background()), embedder.ErrUnavailable)
}

func TestEncodeUsesCache(t *testing.T) {
	client := &fakeClient{configured: true}
	cache := &mapCache{data: map[string][]float32{}}
	s := embedder.New(client, embedder.WithCache(cache), embedder.WithModel("bge"))

	first, err := s.Encode(context.Background(), "牙龈出血")
	require.NoError(t, err)
	second, err := s.Encode(context.Background(), "牙龈出血")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// probe + one real encode
	assert.Equal(t, int32(2), client.calls.Load())
}
