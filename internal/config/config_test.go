package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.InDelta(t, 0.3, cfg.Retrieval.SimilarityThreshold, 1e-9)
	assert.Equal(t, 200, cfg.Retrieval.MaxCandidates)
	assert.Equal(t, 20, cfg.Recommendation.MinBehaviors)
	assert.Equal(t, 20, cfg.Dialogue.DedupWindow)
	assert.Equal(t, time.Hour, cfg.Profile.RefreshInterval)
	assert.Equal(t, 60*time.Second, cfg.Services.LLM.Timeout)
	assert.Equal(t, "glm-4", cfg.Services.LLM.Model)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  driver: memory
services:
  llm:
    base_url: http://llm.local/v1
    timeout: 5s
  embedding:
    model: BAAI/bge-large-zh-v1.5
    dimensions: 1024
dialogue:
  doctor_limit: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "http://llm.local/v1", cfg.Services.LLM.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Services.LLM.Timeout)
	assert.Equal(t, "BAAI/bge-large-zh-v1.5", cfg.Services.Embedding.Model)
	assert.Equal(t, 1024, cfg.Services.Embedding.Dimensions)
	assert.Equal(t, 5, cfg.Dialogue.DoctorLimit)
}

func TestValidate(t *testing.T) {
	base, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{
			name:    "weights do not sum to one",
			mutate:  func(c *config.Config) { c.Recommendation.CFWeight = 0.9 },
			wantErr: config.ErrInvalidWeights,
		},
		{
			name:    "negative weight",
			mutate:  func(c *config.Config) { c.Recommendation.BaseWeight = -0.2; c.Recommendation.CFWeight = 0.8 },
			wantErr: config.ErrInvalidWeights,
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *config.Config) { c.Retrieval.SimilarityThreshold = 1.5 },
			wantErr: config.ErrInvalidThreshold,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *config.Config) { c.Database.Driver = "sqlite" },
			wantErr: config.ErrInvalidDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
