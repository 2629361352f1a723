package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrInvalidWeights   = errors.New("recommendation weights must be non-negative and sum to 1")
	ErrInvalidThreshold = errors.New("similarity threshold must be within [-1, 1]")
	ErrInvalidDriver    = errors.New("database driver must be postgres or memory")
)

type ServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetrievalConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxCandidates       int     `mapstructure:"max_candidates"`
	KnowledgeLimit      int     `mapstructure:"knowledge_limit"`
	EmbeddingBatchSize  int     `mapstructure:"embedding_batch_size"`
}

type RecommendationConfig struct {
	MinBehaviors  int     `mapstructure:"min_behaviors"`
	CFWeight      float64 `mapstructure:"cf_weight"`
	CBWeight      float64 `mapstructure:"cb_weight"`
	BaseWeight    float64 `mapstructure:"base_weight"`
	SimilarUsers  int     `mapstructure:"similar_users"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

type DialogueConfig struct {
	DoctorLimit  int `mapstructure:"doctor_limit"`
	DedupWindow  int `mapstructure:"dedup_window"`
	HistoryLimit int `mapstructure:"history_limit"`
}

type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
	Database struct {
		Driver   string `mapstructure:"driver"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	MinIO struct {
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		BucketName      string `mapstructure:"bucket_name"`
		UseSSL          bool   `mapstructure:"use_ssl"`
		KnowledgePrefix string `mapstructure:"knowledge_prefix"`
	} `mapstructure:"minio"`
	Services struct {
		Embedding struct {
			ServiceConfig `mapstructure:",squash"`
			Dimensions    int `mapstructure:"dimensions"`
		} `mapstructure:"embedding"`
		LLM ServiceConfig `mapstructure:"llm"`
	} `mapstructure:"services"`
	Retrieval      RetrievalConfig      `mapstructure:"retrieval"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Dialogue       DialogueConfig       `mapstructure:"dialogue"`
	Profile        struct {
		RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	} `mapstructure:"profile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.bucket_name", "dental-knowledge")
	v.SetDefault("minio.knowledge_prefix", "articles/")

	v.SetDefault("services.embedding.timeout", "10s")
	v.SetDefault("services.llm.model", "glm-4")
	v.SetDefault("services.llm.timeout", "60s")

	v.SetDefault("retrieval.similarity_threshold", 0.3)
	v.SetDefault("retrieval.max_candidates", 200)
	v.SetDefault("retrieval.knowledge_limit", 3)
	v.SetDefault("retrieval.embedding_batch_size", 32)

	v.SetDefault("recommendation.min_behaviors", 20)
	v.SetDefault("recommendation.cf_weight", 0.4)
	v.SetDefault("recommendation.cb_weight", 0.4)
	v.SetDefault("recommendation.base_weight", 0.2)
	v.SetDefault("recommendation.similar_users", 20)
	v.SetDefault("recommendation.min_similarity", 0.1)

	v.SetDefault("dialogue.doctor_limit", 3)
	v.SetDefault("dialogue.dedup_window", 20)
	v.SetDefault("dialogue.history_limit", 10)

	v.SetDefault("profile.refresh_interval", "1h")
}

// LoadConfig reads config.yaml from path. A missing file is not an error:
// defaults and environment variables (DATABASE_HOST, SERVICES_LLM_API_KEY, ...)
// still apply.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	r := c.Recommendation
	if r.CFWeight < 0 || r.CBWeight < 0 || r.BaseWeight < 0 {
		return ErrInvalidWeights
	}
	if sum := r.CFWeight + r.CBWeight + r.BaseWeight; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidWeights, sum)
	}
	if t := c.Retrieval.SimilarityThreshold; t < -1 || t > 1 {
		return ErrInvalidThreshold
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Database.Driver)
	}
	return nil
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}
