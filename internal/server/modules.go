package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/adapters/memory"
	"github.com/hsn0918/dentalrag/internal/clients/embedding"
	"github.com/hsn0918/dentalrag/internal/clients/openai"
	"github.com/hsn0918/dentalrag/internal/config"
	"github.com/hsn0918/dentalrag/internal/dialogue"
	"github.com/hsn0918/dentalrag/internal/embedder"
	"github.com/hsn0918/dentalrag/internal/intent"
	"github.com/hsn0918/dentalrag/internal/knowledge"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/middleware"
	"github.com/hsn0918/dentalrag/internal/profile"
	"github.com/hsn0918/dentalrag/internal/prompts"
	"github.com/hsn0918/dentalrag/internal/ranking"
	"github.com/hsn0918/dentalrag/internal/recommend"
	"github.com/hsn0918/dentalrag/internal/redis"
	"github.com/hsn0918/dentalrag/internal/specialty"
	"github.com/hsn0918/dentalrag/internal/storage"
)

// Module 是主要的FX依赖注入模块
var Module = fx.Options(
	InfrastructureModule,
	ClientsModule,
	ServicesModule,
	HTTPServerModule,
	fx.Invoke(StartHTTPServer),
)

// InfrastructureModule 基础设施模块 - 配置、日志、数据库、缓存
var InfrastructureModule = fx.Module("infrastructure",
	fx.Provide(
		NewAppConfig,
		NewAppLogger,
		NewStore,
		NewEmbeddingCache,
	),
)

// ClientsModule 客户端模块 - 外部服务客户端
var ClientsModule = fx.Module("clients",
	fx.Provide(
		NewEmbeddingClient,
		NewLLMClient,
	),
)

// ServicesModule 服务模块 - 业务逻辑服务
var ServicesModule = fx.Module("services",
	fx.Provide(
		NewEmbedder,
		NewEmbeddingGenerator,
		NewProfileUpdater,
		NewOrchestrator,
		provideTriageServer,
	),
)

// ImportModule 知识库导入，只有管理命令需要 MinIO
var ImportModule = fx.Module("import",
	fx.Provide(
		NewKnowledgeSource,
		NewKnowledgeImporter,
	),
)

// HTTPServerModule HTTP服务器模块
var HTTPServerModule = fx.Module("http_server",
	fx.Provide(
		NewHTTPHandler,
	),
)

// ================================
// 基础设施构造函数
// ================================

// NewAppConfig 创建应用配置
func NewAppConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// NewAppLogger 创建应用日志器
func NewAppLogger(cfg config.Config) (*zap.Logger, error) {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.GetLogger(), nil
}

func embeddingDimensions(cfg config.Config) int {
	if cfg.Services.Embedding.Dimensions > 0 {
		return cfg.Services.Embedding.Dimensions
	}
	return embedding.GetDefaultDimensions(cfg.Services.Embedding.Model)
}

// NewStore 根据 database.driver 创建存储
func NewStore(cfg config.Config, log *zap.Logger, lc fx.Lifecycle) (adapters.Store, error) {
	var store adapters.Store
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("使用内存存储，数据不会持久化")
		store = memory.New()
	default:
		dims := embeddingDimensions(cfg)
		log.Info("初始化数据库",
			zap.String("host", cfg.Database.Host),
			zap.Int("dimensions", dims))
		pg, err := adapters.NewPostgresStore(context.Background(), cfg.DSN(), dims, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		store = pg
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		store.Close()
		return nil
	}})
	return store, nil
}

// NewEmbeddingCache 创建向量缓存；未启用 Redis 时返回 nil
func NewEmbeddingCache(cfg config.Config, lc fx.Lifecycle) (embedder.Cache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client, err := redis.NewClientFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			client.Close()
			return nil
		},
	})
	return redis.NewCacheService(client), nil
}

// ================================
// 客户端构造函数
// ================================

func NewEmbeddingClient(cfg config.Config) *embedding.Client {
	return embedding.NewClient(cfg.Services.Embedding.ServiceConfig, embeddingDimensions(cfg))
}

func NewLLMClient(cfg config.Config) openai.Completer {
	return openai.NewClient(cfg.Services.LLM)
}

// ================================
// 服务构造函数
// ================================

func NewEmbedder(cfg config.Config, client *embedding.Client, cache embedder.Cache) *embedder.Service {
	opts := []embedder.Option{
		embedder.WithModel(cfg.Services.Embedding.Model),
		embedder.WithDimensions(embeddingDimensions(cfg)),
		embedder.WithTimeout(cfg.Services.Embedding.Timeout),
	}
	if cache != nil {
		opts = append(opts, embedder.WithCache(cache))
	}
	return embedder.New(client, opts...)
}

func NewEmbeddingGenerator(cfg config.Config, store adapters.Store, emb *embedder.Service) *knowledge.EmbeddingGenerator {
	return knowledge.NewEmbeddingGenerator(store, emb, cfg.Retrieval.EmbeddingBatchSize)
}

func NewProfileUpdater(cfg config.Config, store adapters.Store) *profile.Updater {
	return profile.NewUpdater(store, cfg.Profile.RefreshInterval)
}

// NewOrchestrator 组装检索、推荐和回答生成
func NewOrchestrator(cfg config.Config, store adapters.Store, emb *embedder.Service, llm openai.Completer) *dialogue.Orchestrator {
	pm := prompts.NewPromptManager()
	rc := cfg.Recommendation

	retriever := knowledge.NewRetriever(store, emb,
		knowledge.WithThreshold(cfg.Retrieval.SimilarityThreshold),
		knowledge.WithMaxCandidates(cfg.Retrieval.MaxCandidates),
	)
	hybrid := recommend.NewHybrid(store,
		recommend.NewCollaborativeFilter(store, store, rc.SimilarUsers, rc.MinSimilarity),
		recommend.NewContentBased(store, store, store),
		ranking.NewRanker(store, specialty.NewMapper()),
		recommend.Weights{CF: rc.CFWeight, CB: rc.CBWeight, Base: rc.BaseWeight},
		rc.MinBehaviors,
	)
	return dialogue.NewOrchestrator(
		intent.NewExtractor(llm, pm, cfg.Services.LLM.Timeout),
		retriever,
		hybrid,
		llm,
		pm,
		store,
		dialogue.Config{
			KnowledgeLimit: cfg.Retrieval.KnowledgeLimit,
			DoctorLimit:    cfg.Dialogue.DoctorLimit,
			DedupWindow:    cfg.Dialogue.DedupWindow,
			HistoryLimit:   cfg.Dialogue.HistoryLimit,
			AnswerTimeout:  cfg.Services.LLM.Timeout,
			VectorSearch:   true,
		},
	)
}

func provideTriageServer(o *dialogue.Orchestrator, store adapters.Store, g *knowledge.EmbeddingGenerator, p *profile.Updater) *TriageServer {
	return NewTriageServer(o, store, g, p)
}

func NewKnowledgeSource(cfg config.Config) (knowledge.ObjectSource, error) {
	if cfg.MinIO.Endpoint == "" {
		return nil, errors.New("minio.endpoint is not configured")
	}
	client, err := storage.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func NewKnowledgeImporter(source knowledge.ObjectSource, store adapters.Store, generator *knowledge.EmbeddingGenerator) *knowledge.Importer {
	return knowledge.NewImporter(source, store, generator)
}

// ================================
// HTTP服务器构造函数
// ================================

// HandlerOptions Connect RPC选项配置
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(SonicCodec{}),
		connect.WithInterceptors(
			middleware.RequestLogger(),
			middleware.HTTPValidator(),
		),
	}
}

// NewHTTPHandler 创建HTTP处理器
func NewHTTPHandler(triage *TriageServer, cfg config.Config, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	triage.Register(mux, HandlerOptions()...)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Info("HTTP服务器配置完成", zap.String("address", serverAddr))

	return &http.Server{
		Addr:    serverAddr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}
}

// ================================
// 生命周期管理
// ================================

// StartHTTPServer 启动HTTP服务器
func StartHTTPServer(httpServer *http.Server, lifecycle fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.Logger) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("启动HTTP服务器", zap.String("addr", httpServer.Addr))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP服务器启动失败", zap.Error(err))
					if shutdownErr := shutdowner.Shutdown(); shutdownErr != nil {
						log.Error("应用程序关闭失败", zap.Error(shutdownErr))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("停止HTTP服务器")
			return httpServer.Shutdown(ctx)
		},
	})
}
