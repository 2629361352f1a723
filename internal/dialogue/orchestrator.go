// Package dialogue runs one chat turn end to end: intent extraction,
// knowledge retrieval, doctor recommendation, answer generation,
// reconciliation and persistence.
//
// Every stage that depends on an external service degrades to a fallback
// value, so a turn with a non-empty message always completes.
package dialogue

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/clients/openai"
	"github.com/hsn0918/dentalrag/internal/intent"
	"github.com/hsn0918/dentalrag/internal/knowledge"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/prompts"
	"github.com/hsn0918/dentalrag/internal/ranking"
	"github.com/hsn0918/dentalrag/internal/recommend"
)

var ErrEmptyMessage = errors.New("message is empty")

const (
	DefaultKnowledgeLimit = 3
	DefaultDedupWindow    = 20
	DefaultHistoryLimit   = 10
	DefaultAnswerTimeout  = 60 * time.Second

	answerTemperature = 0.3

	// CannedAnswer is returned when answer generation fails.
	CannedAnswer = "抱歉，智能助手暂时无法生成详细回答。根据您的描述，建议您尽快到正规医院的口腔科就诊，由医生面诊后给出专业建议。"
)

type State string

const (
	StateReceived            State = "received"
	StateIntentExtracted     State = "intent_extracted"
	StateKnowledgeRetrieved  State = "knowledge_retrieved"
	StateDoctorsCandidated   State = "doctors_candidated"
	StateDoctorsDeduplicated State = "doctors_deduplicated"
	StateAnswerGenerated     State = "answer_generated"
	StateAnswerReconciled    State = "answer_reconciled"
	StatePersisted           State = "persisted"
)

// Step records one state transition of a turn.
type Step struct {
	State    State         `json:"state"`
	Duration time.Duration `json:"duration"`
	Degraded bool          `json:"degraded,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

type TurnResult struct {
	AnswerText         string                `json:"answer_text"`
	RecommendedDoctors []model.DoctorSummary `json:"recommended_doctors"`
	PriorityLevel      model.PriorityLevel   `json:"priority_level"`
	Intent             model.Intent          `json:"intent"`
	KnowledgeMode      knowledge.Mode        `json:"knowledge_mode"`
	Strategy           recommend.Strategy    `json:"strategy"`
	LogID              int64                 `json:"log_id,omitempty"`
	Trace              []Step                `json:"trace"`
}

// Degraded reports whether any stage fell back.
func (r *TurnResult) Degraded() bool {
	for _, s := range r.Trace {
		if s.Degraded {
			return true
		}
	}
	return false
}

type IntentExtractor interface {
	Extract(ctx context.Context, question string, hints model.DemographicHints) intent.Result
}

type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, question string, limit int, preferVector bool) (knowledge.Result, error)
}

type DoctorRecommender interface {
	Recommend(ctx context.Context, userID int64, intent model.Intent, question string, articles []model.KnowledgeArticle, limit int) (recommend.Outcome, error)
}

type Store interface {
	adapters.RecommendationLogStore
	adapters.ChatStore
}

type Config struct {
	KnowledgeLimit int
	DoctorLimit    int
	DedupWindow    int
	HistoryLimit   int
	AnswerTimeout  time.Duration
	// VectorSearch lets retrieval try embeddings before keyword matching.
	VectorSearch bool
}

func (c Config) withDefaults() Config {
	if c.KnowledgeLimit <= 0 {
		c.KnowledgeLimit = DefaultKnowledgeLimit
	}
	if c.DoctorLimit <= 0 {
		c.DoctorLimit = ranking.DefaultLimit
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = DefaultAnswerTimeout
	}
	return c
}

type Orchestrator struct {
	extractor   IntentExtractor
	retriever   KnowledgeRetriever
	recommender DoctorRecommender
	llm         openai.Completer
	prompts     *prompts.PromptManager
	store       Store
	cfg         Config
	now         func() time.Time
}

func NewOrchestrator(
	extractor IntentExtractor,
	retriever KnowledgeRetriever,
	recommender DoctorRecommender,
	llm openai.Completer,
	pm *prompts.PromptManager,
	store Store,
	cfg Config,
) *Orchestrator {
	if pm == nil {
		pm = prompts.NewPromptManager()
	}
	return &Orchestrator{
		extractor:   extractor,
		retriever:   retriever,
		recommender: recommender,
		llm:         llm,
		prompts:     pm,
		store:       store,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
	}
}

// turn carries the intermediate values of one HandleTurn call.
type turn struct {
	userID     int64
	message    string
	hints      model.DemographicHints
	intent     model.Intent
	articles   []model.KnowledgeArticle
	candidates []model.DoctorSummary
	history    []model.ChatMessage
	answer     string
	answered   bool
	result     *TurnResult
}

// HandleTurn runs the pipeline for one user message. The only error is
// ErrEmptyMessage; every other failure degrades and is recorded in Trace.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID int64, message string, hints model.DemographicHints) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()
	t := &turn{
		userID:  userID,
		message: message,
		hints:   hints,
		result:  &TurnResult{Trace: []Step{{State: StateReceived}}},
	}

	stages := []struct {
		state State
		run   func(context.Context, *turn) (degraded bool, reason string)
	}{
		{StateIntentExtracted, o.extractIntent},
		{StateKnowledgeRetrieved, o.retrieveKnowledge},
		{StateDoctorsCandidated, o.candidateDoctors},
		{StateDoctorsDeduplicated, o.deduplicate},
		{StateAnswerGenerated, o.generateAnswer},
		{StateAnswerReconciled, o.reconcile},
		{StatePersisted, o.persist},
	}
	log := logger.GetLogger().With(zap.Int64("user_id", userID))
	for _, stage := range stages {
		stepStart := time.Now()
		degraded, reason := stage.run(ctx, t)
		step := Step{State: stage.state, Duration: time.Since(stepStart), Degraded: degraded, Reason: reason}
		t.result.Trace = append(t.result.Trace, step)
		if degraded {
			log.Warn("对话阶段降级",
				zap.String("state", string(stage.state)),
				zap.String("reason", reason),
				zap.Duration("duration", step.Duration))
		}
	}

	t.result.Intent = t.intent
	t.result.PriorityLevel = t.intent.PriorityLevel
	t.result.AnswerText = t.answer
	if t.result.RecommendedDoctors == nil {
		t.result.RecommendedDoctors = []model.DoctorSummary{}
	}
	log.Info("对话处理完成",
		zap.String("priority", string(t.intent.PriorityLevel)),
		zap.String("knowledge_mode", string(t.result.KnowledgeMode)),
		zap.String("strategy", string(t.result.Strategy)),
		zap.Int("recommended", len(t.result.RecommendedDoctors)),
		zap.Bool("degraded", t.result.Degraded()),
		zap.Duration("duration", time.Since(start)))
	return t.result, nil
}

func (o *Orchestrator) extractIntent(ctx context.Context, t *turn) (bool, string) {
	res := o.extractor.Extract(ctx, t.message, t.hints)
	t.intent = res.Intent
	return res.Fallback, res.Reason
}

func (o *Orchestrator) retrieveKnowledge(ctx context.Context, t *turn) (bool, string) {
	res, err := o.retriever.Retrieve(ctx, t.message, o.cfg.KnowledgeLimit, o.cfg.VectorSearch)
	if err != nil {
		logger.GetLogger().Error("知识检索失败", zap.Error(err))
		t.result.KnowledgeMode = knowledge.ModeNone
		return true, "retrieval_failed"
	}
	t.articles = res.Articles
	t.result.KnowledgeMode = res.Mode
	// 关键词检索本身不是降级，只有主动尝试向量检索失败才算
	if o.cfg.VectorSearch && res.Mode == knowledge.ModeLexical {
		return true, res.FallbackReason
	}
	return false, ""
}

func (o *Orchestrator) candidateDoctors(ctx context.Context, t *turn) (bool, string) {
	out, err := o.recommender.Recommend(ctx, t.userID, t.intent, t.message, t.articles, 2*o.cfg.DoctorLimit)
	if err != nil {
		logger.GetLogger().Error("医生推荐失败", zap.Error(err))
		return true, "recommendation_failed"
	}
	t.candidates = out.Doctors
	t.result.Strategy = out.Strategy
	return out.FallbackReason != "", out.FallbackReason
}

func (o *Orchestrator) deduplicate(ctx context.Context, t *turn) (bool, string) {
	logs, err := o.store.ListRecentRecommendationLogs(ctx, t.userID, o.cfg.DedupWindow)
	if err != nil {
		logger.GetLogger().Warn("读取推荐记录失败，跳过去重", zap.Error(err))
		t.candidates = limitDoctors(t.candidates, o.cfg.DoctorLimit)
		return true, "log_read_failed"
	}
	kept, removed, undone := Deduplicate(t.candidates, t.intent, logs)
	t.candidates = limitDoctors(kept, o.cfg.DoctorLimit)
	if undone {
		return false, "dedup_undone"
	}
	if removed > 0 {
		logger.GetLogger().Debug("已过滤重复推荐医生", zap.Int("removed", removed))
	}
	return false, ""
}

func (o *Orchestrator) generateAnswer(ctx context.Context, t *turn) (bool, string) {
	history, err := o.store.ListRecentMessages(ctx, t.userID, o.cfg.HistoryLimit)
	if err != nil {
		logger.GetLogger().Warn("读取对话历史失败", zap.Error(err))
	}
	t.history = history

	system, user, err := o.prompts.AnswerPrompt(prompts.AnswerInput{
		Question:  t.message,
		History:   t.history,
		Knowledge: t.articles,
		Doctors:   t.candidates,
		Hints:     t.hints,
		Now:       o.now(),
	})
	if err != nil {
		logger.GetLogger().Error("构建回答提示词失败", zap.Error(err))
		t.answer = CannedAnswer
		return true, "prompt_failed"
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.AnswerTimeout)
	defer cancel()
	answer, err := o.llm.Complete(ctx, user, system, answerTemperature)
	if err != nil || strings.TrimSpace(answer) == "" {
		logger.GetLogger().Warn("回答生成失败，使用兜底回答", zap.Error(err))
		t.answer = CannedAnswer
		return true, "llm_failed"
	}
	t.answer = strings.TrimSpace(answer)
	t.answered = true
	return false, ""
}

func (o *Orchestrator) reconcile(_ context.Context, t *turn) (bool, string) {
	if !t.answered {
		t.result.RecommendedDoctors = nil
		return false, ReconcileNoAnswer
	}
	doctors, reason := Reconcile(t.answer, t.candidates)
	t.result.RecommendedDoctors = doctors
	if reason == ReconcileMatched {
		return false, ""
	}
	return false, reason
}

// persist is best effort: failures are logged and the turn still returns.
func (o *Orchestrator) persist(ctx context.Context, t *turn) (bool, string) {
	log := logger.GetLogger().With(zap.Int64("user_id", t.userID))
	now := o.now()
	failed := false

	if _, err := o.store.AppendMessage(ctx, model.ChatMessage{UserID: t.userID, Role: model.RoleUser, Content: t.message, CreatedAt: now}); err != nil {
		log.Error("保存用户消息失败", zap.Error(err))
		failed = true
	}
	if _, err := o.store.AppendMessage(ctx, model.ChatMessage{UserID: t.userID, Role: model.RoleAssistant, Content: t.answer, CreatedAt: now}); err != nil {
		log.Error("保存助手回复失败", zap.Error(err))
		failed = true
	}
	id, err := o.store.AppendRecommendationLog(ctx, model.RecommendationLogEntry{
		UserID:             t.userID,
		RawQuestion:        t.message,
		Intent:             t.intent,
		RecommendedDoctors: t.result.RecommendedDoctors,
		CreatedAt:          now,
	})
	if err != nil {
		log.Error("保存推荐记录失败", zap.Error(err))
		failed = true
	}
	t.result.LogID = id
	if failed {
		return true, "persist_failed"
	}
	return false, ""
}

func limitDoctors(doctors []model.DoctorSummary, limit int) []model.DoctorSummary {
	if len(doctors) > limit {
		return doctors[:limit]
	}
	return doctors
}
