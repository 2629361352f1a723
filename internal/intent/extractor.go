// Package intent turns a free-text dental complaint into a structured
// visit intent using the LLM.
package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/clients/openai"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/prompts"
)

const DefaultTimeout = 30 * time.Second

// 回退原因
const (
	ReasonPromptFailed = "prompt_failed"
	ReasonCallFailed   = "llm_call_failed"
	ReasonInvalidJSON  = "invalid_json"
)

// Result always carries a valid intent. Fallback is set when the default
// intent was substituted.
type Result struct {
	Intent   model.Intent
	Fallback bool
	Reason   string
}

type Extractor struct {
	llm     openai.Completer
	prompts *prompts.PromptManager
	timeout time.Duration
}

func NewExtractor(llm openai.Completer, pm *prompts.PromptManager, timeout time.Duration) *Extractor {
	if pm == nil {
		pm = prompts.NewPromptManager()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{llm: llm, prompts: pm, timeout: timeout}
}

// Extract never fails; call and parse failures resolve to model.DefaultIntent.
func (e *Extractor) Extract(ctx context.Context, question string, hints model.DemographicHints) Result {
	log := logger.GetLogger()

	prompt, err := e.prompts.IntentPrompt(question, hints)
	if err != nil {
		log.Error("构建意图提示词失败", zap.Error(err))
		return fallback(ReasonPromptFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.llm.Complete(ctx, prompt, "", 0)
	if err != nil {
		log.Warn("意图抽取调用失败，使用默认意图",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return fallback(ReasonCallFailed)
	}

	intent, err := Parse(raw)
	if err != nil {
		log.Warn("意图抽取结果不是合法 JSON，使用默认意图",
			zap.String("raw", raw),
			zap.Error(err))
		return fallback(ReasonInvalidJSON)
	}
	log.Debug("意图抽取完成",
		zap.String("disease_category", intent.DiseaseCategory),
		zap.String("department", intent.Department()),
		zap.String("priority", string(intent.PriorityLevel)),
		zap.Duration("duration", time.Since(start)))
	return Result{Intent: intent}
}

func fallback(reason string) Result {
	return Result{Intent: model.DefaultIntent(), Fallback: true, Reason: reason}
}

// Parse decodes the LLM output strictly as one JSON object and normalizes
// it: blank category becomes 未知, blank department becomes null and an
// unknown priority becomes info.
func Parse(raw string) (model.Intent, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return model.Intent{}, fmt.Errorf("not a json object")
	}
	var intent model.Intent
	if err := sonic.UnmarshalString(raw, &intent); err != nil {
		return model.Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	return Normalize(intent), nil
}

func Normalize(intent model.Intent) model.Intent {
	intent.DiseaseCategory = strings.TrimSpace(intent.DiseaseCategory)
	if intent.DiseaseCategory == "" {
		intent.DiseaseCategory = model.UnknownCategory
	}
	if dept := intent.Department(); dept == "" {
		intent.RecommendedDepartment = nil
	} else {
		intent.RecommendedDepartment = &dept
	}
	intent.PriorityLevel = model.PriorityLevel(strings.ToLower(strings.TrimSpace(string(intent.PriorityLevel))))
	if !intent.PriorityLevel.Valid() {
		intent.PriorityLevel = model.PriorityInfo
	}
	return intent
}
