package dialogue_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/adapters/memory"
	"github.com/hsn0918/dentalrag/internal/dialogue"
	"github.com/hsn0918/dentalrag/internal/intent"
	"github.com/hsn0918/dentalrag/internal/knowledge"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/ranking"
	"github.com/hsn0918/dentalrag/internal/recommend"
	"github.com/hsn0918/dentalrag/internal/specialty"
)

const orthoIntent = `{"disease_category": "正畸需求", "recommended_department": "正畸科", "priority_level": "normal"}`

var doctorNames = []string{"张明", "李华", "王强", "赵敏"}

// scriptedLLM answers intent prompts (no system prompt) and answer prompts
// separately. Answers name every doctor listed in the prompt.
type scriptedLLM struct {
	intent      string
	blockIntent bool
	answerErr   error
	answer      string
}

func (l *scriptedLLM) Complete(ctx context.Context, prompt, system string, _ float64) (string, error) {
	if system == "" {
		if l.blockIntent {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return l.intent, nil
	}
	if l.answerErr != nil {
		return "", l.answerErr
	}
	if l.answer != "" {
		return l.answer, nil
	}
	var named []string
	for _, n := range doctorNames {
		if strings.Contains(prompt, "医生姓名："+n) {
			named = append(named, n+"医生")
		}
	}
	return "根据您的描述，建议您到正畸科就诊，推荐" + strings.Join(named, "、") + "。", nil
}

func newOrchestrator(t *testing.T, llm *scriptedLLM) (*dialogue.Orchestrator, *memory.Store) {
	t.Helper()
	s := memory.New()
	for i, name := range doctorNames {
		s.AddDoctor(model.Doctor{Name: name, Specialty: "正畸科", Score: 4.9 - 0.1*float64(i), Reviews: 100})
	}
	hybrid := recommend.NewHybrid(s,
		recommend.NewCollaborativeFilter(s, s, 0, 0),
		recommend.NewContentBased(s, s, s),
		ranking.NewRanker(s, specialty.NewMapper()),
		recommend.DefaultWeights, 0)
	o := dialogue.NewOrchestrator(
		intent.NewExtractor(llm, nil, 20*time.Millisecond),
		knowledge.NewRetriever(s, nil),
		hybrid,
		llm,
		nil,
		s,
		dialogue.Config{},
	)
	return o, s
}

func names(doctors []model.DoctorSummary) []string {
	out := make([]string, len(doctors))
	for i, d := range doctors {
		out[i] = d.Name
	}
	return out
}

func TestHandleTurnRejectsEmptyMessage(t *testing.T) {
	o, _ := newOrchestrator(t, &scriptedLLM{intent: orthoIntent})
	_, err := o.HandleTurn(context.Background(), 1, "   ", model.DemographicHints{})
	assert.ErrorIs(t, err, dialogue.ErrEmptyMessage)
}

func TestHandleTurn(t *testing.T) {
	o, s := newOrchestrator(t, &scriptedLLM{intent: orthoIntent})
	ctx := context.Background()

	res, err := o.HandleTurn(ctx, 1, "牙齿不齐想矫正", model.DemographicHints{})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityNormal, res.PriorityLevel)
	assert.Equal(t, recommend.StrategyRuleBased, res.Strategy)
	assert.Equal(t, []string{"张明", "李华", "王强"}, names(res.RecommendedDoctors))
	assert.Contains(t, res.AnswerText, "张明医生")

	states := make([]dialogue.State, len(res.Trace))
	for i, step := range res.Trace {
		states[i] = step.State
	}
	assert.Equal(t, []dialogue.State{
		dialogue.StateReceived,
		dialogue.StateIntentExtracted,
		dialogue.StateKnowledgeRetrieved,
		dialogue.StateDoctorsCandidated,
		dialogue.StateDoctorsDeduplicated,
		dialogue.StateAnswerGenerated,
		dialogue.StateAnswerReconciled,
		dialogue.StatePersisted,
	}, states)

	logs, err := s.ListRecentRecommendationLogs(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "牙齿不齐想矫正", logs[0].RawQuestion)
	assert.Len(t, logs[0].RecommendedDoctors, 3)

	msgs, err := s.ListRecentMessages(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
}

func TestHandleTurnDeduplicatesSameIntent(t *testing.T) {
	o, _ := newOrchestrator(t, &scriptedLLM{intent: orthoIntent})
	ctx := context.Background()

	first, err := o.HandleTurn(ctx, 1, "牙齿不齐想矫正", model.DemographicHints{})
	require.NoError(t, err)
	assert.Equal(t, []string{"张明", "李华", "王强"}, names(first.RecommendedDoctors))

	second, err := o.HandleTurn(ctx, 1, "矫正牙齿找谁", model.DemographicHints{})
	require.NoError(t, err)
	assert.Equal(t, []string{"赵敏"}, names(second.RecommendedDoctors))

	// every candidate was already shown, so the removal is undone
	third, err := o.HandleTurn(ctx, 1, "还有别的正畸医生吗", model.DemographicHints{})
	require.NoError(t, err)
	assert.Equal(t, []string{"张明", "李华", "王强"}, names(third.RecommendedDoctors))
	assert.Equal(t, "dedup_undone", third.Trace[4].Reason)

	// other users are unaffected
	other, err := o.HandleTurn(ctx, 2, "牙齿不齐想矫正", model.DemographicHints{})
	require.NoError(t, err)
	assert.Equal(t, []string{"张明", "李华", "王强"}, names(other.RecommendedDoctors))
}

func TestHandleTurnIntentTimeout(t *testing.T) {
	o, s := newOrchestrator(t, &scriptedLLM{blockIntent: true})

	res, err := o.HandleTurn(context.Background(), 1, "牙疼", model.DemographicHints{})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityInfo, res.PriorityLevel)
	assert.Equal(t, model.UnknownCategory, res.Intent.DiseaseCategory)
	assert.NotEmpty(t, res.AnswerText)
	assert.True(t, res.Trace[1].Degraded)
	assert.True(t, res.Degraded())

	logs, err := s.ListRecentRecommendationLogs(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestHandleTurnAnswerFailure(t *testing.T) {
	o, s := newOrchestrator(t, &scriptedLLM{intent: orthoIntent, answerErr: errors.New("503")})

	res, err := o.HandleTurn(context.Background(), 1, "牙齿不齐想矫正", model.DemographicHints{})
	require.NoError(t, err)
	assert.Equal(t, dialogue.CannedAnswer, res.AnswerText)
	assert.Empty(t, res.RecommendedDoctors)
	assert.NotNil(t, res.RecommendedDoctors)

	logs, err := s.ListRecentRecommendationLogs(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].RecommendedDoctors)
}

func TestHandleTurnNegativeAnswer(t *testing.T) {
	o, _ := newOrchestrator(t, &scriptedLLM{intent: orthoIntent, answer: "暂未找到合适的医生，建议到正畸科就诊。"})

	res, err := o.HandleTurn(context.Background(), 1, "牙齿不齐想矫正", model.DemographicHints{})
	require.NoError(t, err)
	assert.Empty(t, res.RecommendedDoctors)
	assert.Equal(t, dialogue.ReconcileNegative, res.Trace[6].Reason)
}
