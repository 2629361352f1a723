package dialogue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hsn0918/dentalrag/internal/dialogue"
	"github.com/hsn0918/dentalrag/internal/model"
)

func TestReconcile(t *testing.T) {
	candidates := []model.DoctorSummary{
		{ID: 1, Name: "张明"},
		{ID: 2, Name: "李华"},
		{ID: 3, Name: "王强医生"},
		{ID: 4, Name: "李医生"},
	}
	tests := []struct {
		name   string
		answer string
		want   []int64
		reason string
	}{
		{name: "first mention order", answer: "建议您找李华主任，或者张明医生。", want: []int64{2, 1}, reason: dialogue.ReconcileMatched},
		{name: "stored title swapped", answer: "可以挂王强教授的号。", want: []int64{3}, reason: dialogue.ReconcileMatched},
		{name: "recommend prefix", answer: "为您推荐张明。", want: []int64{1}, reason: dialogue.ReconcileMatched},
		{name: "single character surname with title", answer: "李主任擅长正畸。", want: []int64{4}, reason: dialogue.ReconcileMatched},
		{name: "bare surname is not a mention", answer: "李老师说要多刷牙。", reason: dialogue.ReconcileNoMention},
		{name: "negative phrasing", answer: "暂未找到合适医生，建议到口腔外科就诊。", reason: dialogue.ReconcileNegative},
		{name: "empty answer", answer: " ", reason: dialogue.ReconcileNoAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := dialogue.Reconcile(tt.answer, candidates)
			ids := make([]int64, 0, len(got))
			for _, d := range got {
				ids = append(ids, d.ID)
			}
			if tt.want == nil {
				assert.Empty(t, ids)
			} else {
				assert.Equal(t, tt.want, ids)
			}
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestDeduplicate(t *testing.T) {
	dept := "正畸科"
	current := model.Intent{DiseaseCategory: "正畸需求", RecommendedDepartment: &dept, PriorityLevel: model.PriorityNormal}
	other := model.Intent{DiseaseCategory: "龋齿", PriorityLevel: model.PriorityNormal}
	candidates := []model.DoctorSummary{{ID: 1}, {ID: 2}, {ID: 3}}

	logs := []model.RecommendationLogEntry{
		{Intent: current, RecommendedDoctors: []model.DoctorSummary{{ID: 1}}},
		{Intent: other, RecommendedDoctors: []model.DoctorSummary{{ID: 2}}},
	}
	kept, removed, undone := dialogue.Deduplicate(candidates, current, logs)
	assert.Equal(t, []model.DoctorSummary{{ID: 2}, {ID: 3}}, kept)
	assert.Equal(t, 1, removed)
	assert.False(t, undone)

	logs = append(logs, model.RecommendationLogEntry{Intent: current, RecommendedDoctors: []model.DoctorSummary{{ID: 2}, {ID: 3}}})
	kept, removed, undone = dialogue.Deduplicate(candidates, current, logs)
	assert.Equal(t, candidates, kept)
	assert.Equal(t, 3, removed)
	assert.True(t, undone)

	kept, _, undone = dialogue.Deduplicate(nil, current, logs)
	assert.Empty(t, kept)
	assert.False(t, undone)
}
