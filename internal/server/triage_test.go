package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/adapters/memory"
	"github.com/hsn0918/dentalrag/internal/dialogue"
	"github.com/hsn0918/dentalrag/internal/intent"
	"github.com/hsn0918/dentalrag/internal/knowledge"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/profile"
	"github.com/hsn0918/dentalrag/internal/ranking"
	"github.com/hsn0918/dentalrag/internal/recommend"
	"github.com/hsn0918/dentalrag/internal/server"
)

type stubLLM struct{}

func (stubLLM) Complete(_ context.Context, prompt, system string, _ float64) (string, error) {
	if system == "" {
		return `{"disease_category": "种植需求", "recommended_department": "种植科", "priority_level": "normal"}`, nil
	}
	if strings.Contains(prompt, "医生姓名：陈刚") {
		return "建议您到种植科就诊，推荐陈刚主任。", nil
	}
	return "建议到种植科就诊。", nil
}

type stubEncoder struct{}

func (stubEncoder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	s := memory.New()
	s.AddDoctor(model.Doctor{Name: "陈刚", Specialty: "种植科", Score: 4.8, Reviews: 30})
	s.AddArticle(model.KnowledgeArticle{Title: "种植牙", Content: "种植牙流程", Tags: "种植", IsActive: true})
	s.AddAppointment(model.Appointment{UserID: 7, DoctorID: 1, HospitalName: "市口腔医院", AppointmentTime: "10:00", Status: model.AppointmentCompleted})

	hybrid := recommend.NewHybrid(s,
		recommend.NewCollaborativeFilter(s, s, 0, 0),
		recommend.NewContentBased(s, s, s),
		ranking.NewRanker(s, nil),
		recommend.DefaultWeights, 0)
	orchestrator := dialogue.NewOrchestrator(
		intent.NewExtractor(stubLLM{}, nil, time.Second),
		knowledge.NewRetriever(s, nil),
		hybrid, stubLLM{}, nil, s, dialogue.Config{})

	triage := server.NewTriageServer(orchestrator, s,
		knowledge.NewEmbeddingGenerator(s, stubEncoder{}, 0),
		profile.NewUpdater(s, time.Hour))

	mux := http.NewServeMux()
	triage.Register(mux, server.HandlerOptions()...)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, s
}

func call[Req, Res any](t *testing.T, srv *httptest.Server, procedure string, req *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](srv.Client(), srv.URL+procedure, connect.WithCodec(server.SonicCodec{}))
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestChat(t *testing.T) {
	srv, s := newTestServer(t)

	resp, err := call[server.ChatRequest, server.ChatResponse](t, srv, server.ChatProcedure,
		&server.ChatRequest{UserID: 7, Message: "想种牙", Gender: "male"})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityNormal, resp.PriorityLevel)
	assert.Equal(t, "建议您到种植科就诊，推荐陈刚主任。", resp.AnswerText)
	require.Len(t, resp.RecommendedDoctors, 1)
	assert.Equal(t, "陈刚", resp.RecommendedDoctors[0].Name)
	assert.Len(t, resp.Trace, 8)

	logs, err := s.ListRecentRecommendationLogs(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := call[server.ChatRequest, server.ChatResponse](t, srv, server.ChatProcedure,
		&server.ChatRequest{UserID: 7, Message: "", Gender: "male"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[server.ChatRequest, server.ChatResponse](t, srv, server.ChatProcedure,
		&server.ChatRequest{UserID: 7, Message: "牙疼", Gender: "other"})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRecordBehavior(t *testing.T) {
	srv, s := newTestServer(t)
	doctor := int64(1)
	score := 0.5

	resp, err := call[server.RecordBehaviorRequest, server.RecordBehaviorResponse](t, srv, server.RecordBehaviorProcedure,
		&server.RecordBehaviorRequest{UserID: 7, Action: "click_doctor", DoctorID: &doctor, Score: &score})
	require.NoError(t, err)
	assert.Positive(t, resp.ID)

	behaviors, err := s.ListDoctorBehaviors(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, behaviors, 1)
	assert.InDelta(t, 0.5, behaviors[0].Score, 1e-9)

	_, err = call[server.RecordBehaviorRequest, server.RecordBehaviorResponse](t, srv, server.RecordBehaviorProcedure,
		&server.RecordBehaviorRequest{UserID: 7, Action: "like"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	negative := -1.0
	_, err = call[server.RecordBehaviorRequest, server.RecordBehaviorResponse](t, srv, server.RecordBehaviorProcedure,
		&server.RecordBehaviorRequest{UserID: 7, Action: "click_doctor", DoctorID: &doctor, Score: &negative})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRecordBehaviorDefaultScore(t *testing.T) {
	srv, s := newTestServer(t)
	doctor := int64(1)

	for _, user := range []int64{7, 8} {
		_, err := call[server.RecordBehaviorRequest, server.RecordBehaviorResponse](t, srv, server.RecordBehaviorProcedure,
			&server.RecordBehaviorRequest{UserID: user, Action: "make_appointment", DoctorID: &doctor})
		require.NoError(t, err)
	}

	behaviors, err := s.ListDoctorBehaviors(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, behaviors, 1)
	assert.InDelta(t, model.DefaultBehaviorScore, behaviors[0].Score, 1e-9)

	cf := recommend.NewCollaborativeFilter(s, s, 0, 0)
	sim, err := cf.Similarity(context.Background(), 7, 8)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestGenerateEmbeddings(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := call[server.GenerateEmbeddingsRequest, server.GenerateEmbeddingsResponse](t, srv, server.GenerateEmbeddingsProcedure,
		&server.GenerateEmbeddingsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Selected)
	assert.Equal(t, 1, resp.Updated)
	assert.Empty(t, resp.Failed)
}

func TestUpdateUserProfile(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := call[server.UpdateUserProfileRequest, server.UpdateUserProfileResponse](t, srv, server.UpdateUserProfileProcedure,
		&server.UpdateUserProfileRequest{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Updated)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, model.TimeMorning, resp.Profile.TimePreference)

	resp, err = call[server.UpdateUserProfileRequest, server.UpdateUserProfileResponse](t, srv, server.UpdateUserProfileProcedure,
		&server.UpdateUserProfileRequest{AllUsers: true})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Skipped)

	_, err = call[server.UpdateUserProfileRequest, server.UpdateUserProfileResponse](t, srv, server.UpdateUserProfileProcedure,
		&server.UpdateUserProfileRequest{})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
