package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/dialogue"
	"github.com/hsn0918/dentalrag/internal/embedder"
	"github.com/hsn0918/dentalrag/internal/knowledge"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/profile"
)

const ServiceName = "dentalrag.v1.TriageService"

const (
	ChatProcedure               = "/" + ServiceName + "/Chat"
	RecordBehaviorProcedure     = "/" + ServiceName + "/RecordBehavior"
	GenerateEmbeddingsProcedure = "/" + ServiceName + "/GenerateEmbeddings"
	UpdateUserProfileProcedure  = "/" + ServiceName + "/UpdateUserProfile"
)

// TriageServer 分诊服务的 RPC 实现
type TriageServer struct {
	orchestrator *dialogue.Orchestrator
	behaviors    adapters.BehaviorStore
	generator    *knowledge.EmbeddingGenerator
	profiles     *profile.Updater
}

func NewTriageServer(
	orchestrator *dialogue.Orchestrator,
	behaviors adapters.BehaviorStore,
	generator *knowledge.EmbeddingGenerator,
	profiles *profile.Updater,
) *TriageServer {
	return &TriageServer{
		orchestrator: orchestrator,
		behaviors:    behaviors,
		generator:    generator,
		profiles:     profiles,
	}
}

// Register 把所有 RPC 挂到 mux 上
func (s *TriageServer) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.Handle(ChatProcedure, connect.NewUnaryHandler(ChatProcedure, s.Chat, opts...))
	mux.Handle(RecordBehaviorProcedure, connect.NewUnaryHandler(RecordBehaviorProcedure, s.RecordBehavior, opts...))
	mux.Handle(GenerateEmbeddingsProcedure, connect.NewUnaryHandler(GenerateEmbeddingsProcedure, s.GenerateEmbeddings, opts...))
	mux.Handle(UpdateUserProfileProcedure, connect.NewUnaryHandler(UpdateUserProfileProcedure, s.UpdateUserProfile, opts...))
}

// Chat 处理一轮问诊对话
func (s *TriageServer) Chat(
	ctx context.Context,
	req *connect.Request[ChatRequest],
) (*connect.Response[ChatResponse], error) {
	result, err := s.orchestrator.HandleTurn(ctx, req.Msg.UserID, req.Msg.Message, req.Msg.Hints())
	if err != nil {
		if errors.Is(err, dialogue.ErrEmptyMessage) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to handle chat turn: %w", err))
	}
	return connect.NewResponse(&ChatResponse{TurnResult: *result}), nil
}

// RecordBehavior 记录用户行为，供协同过滤和内容推荐使用
func (s *TriageServer) RecordBehavior(
	ctx context.Context,
	req *connect.Request[RecordBehaviorRequest],
) (*connect.Response[RecordBehaviorResponse], error) {
	action := model.Action(req.Msg.Action)
	if !action.Valid() {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown action %q", req.Msg.Action))
	}
	score := model.DefaultBehaviorScore
	if req.Msg.Score != nil {
		score = *req.Msg.Score
	}
	id, err := s.behaviors.AppendBehavior(ctx, model.UserBehavior{
		UserID:   req.Msg.UserID,
		Action:   action,
		DoctorID: req.Msg.DoctorID,
		Context:  req.Msg.Context,
		Score:    score,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to record behavior: %w", err))
	}
	return connect.NewResponse(&RecordBehaviorResponse{ID: id}), nil
}

// GenerateEmbeddings 批量生成知识条目向量
func (s *TriageServer) GenerateEmbeddings(
	ctx context.Context,
	req *connect.Request[GenerateEmbeddingsRequest],
) (*connect.Response[GenerateEmbeddingsResponse], error) {
	report, err := s.generator.Generate(ctx, knowledge.GenerateRequest{
		ArticleIDs: req.Msg.ArticleIDs,
		All:        req.Msg.All,
	})
	if err != nil {
		if errors.Is(err, embedder.ErrUnavailable) {
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to generate embeddings: %w", err))
	}
	return connect.NewResponse(&GenerateEmbeddingsResponse{
		Selected:   report.Selected,
		Updated:    report.Updated,
		Failed:     nonNil(report.Failed),
		DurationMs: report.Duration.Milliseconds(),
	}), nil
}

// UpdateUserProfile 重新计算用户画像，一小时内已更新的会跳过（除非 force）
func (s *TriageServer) UpdateUserProfile(
	ctx context.Context,
	req *connect.Request[UpdateUserProfileRequest],
) (*connect.Response[UpdateUserProfileResponse], error) {
	if req.Msg.AllUsers {
		report, err := s.profiles.UpdateAll(ctx, req.Msg.Force)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to update profiles: %w", err))
		}
		return connect.NewResponse(&UpdateUserProfileResponse{
			Updated: report.Updated,
			Skipped: report.Skipped,
			Failed:  nonNil(report.Failed),
		}), nil
	}

	if req.Msg.UserID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("user_id is required unless all_users is set"))
	}
	res, err := s.profiles.UpdateUser(ctx, req.Msg.UserID, req.Msg.Force)
	if err != nil {
		logger.GetLogger().Error("更新用户画像失败", zap.Int64("user_id", req.Msg.UserID), zap.Error(err))
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to update profile: %w", err))
	}
	resp := &UpdateUserProfileResponse{Failed: []int64{}, Profile: res.Profile}
	if res.Skipped {
		resp.Skipped = 1
	} else {
		resp.Updated = 1
	}
	return connect.NewResponse(resp), nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
