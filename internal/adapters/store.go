package adapters

import (
	"context"
	"errors"

	"github.com/hsn0918/dentalrag/internal/model"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// KnowledgeStore persists dental knowledge articles and their embeddings.
type KnowledgeStore interface {
	CountActive(ctx context.Context) (int, error)
	CountActiveEmbedded(ctx context.Context) (int, error)
	// ListEmbeddedCandidates returns active articles that have an embedding,
	// most recently updated first (updated_at desc, id desc), at most limit.
	ListEmbeddedCandidates(ctx context.Context, limit int) ([]model.KnowledgeArticle, error)
	// ListActive returns active articles in ascending id order.
	ListActive(ctx context.Context) ([]model.KnowledgeArticle, error)
	// ListForEmbedding selects articles for the batch embedding job: the given
	// ids when non-empty, otherwise every active article, or only the ones
	// without an embedding when onlyMissing is set.
	ListForEmbedding(ctx context.Context, ids []int64, onlyMissing bool) ([]model.KnowledgeArticle, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
	// UpsertArticle inserts or updates by title and reports whether the text changed.
	UpsertArticle(ctx context.Context, article model.KnowledgeArticle) (id int64, changed bool, err error)
}

type DoctorStore interface {
	// ListDoctors returns every doctor in ascending id order.
	ListDoctors(ctx context.Context) ([]model.Doctor, error)
	GetDoctors(ctx context.Context, ids []int64) (map[int64]model.Doctor, error)
}

type BehaviorStore interface {
	AppendBehavior(ctx context.Context, b model.UserBehavior) (int64, error)
	CountBehaviors(ctx context.Context, userID int64) (int, error)
	// ListDoctorBehaviors returns doctor-linked behaviors of one user, or of
	// every user when userID is 0, in ascending id order.
	ListDoctorBehaviors(ctx context.Context, userID int64) ([]model.UserBehavior, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID int64) (*model.UserProfile, error)
	SaveProfile(ctx context.Context, profile *model.UserProfile) error
}

type RecommendationLogStore interface {
	AppendRecommendationLog(ctx context.Context, entry model.RecommendationLogEntry) (int64, error)
	// ListRecentRecommendationLogs returns the newest entries first.
	ListRecentRecommendationLogs(ctx context.Context, userID int64, limit int) ([]model.RecommendationLogEntry, error)
}

type ChatStore interface {
	AppendMessage(ctx context.Context, msg model.ChatMessage) (int64, error)
	// ListRecentMessages returns up to limit messages in chronological order.
	ListRecentMessages(ctx context.Context, userID int64, limit int) ([]model.ChatMessage, error)
}

type AppointmentStore interface {
	// ListProfileAppointments returns a user's completed and upcoming appointments.
	ListProfileAppointments(ctx context.Context, userID int64) ([]model.Appointment, error)
	ListUsersWithAppointments(ctx context.Context) ([]int64, error)
}

// Store bundles every repository the service needs.
type Store interface {
	KnowledgeStore
	DoctorStore
	BehaviorStore
	ProfileStore
	RecommendationLogStore
	ChatStore
	AppointmentStore
	Close()
}
