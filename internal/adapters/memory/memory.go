// Package memory is an in-process implementation of adapters.Store, used
// by tests and by the "memory" database driver for local runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/model"
)

type Store struct {
	mu sync.RWMutex

	now func() time.Time

	articles     []model.KnowledgeArticle
	doctors      []model.Doctor
	behaviors    []model.UserBehavior
	profiles     map[int64]model.UserProfile
	logs         []model.RecommendationLogEntry
	messages     []model.ChatMessage
	appointments []model.Appointment

	nextID int64
}

var _ adapters.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:      time.Now,
		profiles: make(map[int64]model.UserProfile),
	}
}

// SetClock overrides the time source used for created/updated stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Close() {}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddArticle seeds an article, assigning an id when zero.
func (s *Store) AddArticle(a model.KnowledgeArticle) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	} else if a.ID > s.nextID {
		s.nextID = a.ID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.Embedding = slices.Clone(a.Embedding)
	s.articles = append(s.articles, a)
	sort.SliceStable(s.articles, func(i, j int) bool { return s.articles[i].ID < s.articles[j].ID })
	return a.ID
}

func (s *Store) AddDoctor(d model.Doctor) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.id()
	} else if d.ID > s.nextID {
		s.nextID = d.ID
	}
	s.doctors = append(s.doctors, d)
	sort.SliceStable(s.doctors, func(i, j int) bool { return s.doctors[i].ID < s.doctors[j].ID })
	return d.ID
}

func (s *Store) AddAppointment(a model.Appointment) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	}
	s.appointments = append(s.appointments, a)
	return a.ID
}

// Article returns a copy of one article, for assertions.
func (s *Store) Article(id int64) (model.KnowledgeArticle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.articles {
		if a.ID == id {
			a.Embedding = slices.Clone(a.Embedding)
			return a, true
		}
	}
	return model.KnowledgeArticle{}, false
}

func (s *Store) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.articles {
		if a.IsActive {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountActiveEmbedded(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.articles {
		if a.IsActive && a.Embedding != nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListEmbeddedCandidates(_ context.Context, limit int) ([]model.KnowledgeArticle, error) {
	s.mu.RLock()
	var out []model.KnowledgeArticle
	for _, a := range s.articles {
		if a.IsActive && a.Embedding != nil {
			a.Embedding = slices.Clone(a.Embedding)
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListActive(_ context.Context) ([]model.KnowledgeArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.KnowledgeArticle
	for _, a := range s.articles {
		if a.IsActive {
			a.Embedding = slices.Clone(a.Embedding)
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListForEmbedding(_ context.Context, ids []int64, onlyMissing bool) ([]model.KnowledgeArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.KnowledgeArticle
	for _, a := range s.articles {
		if !a.IsActive {
			continue
		}
		switch {
		case len(ids) > 0:
			if !slices.Contains(ids, a.ID) {
				continue
			}
		case onlyMissing:
			if a.Embedding != nil {
				continue
			}
		}
		a.Embedding = slices.Clone(a.Embedding)
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) UpdateEmbedding(_ context.Context, id int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.articles {
		if s.articles[i].ID == id {
			s.articles[i].Embedding = slices.Clone(embedding)
			return nil
		}
	}
	return adapters.ErrNotFound
}

func (s *Store) UpsertArticle(_ context.Context, article model.KnowledgeArticle) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range s.articles {
		a := &s.articles[i]
		if a.Title != article.Title {
			continue
		}
		changed := a.Content != article.Content || a.Tags != article.Tags || a.QuestionPattern != article.QuestionPattern
		if changed {
			a.Content = article.Content
			a.Tags = article.Tags
			a.QuestionPattern = article.QuestionPattern
			a.UpdatedAt = now
		}
		a.IsActive = true
		return a.ID, changed, nil
	}
	article.ID = s.id()
	article.IsActive = true
	article.Embedding = nil
	article.CreatedAt = now
	article.UpdatedAt = now
	s.articles = append(s.articles, article)
	return article.ID, true, nil
}

func (s *Store) ListDoctors(_ context.Context) ([]model.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.doctors), nil
}

func (s *Store) GetDoctors(_ context.Context, ids []int64) (map[int64]model.Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]model.Doctor, len(ids))
	for _, d := range s.doctors {
		if slices.Contains(ids, d.ID) {
			out[d.ID] = d
		}
	}
	return out, nil
}

func (s *Store) AppendBehavior(_ context.Context, b model.UserBehavior) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	b.Context = maps.Clone(b.Context)
	s.behaviors = append(s.behaviors, b)
	return b.ID, nil
}

func (s *Store) CountBehaviors(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.behaviors {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListDoctorBehaviors(_ context.Context, userID int64) ([]model.UserBehavior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.UserBehavior
	for _, b := range s.behaviors {
		if b.DoctorID == nil {
			continue
		}
		if userID != 0 && b.UserID != userID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, userID int64) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, adapters.ErrNotFound
	}
	p.SpecialtyPreference = maps.Clone(p.SpecialtyPreference)
	p.HospitalPreference = maps.Clone(p.HospitalPreference)
	p.DoctorFeaturePreference = maps.Clone(p.DoctorFeaturePreference)
	return &p, nil
}

func (s *Store) SaveProfile(_ context.Context, profile *model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *profile
	p.SpecialtyPreference = maps.Clone(p.SpecialtyPreference)
	p.HospitalPreference = maps.Clone(p.HospitalPreference)
	p.DoctorFeaturePreference = maps.Clone(p.DoctorFeaturePreference)
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	s.profiles[p.UserID] = p
	return nil
}

func (s *Store) AppendRecommendationLog(_ context.Context, entry model.RecommendationLogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.id()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.RecommendedDoctors = slices.Clone(entry.RecommendedDoctors)
	s.logs = append(s.logs, entry)
	return entry.ID, nil
}

func (s *Store) ListRecentRecommendationLogs(_ context.Context, userID int64, limit int) ([]model.RecommendationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RecommendationLogEntry
	for i := len(s.logs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.logs[i].UserID == userID {
			e := s.logs[i]
			e.RecommendedDoctors = slices.Clone(e.RecommendedDoctors)
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, msg model.ChatMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = s.id()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages = append(s.messages, msg)
	return msg.ID, nil
}

func (s *Store) ListRecentMessages(_ context.Context, userID int64, limit int) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ChatMessage
	for i := len(s.messages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.messages[i].UserID == userID {
			out = append(out, s.messages[i])
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) ListProfileAppointments(_ context.Context, userID int64) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.UserID != userID {
			continue
		}
		if a.Status == model.AppointmentCompleted || a.Status == model.AppointmentUpcoming {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListUsersWithAppointments(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, a := range s.appointments {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			out = append(out, a.UserID)
		}
	}
	slices.Sort(out)
	return out, nil
}
