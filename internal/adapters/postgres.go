package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
)

// PostgresStore 基于 PostgreSQL + pgvector 实现 Store。
// 医生、医院、预约表由宿主应用维护，这里只读；其余表在启动时创建。
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore 连接数据库，启用 vector 扩展并准备所需的表。
func NewPostgresStore(ctx context.Context, dsn string, dimensions int, maxConns int32) (*PostgresStore, error) {
	// vector 类型必须在注册编解码前存在，因此先用单连接初始化
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("无法连接到数据库: %w", err)
	}
	if _, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("无法启用 vector 扩展: %w", err)
	}
	conn.Close(ctx)
	logger.GetLogger().Info("pgvector 扩展已启用")

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析数据库连接串失败: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, c)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("创建连接池失败: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}
	logger.GetLogger().Info("成功连接到 PostgreSQL 数据库", zap.Int("dimensions", dimensions))

	for _, stmt := range schema(dimensions) {
		if _, err = pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("初始化表结构失败: %w", err)
		}
	}
	logger.GetLogger().Info("知识库、行为日志、推荐日志等表已准备就绪")

	return &PostgresStore{pool: pool}, nil
}

func schema(dimensions int) []string {
	return []string{
		fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS dental_knowledge_article (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		question_pattern TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '',
		embedding vector(%d),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_knowledge_updated ON dental_knowledge_article (updated_at DESC, id DESC);`,
		`
	CREATE TABLE IF NOT EXISTS ai_user_behavior (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		action VARCHAR(32) NOT NULL,
		doctor_id BIGINT,
		context JSONB NOT NULL DEFAULT '{}',
		score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`,
		`CREATE INDEX IF NOT EXISTS idx_behavior_user ON ai_user_behavior (user_id);`,
		`
	CREATE TABLE IF NOT EXISTS ai_user_profile (
		user_id BIGINT PRIMARY KEY,
		specialty_preference JSONB NOT NULL DEFAULT '{}',
		hospital_preference JSONB NOT NULL DEFAULT '{}',
		price_sensitivity DOUBLE PRECISION NOT NULL DEFAULT 0.5,
		time_preference VARCHAR(16),
		doctor_feature_preference JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`,
		`
	CREATE TABLE IF NOT EXISTS ai_recommendation_log (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		raw_question TEXT NOT NULL,
		structured_intent JSONB NOT NULL,
		recommended_doctors JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`,
		`CREATE INDEX IF NOT EXISTS idx_reclog_user ON ai_recommendation_log (user_id, id DESC);`,
		`
	CREATE TABLE IF NOT EXISTS ai_chat_message (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		role VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_user ON ai_chat_message (user_id, id DESC);`,
	}
}

func (s *PostgresStore) Close() { s.pool.Close() }

const articleColumns = `id, title, question_pattern, content, tags, embedding, is_active, created_at, updated_at`

func scanArticles(rows pgx.Rows) ([]model.KnowledgeArticle, error) {
	defer rows.Close()
	var out []model.KnowledgeArticle
	for rows.Next() {
		var (
			a   model.KnowledgeArticle
			vec *pgvector.Vector
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.QuestionPattern, &a.Content, &a.Tags, &vec, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("扫描知识条目失败: %w", err)
		}
		if vec != nil {
			a.Embedding = vec.Slice()
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历知识条目失败: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dental_knowledge_article WHERE is_active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计知识条目失败: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountActiveEmbedded(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM dental_knowledge_article WHERE is_active AND embedding IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计已向量化知识条目失败: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListEmbeddedCandidates(ctx context.Context, limit int) ([]model.KnowledgeArticle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+articleColumns+`
		FROM dental_knowledge_article
		WHERE is_active AND embedding IS NOT NULL
		ORDER BY updated_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询候选知识条目失败: %w", err)
	}
	return scanArticles(rows)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]model.KnowledgeArticle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+articleColumns+`
		FROM dental_knowledge_article
		WHERE is_active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("查询知识条目失败: %w", err)
	}
	return scanArticles(rows)
}

func (s *PostgresStore) ListForEmbedding(ctx context.Context, ids []int64, onlyMissing bool) ([]model.KnowledgeArticle, error) {
	query := `SELECT ` + articleColumns + ` FROM dental_knowledge_article WHERE is_active`
	var args []any
	switch {
	case len(ids) > 0:
		query += ` AND id = ANY($1)`
		args = append(args, ids)
	case onlyMissing:
		query += ` AND embedding IS NULL`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询待向量化知识条目失败: %w", err)
	}
	return scanArticles(rows)
}

func (s *PostgresStore) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	// updated_at 不变：向量再生成不算内容更新
	tag, err := s.pool.Exec(ctx,
		`UPDATE dental_knowledge_article SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("更新知识条目向量失败: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertArticle(ctx context.Context, a model.KnowledgeArticle) (int64, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		id                      int64
		content, tags, qpattern string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, content, tags, question_pattern
		FROM dental_knowledge_article WHERE title = $1
		ORDER BY id LIMIT 1 FOR UPDATE`, a.Title).Scan(&id, &content, &tags, &qpattern)

	changed := true
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO dental_knowledge_article (title, question_pattern, content, tags, is_active)
			VALUES ($1, $2, $3, $4, TRUE) RETURNING id`,
			a.Title, a.QuestionPattern, a.Content, a.Tags).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("插入知识条目失败: %w", err)
		}
	case err != nil:
		return 0, false, fmt.Errorf("查询知识条目失败: %w", err)
	default:
		changed = content != a.Content || tags != a.Tags || qpattern != a.QuestionPattern
		if changed {
			_, err = tx.Exec(ctx, `
				UPDATE dental_knowledge_article
				SET question_pattern = $1, content = $2, tags = $3, is_active = TRUE, updated_at = NOW()
				WHERE id = $4`, a.QuestionPattern, a.Content, a.Tags, id)
		} else {
			_, err = tx.Exec(ctx, `UPDATE dental_knowledge_article SET is_active = TRUE WHERE id = $1`, id)
		}
		if err != nil {
			return 0, false, fmt.Errorf("更新知识条目失败: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("提交事务失败: %w", err)
	}
	return id, changed, nil
}

const doctorQuery = `
	SELECT d.id, d.name, COALESCE(d.title, ''), COALESCE(d.specialty, ''),
		COALESCE(d.introduction, ''), COALESCE(d.experience, ''), COALESCE(h.name, ''),
		d.is_online, COALESCE(d.score, 0), COALESCE(d.reviews, 0)
	FROM doctors_doctor d
	LEFT JOIN hospital h ON h.id = d.hospital_id`

func scanDoctors(rows pgx.Rows) ([]model.Doctor, error) {
	defer rows.Close()
	var out []model.Doctor
	for rows.Next() {
		var d model.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Title, &d.Specialty, &d.Introduction, &d.Experience,
			&d.HospitalName, &d.IsOnline, &d.Score, &d.Reviews); err != nil {
			return nil, fmt.Errorf("扫描医生信息失败: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历医生信息失败: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	rows, err := s.pool.Query(ctx, doctorQuery+` ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("查询医生列表失败: %w", err)
	}
	return scanDoctors(rows)
}

func (s *PostgresStore) GetDoctors(ctx context.Context, ids []int64) (map[int64]model.Doctor, error) {
	if len(ids) == 0 {
		return map[int64]model.Doctor{}, nil
	}
	rows, err := s.pool.Query(ctx, doctorQuery+` WHERE d.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("查询医生失败: %w", err)
	}
	doctors, err := scanDoctors(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]model.Doctor, len(doctors))
	for _, d := range doctors {
		out[d.ID] = d
	}
	return out, nil
}

func (s *PostgresStore) AppendBehavior(ctx context.Context, b model.UserBehavior) (int64, error) {
	contextJSON, err := sonic.MarshalString(b.Context)
	if err != nil {
		return 0, fmt.Errorf("序列化行为上下文失败: %w", err)
	}
	if b.Context == nil {
		contextJSON = "{}"
	}
	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO ai_user_behavior (user_id, action, doctor_id, context, score)
		VALUES ($1, $2, $3, $4::jsonb, $5) RETURNING id`,
		b.UserID, string(b.Action), b.DoctorID, contextJSON, b.Score).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("记录用户行为失败: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) CountBehaviors(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ai_user_behavior WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计用户行为失败: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListDoctorBehaviors(ctx context.Context, userID int64) ([]model.UserBehavior, error) {
	query := `
		SELECT id, user_id, action, doctor_id, context, score, created_at
		FROM ai_user_behavior
		WHERE doctor_id IS NOT NULL`
	var args []any
	if userID != 0 {
		query += ` AND user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询用户行为失败: %w", err)
	}
	defer rows.Close()

	var out []model.UserBehavior
	for rows.Next() {
		var (
			b           model.UserBehavior
			action      string
			contextJSON []byte
		)
		if err := rows.Scan(&b.ID, &b.UserID, &action, &b.DoctorID, &contextJSON, &b.Score, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描用户行为失败: %w", err)
		}
		b.Action = model.Action(action)
		if len(contextJSON) > 0 {
			if err := sonic.Unmarshal(contextJSON, &b.Context); err != nil {
				logger.GetLogger().Warn("解析行为上下文失败", zap.Int64("behavior_id", b.ID), zap.Error(err))
			}
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历用户行为失败: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	var (
		p                            model.UserProfile
		specialty, hospital, feature []byte
		timePref                     *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, specialty_preference, hospital_preference, price_sensitivity,
			time_preference, doctor_feature_preference, updated_at
		FROM ai_user_profile WHERE user_id = $1`, userID).
		Scan(&p.UserID, &specialty, &hospital, &p.PriceSensitivity, &timePref, &feature, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户画像失败: %w", err)
	}
	if timePref != nil {
		p.TimePreference = *timePref
	}
	for _, f := range []struct {
		raw  []byte
		dest *map[string]float64
	}{
		{specialty, &p.SpecialtyPreference},
		{hospital, &p.HospitalPreference},
		{feature, &p.DoctorFeaturePreference},
	} {
		if err := sonic.Unmarshal(f.raw, f.dest); err != nil {
			return nil, fmt.Errorf("解析用户画像失败: %w", err)
		}
	}
	return &p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p *model.UserProfile) error {
	specialty, err := sonic.MarshalString(nonNilMap(p.SpecialtyPreference))
	if err != nil {
		return fmt.Errorf("序列化专科偏好失败: %w", err)
	}
	hospital, err := sonic.MarshalString(nonNilMap(p.HospitalPreference))
	if err != nil {
		return fmt.Errorf("序列化医院偏好失败: %w", err)
	}
	feature, err := sonic.MarshalString(nonNilMap(p.DoctorFeaturePreference))
	if err != nil {
		return fmt.Errorf("序列化医生特征偏好失败: %w", err)
	}
	var timePref *string
	if p.TimePreference != "" {
		timePref = &p.TimePreference
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ai_user_profile (user_id, specialty_preference, hospital_preference,
			price_sensitivity, time_preference, doctor_feature_preference, updated_at)
		VALUES ($1, $2::jsonb, $3::jsonb, $4, $5, $6::jsonb, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			specialty_preference = EXCLUDED.specialty_preference,
			hospital_preference = EXCLUDED.hospital_preference,
			price_sensitivity = EXCLUDED.price_sensitivity,
			time_preference = EXCLUDED.time_preference,
			doctor_feature_preference = EXCLUDED.doctor_feature_preference,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, specialty, hospital, p.PriceSensitivity, timePref, feature, updatedAt)
	if err != nil {
		return fmt.Errorf("保存用户画像失败: %w", err)
	}
	return nil
}

func nonNilMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func (s *PostgresStore) AppendRecommendationLog(ctx context.Context, e model.RecommendationLogEntry) (int64, error) {
	intentJSON, err := sonic.MarshalString(e.Intent)
	if err != nil {
		return 0, fmt.Errorf("序列化意图失败: %w", err)
	}
	doctors := e.RecommendedDoctors
	if doctors == nil {
		doctors = []model.DoctorSummary{}
	}
	doctorsJSON, err := sonic.MarshalString(doctors)
	if err != nil {
		return 0, fmt.Errorf("序列化推荐医生失败: %w", err)
	}
	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO ai_recommendation_log (user_id, raw_question, structured_intent, recommended_doctors)
		VALUES ($1, $2, $3::jsonb, $4::jsonb) RETURNING id`,
		e.UserID, e.RawQuestion, intentJSON, doctorsJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("写入推荐日志失败: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListRecentRecommendationLogs(ctx context.Context, userID int64, limit int) ([]model.RecommendationLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, raw_question, structured_intent, recommended_doctors, created_at
		FROM ai_recommendation_log
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询推荐日志失败: %w", err)
	}
	defer rows.Close()

	var out []model.RecommendationLogEntry
	for rows.Next() {
		var (
			e                       model.RecommendationLogEntry
			intentJSON, doctorsJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.RawQuestion, &intentJSON, &doctorsJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描推荐日志失败: %w", err)
		}
		if err := sonic.Unmarshal(intentJSON, &e.Intent); err != nil {
			logger.GetLogger().Warn("解析推荐日志意图失败", zap.Int64("log_id", e.ID), zap.Error(err))
			continue
		}
		if err := sonic.Unmarshal(doctorsJSON, &e.RecommendedDoctors); err != nil {
			logger.GetLogger().Warn("解析推荐日志医生列表失败", zap.Int64("log_id", e.ID), zap.Error(err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历推荐日志失败: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg model.ChatMessage) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ai_chat_message (user_id, role, content) VALUES ($1, $2, $3) RETURNING id`,
		msg.UserID, msg.Role, msg.Content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("写入聊天记录失败: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListRecentMessages(ctx context.Context, userID int64, limit int) ([]model.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at
			FROM ai_chat_message WHERE user_id = $1
			ORDER BY id DESC LIMIT $2
		) recent ORDER BY id`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询聊天记录失败: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描聊天记录失败: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListProfileAppointments(ctx context.Context, userID int64) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.user_id, a.doctor_id, COALESCE(h.name, ''), COALESCE(a.appointment_time, ''), a.status
		FROM appointment a
		LEFT JOIN hospital h ON h.id = a.hospital_id
		WHERE a.user_id = $1 AND a.status IN ('completed', 'upcoming')
		ORDER BY a.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("查询预约记录失败: %w", err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var (
			a      model.Appointment
			status string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.DoctorID, &a.HospitalName, &a.AppointmentTime, &status); err != nil {
			return nil, fmt.Errorf("扫描预约记录失败: %w", err)
		}
		a.Status = model.AppointmentStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListUsersWithAppointments(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT user_id FROM appointment ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("查询预约用户失败: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("遍历预约用户失败: %w", err)
	}
	return ids, nil
}
