package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
)

const dbTimeout = 5 * time.Second

// SQLSTATE codes the store maps to its own errors.
const (
	uniqueViolation           = "23505"
	foreignKeyViolation       = "23503"
	invalidTextRepresentation = "22P02"
)

// PostgresStore is a PostgreSQL-backed Store. The schema is created by
// database.Migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, name, email, password string, admin bool) (User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return User{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	u := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		IsAdmin:      admin,
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, email, password_hash, is_admin)
		 VALUES ($1::uuid, $2, $3, $4, $5)
		 RETURNING created_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.IsAdmin,
	).Scan(&u.CreatedAt)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	return s.userBy(ctx, `WHERE id = $1::uuid`, id)
}

func (s *PostgresStore) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.userBy(ctx, `WHERE email = $1`, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !checkPassword(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *PostgresStore) userBy(ctx context.Context, where string, arg any) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, email, password_hash, is_admin, created_at FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == invalidTextRepresentation {
		return User{}, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreatePath(ctx context.Context, userID string, form learning.JobForm) (Path, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p := Path{
		ID:     uuid.NewString(),
		UserID: userID,
		Form:   form,
		Topics: []learning.AssessedTopic{},
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO paths (id, user_id, current_job_title, current_description, current_seniority,
		                    target_job_title, target_description, target_seniority,
		                    target_company, target_industry)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, last_accessed`,
		p.ID, userID,
		form.CurrentJobTitle, form.CurrentDescription, form.CurrentSeniority,
		form.TargetJobTitle, form.TargetDescription, form.TargetSeniority,
		form.TargetCompany, form.TargetIndustry,
	).Scan(&p.CreatedAt, &p.LastAccessed)
	if err != nil {
		if code := pgCode(err); code == foreignKeyViolation || code == invalidTextRepresentation {
			return Path{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return Path{}, fmt.Errorf("create path: %w", err)
	}
	return p, nil
}

const pathColumns = `id::text, user_id::text, current_job_title, current_description, current_seniority,
	target_job_title, target_description, target_seniority, target_company, target_industry,
	topics, global_readiness, created_at, last_accessed`

func scanPath(row pgx.Row) (Path, error) {
	var p Path
	var topics []byte
	f := &p.Form
	err := row.Scan(&p.ID, &p.UserID,
		&f.CurrentJobTitle, &f.CurrentDescription, &f.CurrentSeniority,
		&f.TargetJobTitle, &f.TargetDescription, &f.TargetSeniority,
		&f.TargetCompany, &f.TargetIndustry,
		&topics, &p.GlobalReadiness, &p.CreatedAt, &p.LastAccessed,
	)
	if err != nil {
		return Path{}, err
	}
	if err := json.Unmarshal(topics, &p.Topics); err != nil {
		return Path{}, fmt.Errorf("decode topics of path %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *PostgresStore) GetPath(ctx context.Context, id string) (Path, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p, err := scanPath(s.pool.QueryRow(ctx,
		`UPDATE paths SET last_accessed = NOW()
		 WHERE id = $1::uuid
		 RETURNING `+pathColumns,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == invalidTextRepresentation {
		return Path{}, fmt.Errorf("path %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Path{}, fmt.Errorf("get path: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPaths(ctx context.Context, userID string) ([]Path, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+pathColumns+` FROM paths
		 WHERE user_id = $1::uuid
		 ORDER BY last_accessed DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	defer rows.Close()

	var out []Path
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, fmt.Errorf("list paths: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdatePathReadiness(ctx context.Context, pathID string, readiness float64, topics []learning.AssessedTopic) error {
	if topics == nil {
		topics = []learning.AssessedTopic{}
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE paths SET global_readiness = $2, topics = $3::jsonb
		 WHERE id = $1::uuid`,
		pathID, readiness, string(data),
	)
	if err != nil {
		return fmt.Errorf("update path readiness: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("path %s: %w", pathID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertSkill(ctx context.Context, skill Skill) error {
	if err := validateSkill(skill); err != nil {
		return err
	}
	if skill.ModulesComplete == "" {
		skill.ModulesComplete = fmt.Sprintf("0/%d", ModulesPerTopic)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var completed any
	if !skill.LastCompleted.IsZero() {
		completed = skill.LastCompleted
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_skills (user_id, topic_id, mastery_percent, modules_complete, last_completed)
		 VALUES ($1::uuid, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
		 ON CONFLICT (user_id, topic_id) DO UPDATE
		 SET mastery_percent = EXCLUDED.mastery_percent,
		     modules_complete = EXCLUDED.modules_complete,
		     last_completed = EXCLUDED.last_completed`,
		skill.UserID, skill.TopicID, skill.Mastery, skill.ModulesComplete, completed,
	)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return fmt.Errorf("user %s: %w", skill.UserID, ErrNotFound)
		}
		return fmt.Errorf("upsert skill: %w", err)
	}
	return nil
}

func (s *PostgresStore) Skills(ctx context.Context, userID string) ([]Skill, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id::text, topic_id, mastery_percent, modules_complete, last_completed
		 FROM user_skills
		 WHERE user_id = $1::uuid
		 ORDER BY topic_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	skills, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Skill, error) {
		var sk Skill
		err := row.Scan(&sk.UserID, &sk.TopicID, &sk.Mastery, &sk.ModulesComplete, &sk.LastCompleted)
		return sk, err
	})
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	return skills, nil
}

func (s *PostgresStore) RecentlyMastered(ctx context.Context, userID string, since time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT topic_id FROM user_skills
		 WHERE user_id = $1::uuid AND mastery_percent >= $2 AND last_completed >= $3
		 ORDER BY topic_id`,
		userID, MasteredThreshold, since,
	)
	if err != nil {
		return nil, fmt.Errorf("recent skills: %w", err)
	}
	topics, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("recent skills: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) CompleteModule(ctx context.Context, userID, pathID, topicID string, moduleID int) error {
	if err := validateModule(moduleID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_topic_modules (user_id, path_id, topic_id, module_id)
		 SELECT p.user_id, p.id, $3, $4
		 FROM paths p
		 WHERE p.id = $2::uuid AND p.user_id = $1::uuid
		 ON CONFLICT DO NOTHING`,
		userID, pathID, topicID, moduleID,
	)
	if err != nil {
		return fmt.Errorf("complete module: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM paths WHERE id = $2::uuid AND user_id = $1::uuid)`,
		userID, pathID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("complete module: %w", err)
	}
	if !exists {
		return fmt.Errorf("path %s: %w", pathID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CompletedModules(ctx context.Context, userID, pathID string) (map[string][]int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT topic_id, module_id FROM user_topic_modules
		 WHERE user_id = $1::uuid AND path_id = $2::uuid
		 ORDER BY topic_id, module_id`,
		userID, pathID,
	)
	if err != nil {
		return nil, fmt.Errorf("completed modules: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int)
	for rows.Next() {
		var topic string
		var module int
		if err := rows.Scan(&topic, &module); err != nil {
			return nil, fmt.Errorf("completed modules: %w", err)
		}
		out[topic] = append(out[topic], module)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordAnswer(ctx context.Context, a Answer) error {
	if err := validateModule(a.ModuleID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_answers (user_id, path_id, topic_id, module_id, question_id, user_answer, is_correct)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7)`,
		a.UserID, a.PathID, a.TopicID, a.ModuleID, a.QuestionID, a.UserAnswer, a.Correct,
	)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return fmt.Errorf("path %s: %w", a.PathID, ErrNotFound)
		}
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// pgCode returns the SQLSTATE of a PostgreSQL error, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
