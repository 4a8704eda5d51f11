// Package store persists users, learning paths and progress.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
)

// Errors returned by Store implementations.
var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// MasteredThreshold is the mastery at which a skill counts as mastered.
const MasteredThreshold = 80

// ModulesPerTopic is the number of modules every topic is split into.
const ModulesPerTopic = 8

// User is a registered learner.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Path is one generated learning path.
type Path struct {
	ID              string                   `json:"id"`
	UserID          string                   `json:"user_id"`
	Form            learning.JobForm         `json:"form"`
	Topics          []learning.AssessedTopic `json:"topics"`
	GlobalReadiness float64                  `json:"global_readiness"`
	CreatedAt       time.Time                `json:"created_at"`
	LastAccessed    time.Time                `json:"last_accessed"`
}

// Skill is a user's mastery of one topic across paths.
type Skill struct {
	UserID          string    `json:"user_id"`
	TopicID         string    `json:"topic_id"`
	Mastery         int       `json:"mastery"`
	ModulesComplete string    `json:"modules_complete"`
	LastCompleted   time.Time `json:"last_completed"`
}

// Answer is one recorded answer to a module question.
type Answer struct {
	UserID     string    `json:"user_id"`
	PathID     string    `json:"path_id"`
	TopicID    string    `json:"topic_id"`
	ModuleID   int       `json:"module_id"`
	QuestionID string    `json:"question_id"`
	UserAnswer string    `json:"user_answer"`
	Correct    bool      `json:"correct"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Store persists learning data.
type Store interface {
	CreateUser(ctx context.Context, name, email, password string, admin bool) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	Authenticate(ctx context.Context, email, password string) (User, error)

	CreatePath(ctx context.Context, userID string, form learning.JobForm) (Path, error)
	GetPath(ctx context.Context, id string) (Path, error)
	ListPaths(ctx context.Context, userID string) ([]Path, error)
	UpdatePathReadiness(ctx context.Context, pathID string, readiness float64, topics []learning.AssessedTopic) error

	UpsertSkill(ctx context.Context, skill Skill) error
	Skills(ctx context.Context, userID string) ([]Skill, error)
	RecentlyMastered(ctx context.Context, userID string, since time.Time) ([]string, error)

	CompleteModule(ctx context.Context, userID, pathID, topicID string, moduleID int) error
	CompletedModules(ctx context.Context, userID, pathID string) (map[string][]int, error)
	RecordAnswer(ctx context.Context, a Answer) error
}

// TopicMastery returns a topic's mastery after completing n of its modules.
// Each completed module closes 1/8 of the gap between the initial mastery
// and 100. The result is capped at 100.
func TopicMastery(initial, n int) int {
	perModule := float64(100-initial) / ModulesPerTopic
	return min(int(float64(initial)+float64(n)*perModule), 100)
}

// PathMastery returns the average TopicMastery of a path's topics.
func PathMastery(topics []learning.AssessedTopic, completed map[string][]int) float64 {
	if len(topics) == 0 {
		return 0
	}

	var sum int
	for _, t := range topics {
		sum += TopicMastery(t.Mastery, len(completed[t.TopicID]))
	}
	return roundTenth(float64(sum) / float64(len(topics)))
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func hashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateSkill(s Skill) error {
	if s.Mastery < 0 || s.Mastery > 100 {
		return fmt.Errorf("mastery must be 0-100, got %d", s.Mastery)
	}
	if s.TopicID == "" {
		return errors.New("topic_id is required")
	}
	return nil
}

func validateModule(moduleID int) error {
	if moduleID < 1 || moduleID > ModulesPerTopic {
		return fmt.Errorf("module_id must be 1-%d, got %d", ModulesPerTopic, moduleID)
	}
	return nil
}
