package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
)

type moduleKey struct {
	userID, pathID, topicID string
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	emails  map[string]string // email -> user ID
	paths   map[string]Path
	skills  map[string]map[string]Skill // user -> topic -> skill
	modules map[moduleKey][]int
	answers []Answer
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		emails:  make(map[string]string),
		paths:   make(map[string]Path),
		skills:  make(map[string]map[string]Skill),
		modules: make(map[moduleKey][]int),
		now:     time.Now,
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, name, email, password string, admin bool) (User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return User{}, err
	}
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[email]; taken {
		return User{}, ErrEmailTaken
	}
	u := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      admin,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.emails[email] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *MemoryStore) Authenticate(_ context.Context, email, password string) (User, error) {
	s.mu.RLock()
	id, ok := s.emails[normalizeEmail(email)]
	u := s.users[id]
	s.mu.RUnlock()

	if !ok || !checkPassword(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *MemoryStore) CreatePath(_ context.Context, userID string, form learning.JobForm) (Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return Path{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	now := s.now()
	p := Path{
		ID:           uuid.NewString(),
		UserID:       userID,
		Form:         form,
		Topics:       []learning.AssessedTopic{},
		CreatedAt:    now,
		LastAccessed: now,
	}
	s.paths[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetPath(_ context.Context, id string) (Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.paths[id]
	if !ok {
		return Path{}, fmt.Errorf("path %s: %w", id, ErrNotFound)
	}
	p.LastAccessed = s.now()
	s.paths[id] = p
	return p, nil
}

func (s *MemoryStore) ListPaths(_ context.Context, userID string) ([]Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Path
	for _, p := range s.paths {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	return out, nil
}

func (s *MemoryStore) UpdatePathReadiness(_ context.Context, pathID string, readiness float64, topics []learning.AssessedTopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.paths[pathID]
	if !ok {
		return fmt.Errorf("path %s: %w", pathID, ErrNotFound)
	}
	p.GlobalReadiness = readiness
	p.Topics = slices.Clone(topics)
	s.paths[pathID] = p
	return nil
}

func (s *MemoryStore) UpsertSkill(_ context.Context, skill Skill) error {
	if err := validateSkill(skill); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[skill.UserID]; !ok {
		return fmt.Errorf("user %s: %w", skill.UserID, ErrNotFound)
	}
	if skill.LastCompleted.IsZero() {
		skill.LastCompleted = s.now()
	}
	if s.skills[skill.UserID] == nil {
		s.skills[skill.UserID] = make(map[string]Skill)
	}
	s.skills[skill.UserID][skill.TopicID] = skill
	return nil
}

func (s *MemoryStore) Skills(_ context.Context, userID string) ([]Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Skill, 0, len(s.skills[userID]))
	for _, sk := range s.skills[userID] {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

func (s *MemoryStore) RecentlyMastered(_ context.Context, userID string, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, sk := range s.skills[userID] {
		if sk.Mastery >= MasteredThreshold && !sk.LastCompleted.Before(since) {
			out = append(out, sk.TopicID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CompleteModule(_ context.Context, userID, pathID, topicID string, moduleID int) error {
	if err := validateModule(moduleID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.paths[pathID]
	if !ok || p.UserID != userID {
		return fmt.Errorf("path %s: %w", pathID, ErrNotFound)
	}

	k := moduleKey{userID, pathID, topicID}
	if slices.Contains(s.modules[k], moduleID) {
		return nil
	}
	s.modules[k] = append(s.modules[k], moduleID)
	slices.Sort(s.modules[k])
	return nil
}

func (s *MemoryStore) CompletedModules(_ context.Context, userID, pathID string) (map[string][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]int)
	for k, mods := range s.modules {
		if k.userID == userID && k.pathID == pathID {
			out[k.topicID] = slices.Clone(mods)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordAnswer(_ context.Context, a Answer) error {
	if err := validateModule(a.ModuleID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paths[a.PathID]; !ok {
		return fmt.Errorf("path %s: %w", a.PathID, ErrNotFound)
	}
	if a.AnsweredAt.IsZero() {
		a.AnsweredAt = s.now()
	}
	s.answers = append(s.answers, a)
	return nil
}

// Answers returns every recorded answer.
func (s *MemoryStore) Answers() []Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.answers)
}
