package store_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/store"
)

var testForm = learning.JobForm{
	CurrentJobTitle:  "Data Analyst",
	CurrentSeniority: "Junior",
	TargetJobTitle:   "Machine Learning Engineer",
	TargetSeniority:  "Senior",
	TargetIndustry:   "Fintech",
}

// runStoreTests exercises any Store implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("users", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u, err := s.CreateUser(ctx, "Ada", " Ada@Example.com ", "correct-horse", false)
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		if u.ID == "" || u.Email != "ada@example.com" {
			t.Errorf("CreateUser() = %+v", u)
		}
		if u.PasswordHash == "correct-horse" {
			t.Error("password stored in plain text")
		}

		if _, err := s.CreateUser(ctx, "Ada again", "ada@example.com", "another-pass", false); !errors.Is(err, store.ErrEmailTaken) {
			t.Errorf("duplicate CreateUser() error = %v, want ErrEmailTaken", err)
		}
		if _, err := s.CreateUser(ctx, "Short", "short@example.com", "abc", false); !errors.Is(err, store.ErrWeakPassword) {
			t.Errorf("short password CreateUser() error = %v, want ErrWeakPassword", err)
		}

		got, err := s.GetUser(ctx, u.ID)
		if err != nil || got.Email != u.Email {
			t.Errorf("GetUser() = %+v, %v", got, err)
		}
		if _, err := s.GetUser(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetUser(missing) error = %v, want ErrNotFound", err)
		}

		if _, err := s.Authenticate(ctx, "ADA@example.com", "correct-horse"); err != nil {
			t.Errorf("Authenticate() error = %v", err)
		}
		if _, err := s.Authenticate(ctx, "ada@example.com", "wrong-password"); !errors.Is(err, store.ErrInvalidCredentials) {
			t.Errorf("Authenticate(wrong password) error = %v", err)
		}
		if _, err := s.Authenticate(ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, store.ErrInvalidCredentials) {
			t.Errorf("Authenticate(unknown) error = %v", err)
		}
	})

	t.Run("paths", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := mustUser(t, s, "paths@example.com")

		p, err := s.CreatePath(ctx, u.ID, testForm)
		if err != nil {
			t.Fatalf("CreatePath() error = %v", err)
		}
		if p.ID == "" || p.Form != testForm || len(p.Topics) != 0 {
			t.Errorf("CreatePath() = %+v", p)
		}

		topics := []learning.AssessedTopic{
			{TopicID: "python_programming", Mastery: 60, ModulesComplete: "0/8", EstimatedHours: 12},
			{TopicID: "deep_learning", Mastery: 10, ModulesComplete: "0/8", EstimatedHours: 40},
		}
		if err := s.UpdatePathReadiness(ctx, p.ID, 35, topics); err != nil {
			t.Fatalf("UpdatePathReadiness() error = %v", err)
		}

		got, err := s.GetPath(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPath() error = %v", err)
		}
		if got.GlobalReadiness != 35 || len(got.Topics) != 2 || got.Topics[1].TopicID != "deep_learning" {
			t.Errorf("GetPath() = %+v", got)
		}
		if got.LastAccessed.Before(p.LastAccessed) {
			t.Error("GetPath() should not move last_accessed backwards")
		}

		list, err := s.ListPaths(ctx, u.ID)
		if err != nil || len(list) != 1 || list[0].ID != p.ID {
			t.Errorf("ListPaths() = %+v, %v", list, err)
		}

		if _, err := s.GetPath(ctx, "not-a-uuid"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetPath(bad id) error = %v, want ErrNotFound", err)
		}
		if err := s.UpdatePathReadiness(ctx, "00000000-0000-0000-0000-000000000000", 1, nil); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("UpdatePathReadiness(missing) error = %v, want ErrNotFound", err)
		}
		if _, err := s.CreatePath(ctx, "00000000-0000-0000-0000-000000000000", testForm); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("CreatePath(unknown user) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("skills", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := mustUser(t, s, "skills@example.com")
		now := time.Now()

		skills := []store.Skill{
			{UserID: u.ID, TopicID: "sql", Mastery: 90, ModulesComplete: "8/8", LastCompleted: now.Add(-24 * time.Hour)},
			{UserID: u.ID, TopicID: "statistics", Mastery: 85, ModulesComplete: "8/8", LastCompleted: now.Add(-60 * 24 * time.Hour)},
			{UserID: u.ID, TopicID: "python", Mastery: 40, ModulesComplete: "3/8", LastCompleted: now},
		}
		for _, sk := range skills {
			if err := s.UpsertSkill(ctx, sk); err != nil {
				t.Fatalf("UpsertSkill(%s) error = %v", sk.TopicID, err)
			}
		}

		recent, err := s.RecentlyMastered(ctx, u.ID, now.Add(-30*24*time.Hour))
		if err != nil {
			t.Fatalf("RecentlyMastered() error = %v", err)
		}
		if !reflect.DeepEqual(recent, []string{"sql"}) {
			t.Errorf("RecentlyMastered() = %v, want [sql]", recent)
		}

		// Upsert replaces the existing row.
		if err := s.UpsertSkill(ctx, store.Skill{UserID: u.ID, TopicID: "python", Mastery: 95, ModulesComplete: "8/8", LastCompleted: now}); err != nil {
			t.Fatalf("UpsertSkill() error = %v", err)
		}
		all, err := s.Skills(ctx, u.ID)
		if err != nil || len(all) != 3 {
			t.Fatalf("Skills() = %+v, %v", all, err)
		}
		if all[0].TopicID != "python" || all[0].Mastery != 95 {
			t.Errorf("Skills()[0] = %+v", all[0])
		}

		if err := s.UpsertSkill(ctx, store.Skill{UserID: u.ID, TopicID: "x", Mastery: 101}); err == nil {
			t.Error("UpsertSkill() should reject mastery above 100")
		}
		if err := s.UpsertSkill(ctx, store.Skill{UserID: u.ID, Mastery: 10}); err == nil {
			t.Error("UpsertSkill() should reject an empty topic")
		}
	})

	t.Run("modules", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := mustUser(t, s, "modules@example.com")
		other := mustUser(t, s, "other@example.com")
		p, err := s.CreatePath(ctx, u.ID, testForm)
		if err != nil {
			t.Fatalf("CreatePath() error = %v", err)
		}

		for _, m := range []int{3, 1, 3} {
			if err := s.CompleteModule(ctx, u.ID, p.ID, "sql", m); err != nil {
				t.Fatalf("CompleteModule(%d) error = %v", m, err)
			}
		}
		if err := s.CompleteModule(ctx, u.ID, p.ID, "sql", 9); err == nil {
			t.Error("CompleteModule() should reject module 9")
		}
		if err := s.CompleteModule(ctx, other.ID, p.ID, "sql", 2); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("CompleteModule(other user) error = %v, want ErrNotFound", err)
		}

		got, err := s.CompletedModules(ctx, u.ID, p.ID)
		if err != nil {
			t.Fatalf("CompletedModules() error = %v", err)
		}
		if !reflect.DeepEqual(got, map[string][]int{"sql": {1, 3}}) {
			t.Errorf("CompletedModules() = %v", got)
		}

		if err := s.RecordAnswer(ctx, store.Answer{
			UserID: u.ID, PathID: p.ID, TopicID: "sql", ModuleID: 1,
			QuestionID: "q1", UserAnswer: "B", Correct: true,
		}); err != nil {
			t.Errorf("RecordAnswer() error = %v", err)
		}
		if err := s.RecordAnswer(ctx, store.Answer{UserID: u.ID, PathID: p.ID, TopicID: "sql", ModuleID: 0}); err == nil {
			t.Error("RecordAnswer() should reject module 0")
		}
	})
}

func mustUser(t *testing.T, s store.Store, email string) store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), "Test User", email, "password123", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStore_Answers(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	u := mustUser(t, s, "answers@example.com")
	p, err := s.CreatePath(ctx, u.ID, testForm)
	if err != nil {
		t.Fatalf("CreatePath() error = %v", err)
	}

	if err := s.RecordAnswer(ctx, store.Answer{UserID: u.ID, PathID: p.ID, TopicID: "sql", ModuleID: 2, QuestionID: "q3", UserAnswer: "A"}); err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	answers := s.Answers()
	if len(answers) != 1 || answers[0].QuestionID != "q3" || answers[0].AnsweredAt.IsZero() {
		t.Errorf("Answers() = %+v", answers)
	}
	if err := s.RecordAnswer(ctx, store.Answer{PathID: "missing", ModuleID: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("RecordAnswer(missing path) error = %v, want ErrNotFound", err)
	}
}

func TestPathMastery(t *testing.T) {
	tests := []struct {
		name      string
		topics    []learning.AssessedTopic
		completed map[string][]int
		want      float64
	}{
		{"no topics", nil, nil, 0},
		{
			"nothing completed",
			[]learning.AssessedTopic{{TopicID: "a", Mastery: 20}, {TopicID: "b", Mastery: 50}},
			nil,
			35,
		},
		{
			"half the modules",
			[]learning.AssessedTopic{{TopicID: "a", Mastery: 20}},
			map[string][]int{"a": {1, 2, 3, 4}},
			60,
		},
		{
			"all modules reach 100",
			[]learning.AssessedTopic{{TopicID: "a", Mastery: 0}, {TopicID: "b", Mastery: 90}},
			map[string][]int{"a": {1, 2, 3, 4, 5, 6, 7, 8}, "b": {1, 2, 3, 4, 5, 6, 7, 8}},
			100,
		},
		{
			"truncated per topic then rounded",
			[]learning.AssessedTopic{{TopicID: "a", Mastery: 33}, {TopicID: "b", Mastery: 0}, {TopicID: "c", Mastery: 0}},
			map[string][]int{"a": {1}},
			13.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.PathMastery(tt.topics, tt.completed); got != tt.want {
				t.Errorf("PathMastery() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopicMastery(t *testing.T) {
	tests := []struct {
		initial, n int
		want       int
	}{
		{20, 0, 20},
		{20, 4, 60},
		{33, 1, 41},
		{0, 8, 100},
		{90, 9, 100},
		{100, 3, 100},
	}

	for _, tt := range tests {
		if got := store.TopicMastery(tt.initial, tt.n); got != tt.want {
			t.Errorf("TopicMastery(%d, %d) = %d, want %d", tt.initial, tt.n, got, tt.want)
		}
	}
}
