package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExhausted is returned when a user has used up their token budget.
var ErrBudgetExhausted = errors.New("token budget exhausted")

// BudgetChecker checks and records token usage against per-user budgets.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining.
	Check(ctx context.Context, userID string) (bool, error)
	// Record records token usage for a user.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns current usage and budget for a user. A zero budget means unlimited.
	Usage(ctx context.Context, userID string) (used int64, budget int64, err error)
}

// InMemoryBudget is a simple in-memory budget tracker for development and tests.
type InMemoryBudget struct {
	mu       sync.RWMutex
	fallback int64            // budget for users without their own
	budgets  map[string]int64 // user -> budget limit
	usage    map[string]int64 // user -> tokens used
}

// NewInMemoryBudget creates a new in-memory budget tracker. defaultBudget
// applies to users without their own budget; zero means unlimited.
func NewInMemoryBudget(defaultBudget int64) *InMemoryBudget {
	return &InMemoryBudget{
		fallback: defaultBudget,
		budgets:  make(map[string]int64),
		usage:    make(map[string]int64),
	}
}

// SetBudget sets the token budget for a user.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[userID] = tokens
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	budget := b.limit(userID)
	if budget <= 0 {
		return true, nil
	}
	return b.usage[userID] < budget, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[userID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[userID], b.limit(userID), nil
}

func (b *InMemoryBudget) limit(userID string) int64 {
	if budget, ok := b.budgets[userID]; ok {
		return budget
	}
	return b.fallback
}

// RedisBudget tracks usage in Redis/Dragonfly so that every server instance
// shares one counter per user. Counters reset after window.
type RedisBudget struct {
	client redis.Cmdable
	budget int64
	window time.Duration
}

// NewRedisBudget creates a Redis-backed budget tracker. A zero budget means
// unlimited; a zero window keeps counters forever.
func NewRedisBudget(client redis.Cmdable, budget int64, window time.Duration) *RedisBudget {
	return &RedisBudget{client: client, budget: budget, window: window}
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.budget <= 0 {
		return true, nil
	}
	used, _, err := b.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	return used < b.budget, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	key := budgetKey(userID)
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	if b.window > 0 {
		pipe.ExpireNX(ctx, key, b.window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.client.Get(ctx, budgetKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, b.budget, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading token usage: %w", err)
	}
	return used, b.budget, nil
}

func budgetKey(userID string) string {
	return "budget:tokens:" + userID
}
