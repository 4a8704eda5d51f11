package ai

import (
	"context"
	"fmt"
	"log/slog"
)

// Completer turns a single prompt into text. It sends the prompt as one
// user message and charges the tokens used to the caller's budget.
type Completer struct {
	provider Provider
	budget   BudgetChecker
}

// NewCompleter creates a Completer. budget may be nil.
func NewCompleter(provider Provider, budget BudgetChecker) *Completer {
	return &Completer{provider: provider, budget: budget}
}

// Call describes one completion.
type Call struct {
	UserID      string
	Task        TaskType
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Complete returns the completion text and the total tokens it used.
func (c *Completer) Complete(ctx context.Context, call Call) (string, int, error) {
	if c.budget != nil && call.UserID != "" {
		ok, err := c.budget.Check(ctx, call.UserID)
		if err != nil {
			slog.Warn("budget check failed, allowing request", "user_id", call.UserID, "error", err)
		} else if !ok {
			return "", 0, ErrBudgetExhausted
		}
	}

	resp, err := c.provider.Complete(ctx, CompletionRequest{
		Messages:    []Message{{Role: "user", Content: call.Prompt}},
		MaxTokens:   call.MaxTokens,
		Temperature: call.Temperature,
		Task:        call.Task,
	})
	if err != nil {
		return "", 0, fmt.Errorf("%s completion: %w", call.Task, err)
	}

	tokens := resp.TotalTokens()
	if c.budget != nil && call.UserID != "" {
		if err := c.budget.Record(ctx, call.UserID, tokens); err != nil {
			slog.Warn("recording token usage failed", "user_id", call.UserID, "error", err)
		}
	}
	return resp.Content, tokens, nil
}
