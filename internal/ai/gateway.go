// Package ai provides a provider-agnostic completion gateway for the
// learning path agents.
package ai

import "context"

// TaskType names the agent call a completion serves. It is carried on
// requests for logging and budget attribution.
type TaskType int

const (
	TaskTopicExtraction TaskType = iota
	TaskAssessment
	TaskModuleNaming
	TaskReframing
	TaskContent
)

func (t TaskType) String() string {
	switch t {
	case TaskTopicExtraction:
		return "topic_extraction"
	case TaskAssessment:
		return "assessment"
	case TaskModuleNaming:
		return "module_naming"
	case TaskReframing:
		return "reframing"
	case TaskContent:
		return "content"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}
