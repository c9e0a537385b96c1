// internal/triage/llm.go
package triage

import "context"

// Provider is the interface for any chat-completion LLM backend.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a single system+user exchange.
// JSON asks the backend to force a JSON object reply.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// CompletionResponse is the raw reply text and the token usage reported by the backend.
type CompletionResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Usage is token accounting for one completion. Backends that only report a
// total leave Input and Output at zero.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Total returns TotalTokens if reported, else the sum of input and output.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.InputTokens + u.OutputTokens
}
