// Package llm provides streaming model backends for the coaching chat.
package llm

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/goalgetter/goalgetter/internal/domain"
)

// EventType classifies one event from a model stream.
type EventType string

const (
	// EventChunk carries an incremental slice of assistant text.
	EventChunk EventType = "chunk"
	// EventToolCall carries one fully assembled tool invocation.
	EventToolCall EventType = "tool_call"
	// EventComplete ends a stream and carries usage totals.
	EventComplete EventType = "complete"
)

// StreamEvent is one event yielded while a model response is produced.
type StreamEvent struct {
	Type       EventType
	Content    string
	ToolID     string
	ToolName   string
	ToolInput  json.RawMessage
	TokensUsed int
	Model      string
}

// ToolDefinition describes one tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// StreamRequest is one streaming turn against a model backend.
type StreamRequest struct {
	SystemPrompt string
	Message      string
	History      []domain.ChatTurn
	Tools        []ToolDefinition
	Model        string
	MaxTokens    int
}

// SendRequest is one non-streaming completion, used for context extraction,
// summarization and welcome generation.
type SendRequest struct {
	SystemPrompt string
	Message      string
	Model        string
	MaxTokens    int
}

// SendResult is the outcome of a non-streaming completion.
type SendResult struct {
	Content    string
	TokensUsed int
	Model      string
}

// Provider is a streaming LLM backend.
type Provider interface {
	// Stream produces model events for one turn. The sequence always ends
	// with either an EventComplete event or a non-nil error.
	Stream(ctx context.Context, req StreamRequest) iter.Seq2[*StreamEvent, error]

	// Send runs a plain completion and returns the full text.
	Send(ctx context.Context, req SendRequest) (*SendResult, error)

	// Name identifies the backend ("anthropic" or "openai").
	Name() string

	// Configured reports whether the backend has credentials.
	Configured() bool
}
