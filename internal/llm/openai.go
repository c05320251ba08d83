package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/goalgetter/goalgetter/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4o

// OpenAIProvider streams responses from the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	apiKey string
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI-backed provider. An empty model selects the
// default.
func NewOpenAI(apiKey, model string, logger *slog.Logger) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		apiKey: apiKey,
		model:  model,
		logger: logger,
	}
}

// Name identifies the backend.
func (p *OpenAIProvider) Name() string { return "openai" }

// Configured reports whether an API key is present.
func (p *OpenAIProvider) Configured() bool { return p.apiKey != "" }

// Stream produces model events for one turn. Tool call fragments are
// accumulated per index and emitted once the stream finishes.
func (p *OpenAIProvider) Stream(ctx context.Context, req StreamRequest) iter.Seq2[*StreamEvent, error] {
	return func(yield func(*StreamEvent, error) bool) {
		if !p.Configured() {
			yield(nil, fmt.Errorf("openai provider is not configured"))
			return
		}

		model := p.resolveModel(req.Model)
		chatReq := openai.ChatCompletionRequest{
			Model:     model,
			MaxTokens: req.MaxTokens,
			Messages:  buildOpenAIMessages(req.SystemPrompt, req.History, req.Message),
			Stream:    true,
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
		}
		for _, tool := range req.Tools {
			var params any
			if err := json.Unmarshal(tool.InputSchema, &params); err != nil {
				yield(nil, fmt.Errorf("decode tool schema for %s: %w", tool.Name, err))
				return
			}
			chatReq.Tools = append(chatReq.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  params,
				},
			})
		}

		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			yield(nil, fmt.Errorf("open openai stream: %w", err))
			return
		}
		defer stream.Close()

		type toolAccumulator struct {
			id   string
			name string
			args string
		}
		var (
			tools      []*toolAccumulator
			totalUsage int
		)

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, fmt.Errorf("read openai stream: %w", err))
				return
			}

			if chunk.Usage != nil {
				totalUsage = chunk.Usage.TotalTokens
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta

			if delta.Content != "" {
				if !yield(&StreamEvent{Type: EventChunk, Content: delta.Content}, nil) {
					return
				}
			}

			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				for len(tools) <= idx {
					tools = append(tools, &toolAccumulator{})
				}
				acc := tools[idx]
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args += tc.Function.Arguments
			}
		}

		for _, acc := range tools {
			if acc.name == "" {
				continue
			}
			input := acc.args
			if input == "" {
				input = "{}"
			}
			ev := &StreamEvent{
				Type:      EventToolCall,
				ToolID:    acc.id,
				ToolName:  acc.name,
				ToolInput: json.RawMessage(input),
			}
			if !yield(ev, nil) {
				return
			}
		}

		yield(&StreamEvent{
			Type:       EventComplete,
			TokensUsed: totalUsage,
			Model:      model,
		}, nil)
	}
}

// Send runs a plain non-streaming completion.
func (p *OpenAIProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("openai provider is not configured")
	}

	model := p.resolveModel(req.Model)
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
		Messages:  buildOpenAIMessages(req.SystemPrompt, nil, req.Message),
	})
	if err != nil {
		return nil, fmt.Errorf("call openai api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response contained no choices")
	}
	return &SendResult{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      model,
	}, nil
}

func (p *OpenAIProvider) resolveModel(override string) string {
	if override != "" {
		return override
	}
	return p.model
}

func buildOpenAIMessages(system string, history []domain.ChatTurn, message string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})
}
