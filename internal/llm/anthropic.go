package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
	defaultClaudeModel  = "claude-sonnet-4-20250514"
)

// AnthropicProvider streams responses from the Anthropic Messages API over SSE.
type AnthropicProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropic creates an Anthropic-backed provider. An empty model selects
// the default.
func NewAnthropic(apiKey, model string, logger *slog.Logger) *AnthropicProvider {
	if model == "" {
		model = defaultClaudeModel
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: anthropicBaseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

// Name identifies the backend.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Configured reports whether an API key is present.
func (p *AnthropicProvider) Configured() bool { return p.apiKey != "" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`

	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`

	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`

	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stream produces model events for one turn.
func (p *AnthropicProvider) Stream(ctx context.Context, req StreamRequest) iter.Seq2[*StreamEvent, error] {
	return func(yield func(*StreamEvent, error) bool) {
		if !p.Configured() {
			yield(nil, fmt.Errorf("anthropic provider is not configured"))
			return
		}

		body := anthropicRequest{
			Model:     p.resolveModel(req.Model),
			MaxTokens: req.MaxTokens,
			System:    req.SystemPrompt,
			Messages:  buildAnthropicMessages(req.History, req.Message),
			Stream:    true,
		}
		for _, tool := range req.Tools {
			body.Tools = append(body.Tools, anthropicTool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}

		resp, err := p.post(ctx, body, true)
		if err != nil {
			yield(nil, err)
			return
		}
		defer closeBody(resp.Body)

		p.consumeStream(resp.Body, body.Model, yield)
	}
}

func (p *AnthropicProvider) consumeStream(r io.Reader, requestModel string, yield func(*StreamEvent, error) bool) {
	var (
		model       = requestModel
		inputTokens int
		outputTok   int

		toolID    string
		toolName  string
		toolInput strings.Builder
		inTool    bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(line[len("data: "):]), &event); err != nil {
			p.logger.Warn("Skipping malformed stream event", "error", err)
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message.Model != "" {
				model = event.Message.Model
			}
			inputTokens = event.Message.Usage.InputTokens

		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				inTool = true
				toolID = event.ContentBlock.ID
				toolName = event.ContentBlock.Name
				toolInput.Reset()
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					if !yield(&StreamEvent{Type: EventChunk, Content: event.Delta.Text}, nil) {
						return
					}
				}
			case "input_json_delta":
				toolInput.WriteString(event.Delta.PartialJSON)
			}

		case "content_block_stop":
			if inTool {
				input := toolInput.String()
				if input == "" {
					input = "{}"
				}
				ev := &StreamEvent{
					Type:      EventToolCall,
					ToolID:    toolID,
					ToolName:  toolName,
					ToolInput: json.RawMessage(input),
				}
				inTool = false
				if !yield(ev, nil) {
					return
				}
			}

		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				outputTok = event.Usage.OutputTokens
			}

		case "message_stop":
			yield(&StreamEvent{
				Type:       EventComplete,
				TokensUsed: inputTokens + outputTok,
				Model:      model,
			}, nil)
			return

		case "error":
			yield(nil, fmt.Errorf("anthropic stream error: %s: %s", event.Error.Type, event.Error.Message))
			return
		}
	}
	if err := scanner.Err(); err != nil {
		yield(nil, fmt.Errorf("read anthropic stream: %w", err))
		return
	}
	yield(nil, fmt.Errorf("anthropic stream ended without message_stop"))
}

// Send runs a plain non-streaming completion.
func (p *AnthropicProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("anthropic provider is not configured")
	}

	body := anthropicRequest{
		Model:     p.resolveModel(req.Model),
		MaxTokens: req.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Message}},
	}

	resp, err := p.post(ctx, body, false)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	var parsed struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &SendResult{
		Content:    text.String(),
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		Model:      parsed.Model,
	}, nil
}

func (p *AnthropicProvider) post(ctx context.Context, body anthropicRequest, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call anthropic api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		closeBody(resp.Body)
		return nil, fmt.Errorf("anthropic api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp, nil
}

func (p *AnthropicProvider) resolveModel(override string) string {
	if override != "" {
		return override
	}
	return p.model
}

func buildAnthropicMessages(history []domain.ChatTurn, message string) []anthropicMessage {
	messages := make([]anthropicMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, anthropicMessage{Role: string(turn.Role), Content: turn.Content})
	}
	return append(messages, anthropicMessage{Role: "user", Content: message})
}

func closeBody(body io.ReadCloser) {
	_ = body.Close()
}
