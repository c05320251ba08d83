package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NotEmpty(t, r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
		}
	}))
}

func TestAnthropicStreamTextAndUsage(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":10}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","usage":{"output_tokens":5}}`,
		`{"type":"message_stop"}`,
	})
	defer server.Close()

	p := NewAnthropic("test-key", "", slog.Default())
	p.baseURL = server.URL

	var events []*StreamEvent
	for event, err := range p.Stream(context.Background(), StreamRequest{Message: "hi", MaxTokens: 100}) {
		require.NoError(t, err)
		events = append(events, event)
	}

	require.Len(t, events, 3)
	require.Equal(t, EventChunk, events[0].Type)
	require.Equal(t, "Hello", events[0].Content)
	require.Equal(t, " there", events[1].Content)
	require.Equal(t, EventComplete, events[2].Type)
	require.Equal(t, 15, events[2].TokensUsed)
	require.Equal(t, "claude-test", events[2].Model)
}

func TestAnthropicStreamAssemblesToolCall(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":8}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"create_goal"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"title\":"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"Run\"}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","usage":{"output_tokens":4}}`,
		`{"type":"message_stop"}`,
	})
	defer server.Close()

	p := NewAnthropic("test-key", "", slog.Default())
	p.baseURL = server.URL

	var events []*StreamEvent
	for event, err := range p.Stream(context.Background(), StreamRequest{Message: "hi", MaxTokens: 100}) {
		require.NoError(t, err)
		events = append(events, event)
	}

	require.Len(t, events, 2)
	require.Equal(t, EventToolCall, events[0].Type)
	require.Equal(t, "toolu_1", events[0].ToolID)
	require.Equal(t, "create_goal", events[0].ToolName)
	require.JSONEq(t, `{"title":"Run"}`, string(events[0].ToolInput))
	require.Equal(t, EventComplete, events[1].Type)
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"error","error":{"type":"overloaded_error","message":"try later"}}`,
	})
	defer server.Close()

	p := NewAnthropic("test-key", "", slog.Default())
	p.baseURL = server.URL

	var streamErr error
	for _, err := range p.Stream(context.Background(), StreamRequest{Message: "hi"}) {
		if err != nil {
			streamErr = err
			break
		}
	}
	require.Error(t, streamErr)
	require.Contains(t, streamErr.Error(), "overloaded_error")
}

func TestAnthropicStreamTruncatedWithoutStop(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":2}}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`,
	})
	defer server.Close()

	p := NewAnthropic("test-key", "", slog.Default())
	p.baseURL = server.URL

	var sawChunk bool
	var streamErr error
	for event, err := range p.Stream(context.Background(), StreamRequest{Message: "hi"}) {
		if err != nil {
			streamErr = err
			break
		}
		if event.Type == EventChunk {
			sawChunk = true
		}
	}
	require.True(t, sawChunk)
	require.Error(t, streamErr)
}

func TestAnthropicUnconfigured(t *testing.T) {
	p := NewAnthropic("", "", slog.Default())
	require.False(t, p.Configured())

	var streamErr error
	for _, err := range p.Stream(context.Background(), StreamRequest{Message: "hi"}) {
		streamErr = err
		break
	}
	require.Error(t, streamErr)

	_, err := p.Send(context.Background(), SendRequest{Message: "hi"})
	require.Error(t, err)
}

func TestAnthropicSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"claude-test","content":[{"type":"text","text":"summary text"}],"usage":{"input_tokens":7,"output_tokens":3}}`)
	}))
	defer server.Close()

	p := NewAnthropic("test-key", "", slog.Default())
	p.baseURL = server.URL

	result, err := p.Send(context.Background(), SendRequest{Message: "summarize", MaxTokens: 200})
	require.NoError(t, err)
	require.Equal(t, "summary text", result.Content)
	require.Equal(t, 10, result.TokensUsed)
	require.Equal(t, "claude-test", result.Model)
}

func TestFactorySelection(t *testing.T) {
	f := NewFactory(FactoryConfig{
		AnthropicAPIKey: "key-a",
		DefaultProvider: "anthropic",
	}, slog.Default())

	p, err := f.ForUser("anthropic")
	require.NoError(t, err)
	require.Equal(t, "anthropic", p.Name())

	// Unknown preference falls back to the default.
	p, err = f.ForUser("mystery")
	require.NoError(t, err)
	require.Equal(t, "anthropic", p.Name())

	// Known but unconfigured backend is an error.
	_, err = f.ForUser("openai")
	require.Error(t, err)

	p, err = f.Default()
	require.NoError(t, err)
	require.Equal(t, "anthropic", p.Name())
}
