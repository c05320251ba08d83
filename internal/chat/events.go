// Package chat implements the real-time coaching chat core: the connection
// registry, the meeting access gate and the streaming tool orchestrator.
package chat

import (
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/goals"
)

// ClientMessage is one inbound frame from the websocket client.
type ClientMessage struct {
	Type         string             `json:"type"`
	Content      string             `json:"content,omitempty"`
	DraftGoals   []domain.DraftGoal `json:"draft_goals,omitempty"`
	ActiveGoalID string             `json:"active_goal_id,omitempty"`
}

// ConnectedEvent confirms a successful connection.
type ConnectedEvent struct {
	Type      string       `json:"type"`
	Content   string       `json:"content"`
	UserPhase domain.Phase `json:"user_phase"`
	MeetingID string       `json:"meeting_id,omitempty"`
}

// WelcomeEvent opens the session with a coach greeting.
type WelcomeEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// TypingEvent tells the client the coach is working on a reply.
type TypingEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ChunkEvent carries one incremental slice of the assistant reply.
type ChunkEvent struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

// ToolCallEvent reports one executed goal tool and its result.
type ToolCallEvent struct {
	Type       string        `json:"type"`
	Tool       string        `json:"tool"`
	ToolResult *goals.Result `json:"tool_result"`
}

// FocusGoalEvent tells the client which goal to open in its editor.
type FocusGoalEvent struct {
	Type   string `json:"type"`
	GoalID string `json:"goal_id"`
}

// ResponseEvent finishes one assistant turn with the accumulated text.
type ResponseEvent struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	MessageID  string `json:"message_id,omitempty"`
	IsComplete bool   `json:"is_complete"`
	TokensUsed int    `json:"tokens_used"`
}

// ErrorEvent reports a recoverable failure to the client.
type ErrorEvent struct {
	Type          string     `json:"type"`
	Content       string     `json:"content"`
	NextAvailable *time.Time `json:"next_available,omitempty"`
	IsComplete    bool       `json:"is_complete,omitempty"`
}

// PongEvent answers a client ping.
type PongEvent struct {
	Type string `json:"type"`
}

func connectedEvent(phase domain.Phase, meetingID string) ConnectedEvent {
	return ConnectedEvent{
		Type:      "connected",
		Content:   "Connected to GoalGetter AI Coach",
		UserPhase: phase,
		MeetingID: meetingID,
	}
}

func welcomeEvent(content string) WelcomeEvent {
	return WelcomeEvent{Type: "welcome", Content: content}
}

func typingEvent() TypingEvent {
	return TypingEvent{Type: "typing", Content: "Coach is thinking..."}
}

func chunkEvent(content string) ChunkEvent {
	return ChunkEvent{Type: "response_chunk", Content: content}
}

func toolCallEvent(tool string, result *goals.Result) ToolCallEvent {
	return ToolCallEvent{Type: "tool_call", Tool: tool, ToolResult: result}
}

func focusGoalEvent(goalID string) FocusGoalEvent {
	return FocusGoalEvent{Type: "focus_goal", GoalID: goalID}
}

func responseEvent(content, messageID string, tokensUsed int) ResponseEvent {
	return ResponseEvent{
		Type:       "response",
		Content:    content,
		MessageID:  messageID,
		IsComplete: true,
		TokensUsed: tokensUsed,
	}
}

func errorEvent(content string, nextAvailable *time.Time, complete bool) ErrorEvent {
	return ErrorEvent{Type: "error", Content: content, NextAvailable: nextAvailable, IsComplete: complete}
}

func pongEvent() PongEvent {
	return PongEvent{Type: "pong"}
}
