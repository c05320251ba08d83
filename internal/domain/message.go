package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message authored by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by the AI coach.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known message roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one persisted chat message. Immutable once written.
type Message struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id,omitempty"`
	MeetingID  string    `json:"meeting_id,omitempty"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Model      string    `json:"model,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty"`
}

// ChatTurn is the minimal role/content pair handed to LLM providers as history.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToChatHistory converts persisted messages to provider history turns,
// preserving order.
func ToChatHistory(messages []*Message) []ChatTurn {
	turns := make([]ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
