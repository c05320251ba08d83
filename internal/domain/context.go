package domain

import (
	"time"
)

// ContextPointType categorizes one distilled fact from a session transcript.
type ContextPointType string

const (
	ContextGoalProgress ContextPointType = "goal_progress"
	ContextDecision     ContextPointType = "decision"
	ContextDiscussion   ContextPointType = "discussion"
	ContextProgress     ContextPointType = "progress"
	ContextActionItem   ContextPointType = "action_item"
	ContextInsight      ContextPointType = "insight"
	ContextPreference   ContextPointType = "preference"
	ContextBlocker      ContextPointType = "blocker"
)

// Valid reports whether the type is one of the known context point categories.
func (t ContextPointType) Valid() bool {
	switch t {
	case ContextGoalProgress, ContextDecision, ContextDiscussion, ContextProgress,
		ContextActionItem, ContextInsight, ContextPreference, ContextBlocker:
		return true
	}
	return false
}

// ContextPoint is one distilled fact extracted from a conversation.
type ContextPoint struct {
	Type          ContextPointType `json:"type"`
	Content       string           `json:"content"`
	RelatedGoalID string           `json:"related_goal_id,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// SessionContext bundles the context points and statistics for one chat
// session, or a merged summary of several aged sessions (IsSummary set).
type SessionContext struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	SessionID            string         `json:"session_id"`
	CreatedAt            time.Time      `json:"created_at"`
	EndedAt              *time.Time     `json:"ended_at,omitempty"`
	ContextPoints        []ContextPoint `json:"context_points"`
	MessageCount         int            `json:"message_count"`
	GoalsCreated         int            `json:"goals_created"`
	GoalsUpdated         int            `json:"goals_updated"`
	GoalsCompleted       int            `json:"goals_completed"`
	IsSummary            bool           `json:"is_summary"`
	SummarizedSessionIDs []string       `json:"summarized_session_ids,omitempty"`
}
