// Package domain contains core domain types for the GoalGetter coaching service.
package domain

import (
	"time"
)

// Phase is a user's lifecycle stage.
type Phase string

const (
	// PhaseGoalSetting grants unrestricted coach access while goals are defined.
	PhaseGoalSetting Phase = "goal_setting"
	// PhaseTracking restricts coach access to scheduled meeting windows.
	PhaseTracking Phase = "tracking"
)

// Valid reports whether the phase is one of the known lifecycle stages.
func (p Phase) Valid() bool {
	return p == PhaseGoalSetting || p == PhaseTracking
}

// User represents a registered user of the coaching platform.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Phase       Phase     `json:"phase"`
	LLMProvider string    `json:"llm_provider,omitempty"`
	APIToken    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
