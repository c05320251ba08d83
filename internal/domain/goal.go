package domain

import (
	"time"
)

// GoalPhase is a goal's lifecycle stage, distinct from the user Phase.
type GoalPhase string

const (
	GoalPhaseDraft     GoalPhase = "draft"
	GoalPhaseActive    GoalPhase = "active"
	GoalPhaseCompleted GoalPhase = "completed"
	GoalPhaseArchived  GoalPhase = "archived"
)

// Valid reports whether the goal phase is one of the known stages.
func (p GoalPhase) Valid() bool {
	switch p {
	case GoalPhaseDraft, GoalPhaseActive, GoalPhaseCompleted, GoalPhaseArchived:
		return true
	}
	return false
}

// Milestone is one checkpoint on the way to a goal.
type Milestone struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	TargetDate  string     `json:"target_date,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Goal is a user's persisted goal record. Coach-created goals start as drafts.
type Goal struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	Phase        GoalPhase   `json:"phase"`
	TemplateType string      `json:"template_type,omitempty"`
	Deadline     string      `json:"deadline,omitempty"`
	Milestones   []Milestone `json:"milestones,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// DraftGoal is unsaved editor content sent alongside a chat message so the
// coach can see work in progress.
type DraftGoal struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}
