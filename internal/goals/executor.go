// Package goals executes goal editing tools invoked by the AI coach.
package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/store"
)

// Result is the outcome of one tool execution, fed back to the model and the
// client as-is.
type Result struct {
	Success bool         `json:"success"`
	GoalID  string       `json:"goal_id,omitempty"`
	Goal    *domain.Goal `json:"goal,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func failure(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Executor dispatches goal tool calls against the goal store. Tool failures
// are reported in the Result, never as Go errors, so the conversation can
// continue.
type Executor struct {
	goals  store.GoalStore
	logger *slog.Logger
}

// NewExecutor creates a goal tool executor.
func NewExecutor(goals store.GoalStore, logger *slog.Logger) *Executor {
	return &Executor{goals: goals, logger: logger}
}

type milestoneInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TargetDate  string `json:"target_date"`
	Completed   bool   `json:"completed"`
}

type createGoalInput struct {
	Title        string           `json:"title"`
	Content      string           `json:"content"`
	TemplateType string           `json:"template_type"`
	Deadline     string           `json:"deadline"`
	Milestones   []milestoneInput `json:"milestones"`
	Tags         []string         `json:"tags"`
}

type updateGoalInput struct {
	GoalID       string            `json:"goal_id"`
	Title        *string           `json:"title"`
	Content      *string           `json:"content"`
	Deadline     *string           `json:"deadline"`
	Milestones   *[]milestoneInput `json:"milestones"`
	AddMilestone *milestoneInput   `json:"add_milestone"`
	Tags         *[]string         `json:"tags"`
}

type setGoalPhaseInput struct {
	GoalID string `json:"goal_id"`
	Phase  string `json:"phase"`
}

// Execute runs one tool call. activeGoalID resolves the "current" goal
// reference for update_goal and set_goal_phase.
func (e *Executor) Execute(ctx context.Context, userID, toolName string, input json.RawMessage, activeGoalID string) *Result {
	switch toolName {
	case "create_goal":
		return e.createGoal(ctx, userID, input)
	case "update_goal":
		return e.updateGoal(ctx, userID, input, activeGoalID)
	case "set_goal_phase":
		return e.setGoalPhase(ctx, userID, input, activeGoalID)
	default:
		return failure("Unknown tool: %s", toolName)
	}
}

// CreateMinimal inserts a draft goal carrying only the title and template so
// the client can focus its editor before the full content arrives.
func (e *Executor) CreateMinimal(ctx context.Context, userID string, input json.RawMessage) *Result {
	var in createGoalInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("Invalid tool input: %v", err)
	}
	if in.Title == "" {
		in.Title = "New Goal"
	}
	if in.TemplateType == "" {
		in.TemplateType = "custom"
	}

	goal := &domain.Goal{
		UserID:       userID,
		Title:        in.Title,
		Content:      "",
		Phase:        domain.GoalPhaseDraft,
		TemplateType: in.TemplateType,
	}
	if err := e.goals.InsertGoal(ctx, goal); err != nil {
		e.logger.Error("Failed to create minimal goal", "user_id", userID, "error", err)
		return failure("%v", err)
	}
	return &Result{Success: true, GoalID: goal.ID}
}

// Populate fills a freshly created minimal goal with the remaining tool input.
func (e *Executor) Populate(ctx context.Context, userID, goalID string, input json.RawMessage) *Result {
	var in createGoalInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("Invalid tool input: %v", err)
	}

	update := updateGoalInput{GoalID: goalID}
	if in.Content != "" {
		update.Content = &in.Content
	}
	if in.Deadline != "" {
		update.Deadline = &in.Deadline
	}
	if len(in.Milestones) > 0 {
		update.Milestones = &in.Milestones
	}
	if len(in.Tags) > 0 {
		update.Tags = &in.Tags
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return failure("%v", err)
	}
	return e.updateGoal(ctx, userID, payload, "")
}

func (e *Executor) createGoal(ctx context.Context, userID string, input json.RawMessage) *Result {
	var in createGoalInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("Invalid tool input: %v", err)
	}
	if in.Title == "" {
		in.Title = "Untitled Goal"
	}
	if in.TemplateType == "" {
		in.TemplateType = "custom"
	}

	goal := &domain.Goal{
		UserID:       userID,
		Title:        in.Title,
		Content:      in.Content,
		Phase:        domain.GoalPhaseDraft,
		TemplateType: in.TemplateType,
		Deadline:     in.Deadline,
		Milestones:   buildMilestones(in.Milestones, false),
		Tags:         in.Tags,
	}
	if err := e.goals.InsertGoal(ctx, goal); err != nil {
		e.logger.Error("Failed to create goal", "user_id", userID, "error", err)
		return failure("%v", err)
	}

	e.logger.Info("Coach created goal", "goal_id", goal.ID, "user_id", userID)
	return &Result{Success: true, GoalID: goal.ID, Goal: goal}
}

func (e *Executor) updateGoal(ctx context.Context, userID string, input json.RawMessage, activeGoalID string) *Result {
	var in updateGoalInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("Invalid tool input: %v", err)
	}

	goalID, res := resolveGoalID(in.GoalID, activeGoalID)
	if res != nil {
		return res
	}

	goal, err := e.goals.GetGoal(ctx, userID, goalID)
	if err != nil {
		return failure("%v", err)
	}
	if goal == nil {
		return failure("Goal not found: %s", goalID)
	}

	if in.Title != nil {
		goal.Title = *in.Title
	}
	if in.Content != nil {
		goal.Content = *in.Content
	}
	if in.Deadline != nil {
		goal.Deadline = *in.Deadline
	}
	if in.Tags != nil {
		goal.Tags = *in.Tags
	}
	if in.Milestones != nil {
		goal.Milestones = buildMilestones(*in.Milestones, true)
	} else if in.AddMilestone != nil {
		goal.Milestones = append(goal.Milestones, domain.Milestone{
			Title:       in.AddMilestone.Title,
			Description: in.AddMilestone.Description,
			TargetDate:  in.AddMilestone.TargetDate,
		})
	}

	if err := e.goals.UpdateGoal(ctx, goal); err != nil {
		return failure("%v", err)
	}

	e.logger.Info("Coach updated goal", "goal_id", goalID, "user_id", userID)
	return &Result{Success: true, GoalID: goalID, Goal: goal}
}

func (e *Executor) setGoalPhase(ctx context.Context, userID string, input json.RawMessage, activeGoalID string) *Result {
	var in setGoalPhaseInput
	if err := json.Unmarshal(input, &in); err != nil {
		return failure("Invalid tool input: %v", err)
	}

	phase := domain.GoalPhase(in.Phase)
	if !phase.Valid() {
		return failure("Invalid phase: %s. Must be one of: [draft active completed archived]", in.Phase)
	}

	goalID, res := resolveGoalID(in.GoalID, activeGoalID)
	if res != nil {
		return res
	}

	goal, err := e.goals.GetGoal(ctx, userID, goalID)
	if err != nil {
		return failure("%v", err)
	}
	if goal == nil {
		return failure("Goal not found: %s", goalID)
	}

	goal.Phase = phase
	if err := e.goals.UpdateGoal(ctx, goal); err != nil {
		return failure("%v", err)
	}

	e.logger.Info("Coach changed goal phase", "goal_id", goalID, "phase", phase, "user_id", userID)
	return &Result{Success: true, GoalID: goalID, Goal: goal}
}

func resolveGoalID(goalID, activeGoalID string) (string, *Result) {
	if goalID == "current" {
		if activeGoalID == "" {
			return "", failure("No active goal in editor to update")
		}
		return activeGoalID, nil
	}
	if goalID == "" {
		return "", failure("Missing goal_id")
	}
	return goalID, nil
}

func buildMilestones(inputs []milestoneInput, keepCompleted bool) []domain.Milestone {
	if len(inputs) == 0 {
		return nil
	}
	milestones := make([]domain.Milestone, 0, len(inputs))
	for _, m := range inputs {
		milestone := domain.Milestone{
			Title:       m.Title,
			Description: m.Description,
			TargetDate:  m.TargetDate,
		}
		if keepCompleted {
			milestone.Completed = m.Completed
		}
		milestones = append(milestones, milestone)
	}
	return milestones
}
