package goals

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*Executor, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewExecutor(s, slog.Default()), s
}

func TestExecuteCreateGoal(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	input := json.RawMessage(`{
		"title": "Run a marathon",
		"content": "Train 4x per week",
		"template_type": "smart",
		"deadline": "2027-06-01",
		"milestones": [{"title": "First 10k", "target_date": "2026-12-01"}],
		"tags": ["health"]
	}`)

	res := e.Execute(ctx, "u1", "create_goal", input, "")
	require.True(t, res.Success)
	require.NotEmpty(t, res.GoalID)
	require.NotNil(t, res.Goal)
	require.Equal(t, domain.GoalPhaseDraft, res.Goal.Phase)
	require.Equal(t, "smart", res.Goal.TemplateType)
	require.Len(t, res.Goal.Milestones, 1)
	require.False(t, res.Goal.Milestones[0].Completed)

	stored, err := s.GetGoal(ctx, "u1", res.GoalID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "Run a marathon", stored.Title)
}

func TestCreateMinimalThenPopulate(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	input := json.RawMessage(`{
		"title": "Learn Spanish",
		"content": "Practice 30 minutes daily",
		"template_type": "custom",
		"tags": ["learning"]
	}`)

	minimal := e.CreateMinimal(ctx, "u1", input)
	require.True(t, minimal.Success)
	require.NotEmpty(t, minimal.GoalID)

	// Minimal record has the title only.
	stored, err := s.GetGoal(ctx, "u1", minimal.GoalID)
	require.NoError(t, err)
	require.Equal(t, "Learn Spanish", stored.Title)
	require.Empty(t, stored.Content)

	populated := e.Populate(ctx, "u1", minimal.GoalID, input)
	require.True(t, populated.Success)
	require.Equal(t, minimal.GoalID, populated.GoalID)
	require.Equal(t, "Practice 30 minutes daily", populated.Goal.Content)
	require.Equal(t, []string{"learning"}, populated.Goal.Tags)
}

func TestUpdateGoalCurrentReference(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	created := e.Execute(ctx, "u1", "create_goal", json.RawMessage(`{"title":"Base","content":"c"}`), "")
	require.True(t, created.Success)

	res := e.Execute(ctx, "u1", "update_goal",
		json.RawMessage(`{"goal_id":"current","title":"Renamed"}`), created.GoalID)
	require.True(t, res.Success)
	require.Equal(t, created.GoalID, res.GoalID)
	require.Equal(t, "Renamed", res.Goal.Title)

	// No active goal to resolve against.
	res = e.Execute(ctx, "u1", "update_goal",
		json.RawMessage(`{"goal_id":"current","title":"x"}`), "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "No active goal")
}

func TestUpdateGoalMilestones(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	created := e.Execute(ctx, "u1", "create_goal",
		json.RawMessage(`{"title":"G","content":"c","milestones":[{"title":"m1"}]}`), "")
	require.True(t, created.Success)

	// add_milestone appends without replacing.
	res := e.Execute(ctx, "u1", "update_goal",
		json.RawMessage(`{"goal_id":"`+created.GoalID+`","add_milestone":{"title":"m2"}}`), "")
	require.True(t, res.Success)
	require.Len(t, res.Goal.Milestones, 2)

	// milestones replaces the whole list and keeps completed flags.
	res = e.Execute(ctx, "u1", "update_goal",
		json.RawMessage(`{"goal_id":"`+created.GoalID+`","milestones":[{"title":"done","completed":true}]}`), "")
	require.True(t, res.Success)
	require.Len(t, res.Goal.Milestones, 1)
	require.True(t, res.Goal.Milestones[0].Completed)
}

func TestSetGoalPhase(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	created := e.Execute(ctx, "u1", "create_goal", json.RawMessage(`{"title":"G","content":"c"}`), "")
	require.True(t, created.Success)

	res := e.Execute(ctx, "u1", "set_goal_phase",
		json.RawMessage(`{"goal_id":"`+created.GoalID+`","phase":"active"}`), "")
	require.True(t, res.Success)
	require.Equal(t, domain.GoalPhaseActive, res.Goal.Phase)

	res = e.Execute(ctx, "u1", "set_goal_phase",
		json.RawMessage(`{"goal_id":"`+created.GoalID+`","phase":"paused"}`), "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "Invalid phase")
}

func TestExecuteToolFailures(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, "u1", "delete_everything", json.RawMessage(`{}`), "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "Unknown tool")

	res = e.Execute(ctx, "u1", "update_goal", json.RawMessage(`{"goal_id":"missing","title":"x"}`), "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "Goal not found")

	// Cross-user access is a not-found, not a leak.
	created := e.Execute(ctx, "u1", "create_goal", json.RawMessage(`{"title":"G","content":"c"}`), "")
	require.True(t, created.Success)
	res = e.Execute(ctx, "u2", "update_goal", json.RawMessage(`{"goal_id":"`+created.GoalID+`","title":"x"}`), "")
	require.False(t, res.Success)

	res = e.Execute(ctx, "u1", "update_goal", json.RawMessage(`not json`), "")
	require.False(t, res.Success)
}
