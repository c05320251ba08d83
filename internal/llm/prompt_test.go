package llm

import (
	"strings"
	"testing"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestBuildSystemPromptEmptyContext(t *testing.T) {
	prompt := BuildSystemPrompt(domain.PhaseGoalSetting, nil, nil)

	require.Contains(t, prompt, "User Phase: goal_setting")
	require.Contains(t, prompt, "No goals set yet.")
	require.Contains(t, prompt, "No drafts in progress.")
}

func TestBuildSystemPromptInjectsGoalsAndDrafts(t *testing.T) {
	goals := []*domain.Goal{
		{ID: "g1", Title: "Run a marathon", Content: "Train 4x per week"},
	}
	drafts := []domain.DraftGoal{
		{Title: "Learn Spanish", Content: "30 minutes daily"},
	}

	prompt := BuildSystemPrompt(domain.PhaseTracking, goals, drafts)

	require.Contains(t, prompt, "User Phase: tracking")
	require.Contains(t, prompt, "- [g1] Run a marathon: Train 4x per week")
	// Drafts without an ID render as "new".
	require.Contains(t, prompt, "- [new] Learn Spanish: 30 minutes daily")
}

func TestBuildSystemPromptTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", maxGoalContextChars+100)
	goals := []*domain.Goal{{ID: "g1", Title: "Big", Content: long}}

	prompt := BuildSystemPrompt(domain.PhaseGoalSetting, goals, nil)

	require.Contains(t, prompt, strings.Repeat("x", maxGoalContextChars)+"...")
	require.NotContains(t, prompt, strings.Repeat("x", maxGoalContextChars+1))
}

func TestGoalToolsSchemasAreValid(t *testing.T) {
	tools := GoalTools()
	require.Len(t, tools, 3)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		require.NotEmpty(t, tool.Description)
		require.True(t, len(tool.InputSchema) > 0)
	}
	require.Equal(t, []string{"create_goal", "update_goal", "set_goal_phase"}, names)
}
