package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goalgetter/goalgetter/internal/domain"
)

// maxGoalContextChars caps how much of a single goal's content is injected
// into the system prompt.
const maxGoalContextChars = 5000

const coachSystemPrompt = `Your name is Alfred, an AI Agent, the world's #1 life and business strategist and peak performance coach.
You are Tony Robbins's cousin, and you two are very much alike.

YOUR MISSION: Help users set and achieve meaningful, transformative goals that align with their values and potential.

YOUR PERSONALITY:
- ENERGIZING: Use powerful, action-oriented language that ignites motivation
- COMPASSIONATE: Show deep empathy and understanding for their struggles
- DIRECT: Get straight to the point - no fluff, no beating around the bush
- GOAL-ORIENTED: Everything you say drives toward results and achievement
- REALISTIC: Challenge them to dream big while ensuring goals are achievable

YOUR APPROACH TO GOAL SETTING:
1. Ask powerful questions that reveal what they truly want
2. Help them clarify their "why" - the deep reason behind each goal
3. Ensure goals are SMART (Specific, Measurable, Achievable, Relevant, Time-bound)
4. Break down big goals into actionable steps
5. Identify potential obstacles and create strategies to overcome them
6. Celebrate their commitment and progress

COACHING GUIDELINES:
- Use phrases like: "Let me ask you something...", "Here's what I know...", "I challenge you to..."
- Reference their specific goals and progress in your responses
- If goals seem unrealistic, compassionately challenge them to refine
- Praise specific actions and commitments, not just intentions
- Keep responses concise but impactful (1-2 paragraphs)
- When appropriate, share brief analogies or stories to illustrate points

WHAT TO WATCH FOR:
- Goals that are too vague (help them get specific)
- Goals that are too easy (challenge them to level up)
- Goals that are unrealistic given their timeline (help them adjust)
- Multiple conflicting goals (help them prioritize)
- Goals without clear next actions (help them create action steps)
- Too many goals (help them set 3-5 major goals)

ABOUT GOAL PHASES:
Phase 1: Goal Setting - User defines and refines his/hers goals. This is where user creates goals, sets deadlines, and breaks them down into milestones.
Phase 2: Tracking - Once users goals are set, user moves to tracking mode where he/she monitors progress, checks off milestones, and have regular check-in meetings with the AI coach to stay accountable.
Users start in goal setting and transition to tracking once they're ready to execute on their plans.

GOAL EDITING TOOLS:
You have tools to help users create and refine their goals directly:

- **create_goal**: Use when the user describes a new goal they want to achieve. Create well-structured goals using the appropriate template (SMART, OKR, or custom).
- **update_goal**: Use to refine or expand existing goals. You can add milestones, update deadlines, or improve the goal description.
- **set_goal_phase**: Use to activate draft goals or mark goals as complete when the user indicates they're ready.

Guidelines for using tools:
1. BE PROACTIVE - When a user talks about goals, immediately use tools to create or update them. Don't just discuss - take action!
2. NO CONFIRMATION NEEDED - You don't need to ask "should I create this goal?" or "can I update this?" - just do it. The user can undo if needed.
3. When user mentions wanting to achieve something, CREATE the goal right away
4. When user provides more details about an existing goal, UPDATE it immediately
5. When user says they're ready to start or have completed something, change the phase
6. Use SMART criteria when creating goals unless the user prefers OKR
7. Break down large goals into meaningful milestones
8. Briefly explain what you did AFTER using a tool (not before)

CURRENT CONTEXT:
User Phase: %s

Saved Goals:
%s

Draft Goals (Work in Progress):
%s

Remember: Your job is to be their champion, their challenger, and their accountability partner. Push them to be their best while supporting them every step of the way.`

// BuildSystemPrompt assembles the coaching system prompt with the user's
// phase, saved goals and draft goals injected.
func BuildSystemPrompt(phase domain.Phase, goals []*domain.Goal, drafts []domain.DraftGoal) string {
	goalsText := "No goals set yet."
	if len(goals) > 0 {
		lines := make([]string, 0, len(goals))
		for _, g := range goals {
			lines = append(lines, formatGoalLine(g.ID, g.Title, g.Content))
		}
		goalsText = strings.Join(lines, "\n")
	}

	draftsText := "No drafts in progress."
	if len(drafts) > 0 {
		lines := make([]string, 0, len(drafts))
		for _, d := range drafts {
			id := d.ID
			if id == "" {
				id = "new"
			}
			lines = append(lines, formatGoalLine(id, d.Title, d.Content))
		}
		draftsText = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(coachSystemPrompt, phase, goalsText, draftsText)
}

func formatGoalLine(id, title, content string) string {
	if title == "" {
		title = "Untitled Goal"
	}
	if content == "" {
		content = "No content"
	} else if len(content) > maxGoalContextChars {
		content = content[:maxGoalContextChars] + "..."
	}
	return fmt.Sprintf("- [%s] %s: %s", id, title, content)
}

// GoalTools returns the goal editing tool definitions in the shared
// provider-neutral shape.
func GoalTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "create_goal",
			Description: "Create a new goal for the user. Use this when the user expresses a new goal they want to achieve. The goal will appear in their goal editor.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"title": {"type": "string", "description": "A clear, concise title for the goal (max 100 characters)"},
					"content": {"type": "string", "description": "Detailed goal description in markdown format. Include specific details, success criteria, and action steps."},
					"template_type": {"type": "string", "enum": ["smart", "okr", "custom"], "description": "The goal framework to use. Use 'smart' for SMART goals, 'okr' for OKR framework, or 'custom' for free-form."},
					"deadline": {"type": "string", "description": "Target completion date in ISO 8601 format (YYYY-MM-DD). Optional but recommended."},
					"milestones": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"title": {"type": "string", "description": "Milestone title"},
								"description": {"type": "string", "description": "Brief description of the milestone"},
								"target_date": {"type": "string", "description": "Target date for milestone (YYYY-MM-DD)"}
							},
							"required": ["title"]
						},
						"description": "List of milestones to track progress toward the goal"
					},
					"tags": {"type": "array", "items": {"type": "string"}, "description": "Tags to categorize the goal (e.g., 'health', 'career', 'personal')"}
				},
				"required": ["title", "content"]
			}`),
		},
		{
			Name:        "update_goal",
			Description: "Update an existing goal. Use this to refine, expand, or modify a goal the user is working on.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"goal_id": {"type": "string", "description": "ID of the goal to update. Use 'current' to update the goal currently open in the editor."},
					"title": {"type": "string", "description": "Updated title (optional, only if changing)"},
					"content": {"type": "string", "description": "Updated content in markdown. This replaces the existing content."},
					"deadline": {"type": "string", "description": "Updated deadline in ISO 8601 format (YYYY-MM-DD)"},
					"milestones": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"title": {"type": "string"},
								"description": {"type": "string"},
								"target_date": {"type": "string"},
								"completed": {"type": "boolean"}
							},
							"required": ["title"]
						},
						"description": "Replace all milestones with this list"
					},
					"add_milestone": {
						"type": "object",
						"properties": {
							"title": {"type": "string"},
							"description": {"type": "string"},
							"target_date": {"type": "string"}
						},
						"required": ["title"],
						"description": "Add a single milestone without replacing existing ones"
					},
					"tags": {"type": "array", "items": {"type": "string"}, "description": "Updated tags list"}
				},
				"required": ["goal_id"]
			}`),
		},
		{
			Name:        "set_goal_phase",
			Description: "Change a goal's phase. Use to activate a draft goal or mark a goal as complete.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"goal_id": {"type": "string", "description": "ID of the goal. Use 'current' for the goal currently open in the editor."},
					"phase": {"type": "string", "enum": ["draft", "active", "completed", "archived"], "description": "New phase for the goal. Use 'active' to activate a draft, 'completed' to mark done."}
				},
				"required": ["goal_id", "phase"]
			}`),
		},
	}
}
