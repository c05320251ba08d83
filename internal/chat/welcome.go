package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/llm"
	"github.com/goalgetter/goalgetter/internal/memory"
	"github.com/goalgetter/goalgetter/internal/store"
)

const firstTimeWelcome = `Welcome to GoalGetter!

I'm Alfred, your AI Coach. I'm here to help you set, track, and achieve your goals. Here's how we can work together:

**Set Goals** - Tell me what you want to achieve and I'll help you create structured, actionable goals with clear milestones and deadlines.

**Track Progress** - Share your updates and I'll help you stay accountable and motivated. We'll celebrate wins and work through challenges together.

**Get Guidance** - Ask me for advice, strategies, or help breaking down complex goals into manageable steps.

Ready to get started? Tell me about a goal you'd like to work on, or ask me anything!`

const returningWelcomePromptFormat = `You are Alfred, the AI Coach. Generate a personalized welcome message for a returning user.

PREVIOUS SESSION CONTEXT:
%s

CURRENT GOALS:
%s

PENDING ACTION ITEMS:
%s

Generate a welcome message that:
1. Warmly welcomes them back
2. Briefly summarizes their recent progress (1-2 key highlights from the context)
3. Lists their active goals with status
4. Mentions any pending action items they committed to
5. Ends with an engaging question about what they'd like to focus on today

FORMAT GUIDELINES:
- Use markdown formatting
- Keep it concise but informative (2-4 paragraphs max)
- Use **bold** for emphasis on goal names and key points
- Use bullet points for lists
- Be encouraging and supportive
- DO NOT include JSON or structured data - just natural conversational text`

// WelcomeService composes the coach's opening message for a session.
type WelcomeService struct {
	repo      store.Repository
	contexts  *memory.Service
	providers memory.ProviderSource
	logger    *slog.Logger
}

// NewWelcomeService creates a welcome message service.
func NewWelcomeService(repo store.Repository, contexts *memory.Service, providers memory.ProviderSource, logger *slog.Logger) *WelcomeService {
	return &WelcomeService{
		repo:      repo,
		contexts:  contexts,
		providers: providers,
		logger:    logger,
	}
}

// WelcomeMessage builds the greeting shown when a session opens. First-time
// users get the onboarding guide; returning users get a progress summary.
// Failures degrade to static fallbacks, never an error.
func (w *WelcomeService) WelcomeMessage(ctx context.Context, userID string) string {
	if w.contexts.FirstTimeUser(ctx, userID) {
		return firstTimeWelcome
	}

	contexts, err := w.contexts.LoadUserContext(ctx, userID)
	if err != nil {
		w.logger.Error("Failed to load user context for welcome", "user_id", userID, "error", err)
		return firstTimeWelcome
	}

	goals, err := w.repo.ActiveGoals(ctx, userID, 10)
	if err != nil {
		w.logger.Error("Failed to load goals for welcome", "user_id", userID, "error", err)
		goals = nil
	}

	if len(contexts) == 0 {
		return goalFocusedWelcome(goals)
	}

	actionItems := pendingActionItems(contexts)

	provider, err := w.providers.Default()
	if err != nil {
		w.logger.Warn("No provider for welcome generation", "error", err)
		return fallbackWelcome(contexts, goals, actionItems)
	}

	resp, err := provider.Send(ctx, llm.SendRequest{
		Message: fmt.Sprintf(returningWelcomePromptFormat,
			contextSummaryText(contexts), goalStatusText(goals), actionItemsText(actionItems)),
		MaxTokens: 1024,
	})
	if err != nil {
		w.logger.Error("Welcome generation failed", "user_id", userID, "error", err)
		return fallbackWelcome(contexts, goals, actionItems)
	}

	message := strings.TrimSpace(resp.Content)
	if message == "" || strings.HasPrefix(message, "{") {
		w.logger.Warn("Generated welcome was invalid, using fallback", "user_id", userID)
		return fallbackWelcome(contexts, goals, actionItems)
	}
	return message
}

// goalProgress estimates completion as the share of finished milestones. A
// goal without milestones is scored by phase alone.
func goalProgress(goal *domain.Goal) int {
	if len(goal.Milestones) == 0 {
		switch goal.Phase {
		case domain.GoalPhaseCompleted:
			return 100
		case domain.GoalPhaseActive:
			return 10
		default:
			return 0
		}
	}
	completed := 0
	for _, m := range goal.Milestones {
		if m.Completed {
			completed++
		}
	}
	return completed * 100 / len(goal.Milestones)
}

func goalStatusLine(goal *domain.Goal) string {
	if progress := goalProgress(goal); progress > 0 {
		return fmt.Sprintf("- **%s** (%d%% complete)", goal.Title, progress)
	}
	return fmt.Sprintf("- **%s** (%s)", goal.Title, goal.Phase)
}

func goalStatusText(goals []*domain.Goal) string {
	if len(goals) == 0 {
		return "No active goals"
	}
	lines := make([]string, 0, 5)
	for _, goal := range goals {
		if len(lines) == 5 {
			break
		}
		lines = append(lines, goalStatusLine(goal))
	}
	return strings.Join(lines, "\n")
}

func contextSummaryText(contexts []*domain.SessionContext) string {
	var b strings.Builder
	for _, sc := range contexts {
		label := "Session"
		if sc.IsSummary {
			label = "Summary"
		}
		fmt.Fprintf(&b, "%s %s:\n", label, sc.CreatedAt.Format("2006-01-02"))
		for _, point := range sc.ContextPoints {
			fmt.Fprintf(&b, "- [%s] %s\n", point.Type, point.Content)
		}
	}
	return b.String()
}

// pendingActionItems collects distinct action items, most recent sessions
// first, capped at five.
func pendingActionItems(contexts []*domain.SessionContext) []string {
	var items []string
	seen := make(map[string]struct{})
	for i := len(contexts) - 1; i >= 0 && len(items) < 5; i-- {
		for _, point := range contexts[i].ContextPoints {
			if point.Type != domain.ContextActionItem {
				continue
			}
			if _, dup := seen[point.Content]; dup {
				continue
			}
			seen[point.Content] = struct{}{}
			items = append(items, point.Content)
			if len(items) == 5 {
				break
			}
		}
	}
	return items
}

func actionItemsText(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	lines := make([]string, 0, 3)
	for _, item := range items {
		if len(lines) == 3 {
			break
		}
		lines = append(lines, "- "+item)
	}
	return strings.Join(lines, "\n")
}

func goalFocusedWelcome(goals []*domain.Goal) string {
	if len(goals) == 0 {
		return "Welcome back! Ready to set some goals and make progress together? Tell me what you'd like to achieve."
	}
	lines := make([]string, 0, 3)
	for _, goal := range goals {
		if len(lines) == 3 {
			break
		}
		lines = append(lines, goalStatusLine(goal))
	}
	return fmt.Sprintf("Welcome back! Here are your active goals:\n\n%s\n\nWhat would you like to focus on today?", strings.Join(lines, "\n"))
}

func fallbackWelcome(contexts []*domain.SessionContext, goals []*domain.Goal, actionItems []string) string {
	parts := []string{"Welcome back!"}

	var recentProgress string
	for i := len(contexts) - 1; i >= 0 && recentProgress == ""; i-- {
		points := contexts[i].ContextPoints
		for j := len(points) - 1; j >= 0; j-- {
			if points[j].Type == domain.ContextGoalProgress {
				recentProgress = points[j].Content
				if len(recentProgress) > 100 {
					recentProgress = recentProgress[:100]
				}
				break
			}
		}
	}
	if recentProgress != "" {
		parts = append(parts, "Last session: "+recentProgress)
	}

	if len(goals) > 0 {
		parts = append(parts, "\n**Your Active Goals:**")
		for i, goal := range goals {
			if i == 3 {
				break
			}
			parts = append(parts, goalStatusLine(goal))
		}
	}

	if len(actionItems) > 0 {
		parts = append(parts, "\n**Pending Items:**")
		for i, item := range actionItems {
			if i == 2 {
				break
			}
			if len(item) > 80 {
				item = item[:80]
			}
			parts = append(parts, "- "+item)
		}
	}

	parts = append(parts, "\nWhat would you like to focus on today?")
	return strings.Join(parts, "\n")
}
