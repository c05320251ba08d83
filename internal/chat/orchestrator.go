package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/goals"
	"github.com/goalgetter/goalgetter/internal/llm"
	"github.com/goalgetter/goalgetter/internal/store"
)

const (
	errorReplyText       = "I apologize, but I encountered an error. Please try again."
	toolOnlyReplyText    = "I've updated your goals. Take a look at the editor!"
	toolCallTurnPrefix   = "[tool_call]"
	toolResultTurnPrefix = "[tool_result]"
)

// ProviderSource resolves a model backend from a user preference.
type ProviderSource interface {
	ForUser(preference string) (llm.Provider, error)
}

// OrchestratorConfig bounds one coaching turn.
type OrchestratorConfig struct {
	MaxToolRounds int
	HistoryLimit  int
	GoalsLimit    int
	MaxTokens     int
}

// DefaultOrchestratorConfig returns the production turn limits.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxToolRounds: 5,
		HistoryLimit:  10,
		GoalsLimit:    5,
		MaxTokens:     4096,
	}
}

// Orchestrator drives one full coaching turn: gate re-check, streaming the
// model reply, executing tool calls across rounds and persisting both sides
// of the exchange.
type Orchestrator struct {
	repo      store.Repository
	gate      *Gate
	providers ProviderSource
	executor  *goals.Executor
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates a turn orchestrator.
func NewOrchestrator(repo store.Repository, gate *Gate, providers ProviderSource, executor *goals.Executor, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		gate:      gate,
		providers: providers,
		executor:  executor,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleMessage processes one inbound user message on a connection. Client
// facing failures are sent as error events; the returned error covers only
// transport or storage faults the handler cannot recover from.
func (o *Orchestrator) HandleMessage(ctx context.Context, conn Conn, user *domain.User, msg ClientMessage, sessionID, meetingID string) error {
	// Re-check access on every message; the meeting window may have closed
	// mid-session.
	verdict, err := o.gate.Check(ctx, user)
	if err != nil {
		return fmt.Errorf("access check: %w", err)
	}
	if !verdict.CanAccess {
		return conn.Send(ctx, errorEvent(verdict.Reason, verdict.NextAvailable, false))
	}

	// History is loaded before the new message is persisted so the turn
	// content is not duplicated in the provider request.
	recent, err := o.repo.RecentMessages(ctx, user.ID, o.cfg.HistoryLimit, meetingID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	history := domain.ToChatHistory(recent)

	if err := o.repo.AppendMessage(ctx, &domain.Message{
		UserID:    user.ID,
		SessionID: sessionID,
		MeetingID: meetingID,
		Role:      domain.RoleUser,
		Content:   msg.Content,
	}); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	if err := conn.Send(ctx, typingEvent()); err != nil {
		return err
	}

	goalsCache, err := o.repo.ActiveGoals(ctx, user.ID, o.cfg.GoalsLimit)
	if err != nil {
		return fmt.Errorf("load goals: %w", err)
	}

	provider, err := o.providers.ForUser(user.LLMProvider)
	if err != nil {
		return conn.Send(ctx, errorEvent(err.Error(), nil, false))
	}

	return o.runRounds(ctx, conn, user, msg, provider, history, goalsCache, sessionID, meetingID)
}

func (o *Orchestrator) runRounds(
	ctx context.Context,
	conn Conn,
	user *domain.User,
	msg ClientMessage,
	provider llm.Provider,
	history []domain.ChatTurn,
	goalsCache []*domain.Goal,
	sessionID, meetingID string,
) error {
	var (
		fullResponse strings.Builder
		tokensUsed   int
		modelUsed    string
		message      = msg.Content
	)

	for round := 0; round < o.cfg.MaxToolRounds; round++ {
		var (
			roundText strings.Builder
			toolTurns []string
			streamErr error
		)

		req := llm.StreamRequest{
			SystemPrompt: llm.BuildSystemPrompt(user.Phase, goalsCache, msg.DraftGoals),
			Message:      message,
			History:      history,
			Tools:        llm.GoalTools(),
			MaxTokens:    o.cfg.MaxTokens,
		}

		for event, err := range provider.Stream(ctx, req) {
			if err != nil {
				streamErr = err
				break
			}

			switch event.Type {
			case llm.EventChunk:
				roundText.WriteString(event.Content)
				fullResponse.WriteString(event.Content)
				if err := conn.Send(ctx, chunkEvent(event.Content)); err != nil {
					return err
				}

			case llm.EventToolCall:
				result, err := o.executeTool(ctx, conn, user.ID, event, msg.ActiveGoalID)
				if err != nil {
					return err
				}
				if result.Success {
					refreshed, err := o.repo.ActiveGoals(ctx, user.ID, o.cfg.GoalsLimit)
					if err == nil {
						goalsCache = refreshed
					}
				}
				toolTurns = append(toolTurns, formatToolTurn(event, result))

			case llm.EventComplete:
				tokensUsed += event.TokensUsed
				if event.Model != "" {
					modelUsed = event.Model
				}
			}
		}

		if streamErr != nil {
			o.logger.Error("LLM stream failed", "user_id", user.ID, "error", streamErr)
			return o.finishWithError(ctx, conn, user.ID, sessionID, meetingID)
		}

		if len(toolTurns) == 0 {
			break
		}
		if round == o.cfg.MaxToolRounds-1 {
			o.logger.Warn("Tool round limit reached", "user_id", user.ID, "rounds", o.cfg.MaxToolRounds)
			break
		}

		// Fold this round into the transcript and hand the tool results
		// back as the next turn.
		history = append(history, domain.ChatTurn{Role: domain.RoleUser, Content: message})
		assistantTurn := roundText.String()
		for _, turn := range toolTurns {
			if assistantTurn != "" {
				assistantTurn += "\n"
			}
			assistantTurn += turn
		}
		history = append(history, domain.ChatTurn{Role: domain.RoleAssistant, Content: assistantTurn})
		message = strings.Join(toolResults(toolTurns), "\n")
	}

	response := fullResponse.String()
	if response == "" {
		response = toolOnlyReplyText
	}

	assistantMsg := &domain.Message{
		UserID:     user.ID,
		SessionID:  sessionID,
		MeetingID:  meetingID,
		Role:       domain.RoleAssistant,
		Content:    response,
		Model:      modelUsed,
		TokensUsed: tokensUsed,
	}
	if err := o.repo.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}

	return conn.Send(ctx, responseEvent(response, assistantMsg.ID, tokensUsed))
}

// executeTool runs one tool call and reports it to the client. create_goal is
// split in two so the editor can focus the new goal before its content lands.
func (o *Orchestrator) executeTool(ctx context.Context, conn Conn, userID string, event *llm.StreamEvent, activeGoalID string) (*goals.Result, error) {
	o.logger.Info("Executing tool", "tool", event.ToolName, "user_id", userID)

	var result *goals.Result
	switch event.ToolName {
	case "create_goal":
		minimal := o.executor.CreateMinimal(ctx, userID, event.ToolInput)
		if !minimal.Success {
			result = minimal
			break
		}
		if err := conn.Send(ctx, focusGoalEvent(minimal.GoalID)); err != nil {
			return nil, err
		}
		result = o.executor.Populate(ctx, userID, minimal.GoalID, event.ToolInput)
		result.GoalID = minimal.GoalID

	default:
		if target := resolveFocusTarget(event.ToolInput, activeGoalID); target != "" && target == activeGoalID {
			if err := conn.Send(ctx, focusGoalEvent(target)); err != nil {
				return nil, err
			}
		}
		result = o.executor.Execute(ctx, userID, event.ToolName, event.ToolInput, activeGoalID)
	}

	if err := conn.Send(ctx, toolCallEvent(event.ToolName, result)); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) finishWithError(ctx context.Context, conn Conn, userID, sessionID, meetingID string) error {
	if err := o.repo.AppendMessage(ctx, &domain.Message{
		UserID:    userID,
		SessionID: sessionID,
		MeetingID: meetingID,
		Role:      domain.RoleAssistant,
		Content:   errorReplyText,
	}); err != nil {
		o.logger.Error("Failed to persist error reply", "user_id", userID, "error", err)
	}
	return conn.Send(ctx, ErrorEvent{
		Type:       "error",
		Content:    errorReplyText,
		IsComplete: true,
	})
}

// resolveFocusTarget extracts the goal_id a tool aims at, resolving the
// "current" alias.
func resolveFocusTarget(input json.RawMessage, activeGoalID string) string {
	var in struct {
		GoalID string `json:"goal_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return ""
	}
	if in.GoalID == "current" {
		return activeGoalID
	}
	return in.GoalID
}

func formatToolTurn(event *llm.StreamEvent, result *goals.Result) string {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = []byte(`{"success":false}`)
	}
	return fmt.Sprintf("%s %s %s\n%s %s",
		toolCallTurnPrefix, event.ToolName, string(event.ToolInput),
		toolResultTurnPrefix, string(resultJSON))
}

func toolResults(toolTurns []string) []string {
	results := make([]string, 0, len(toolTurns))
	for _, turn := range toolTurns {
		if idx := strings.Index(turn, toolResultTurnPrefix); idx >= 0 {
			results = append(results, turn[idx:])
		}
	}
	return results
}
