// Package memory distills chat sessions into durable context records and
// keeps them compact through rolling summarization.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/llm"
	"github.com/goalgetter/goalgetter/internal/store"
)

// ProviderSource supplies the default model backend for extraction and
// summarization.
type ProviderSource interface {
	Default() (llm.Provider, error)
}

// Config bounds the extraction and summarization pipeline.
type Config struct {
	// MinMessages is the smallest transcript worth extracting from.
	MinMessages int
	// TranscriptFetchLimit caps how many messages are loaded per extraction.
	TranscriptFetchLimit int
	// TranscriptCharLimit caps the transcript text handed to the model.
	TranscriptCharLimit int
	// SummarizeThreshold triggers summarization once this many unsummarized
	// session records exist.
	SummarizeThreshold int
	// SummarizeBatch is how many oldest records each summary replaces.
	SummarizeBatch int
	// RecentContextLimit caps the recent sessions loaded for prompts.
	RecentContextLimit int
	// MaxTokens bounds extraction and summarization completions.
	MaxTokens int
}

// DefaultConfig returns the production pipeline limits.
func DefaultConfig() Config {
	return Config{
		MinMessages:          2,
		TranscriptFetchLimit: 100,
		TranscriptCharLimit:  15000,
		SummarizeThreshold:   20,
		SummarizeBatch:       10,
		RecentContextLimit:   10,
		MaxTokens:            2048,
	}
}

// Service extracts session context and maintains the rolling summary window.
type Service struct {
	repo      store.Repository
	providers ProviderSource
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a context memory service.
func NewService(repo store.Repository, providers ProviderSource, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		providers: providers,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

const extractionPromptFormat = `Analyze this conversation between a user and their AI Coach and extract key points to remember for future sessions.

CONVERSATION:
%s

Extract the following types of context points (only include what's actually present):

1. **goal_progress** - Goals created, updated, completed, milestones reached, deadlines set
2. **decision** - Key choices the user made about priorities, approaches, focus areas
3. **action_item** - Commitments user made, tasks they plan to do
4. **insight** - User preferences, working style, motivations discovered
5. **preference** - User's scheduling preferences, communication style, etc.
6. **blocker** - Challenges discussed, obstacles identified

Return a JSON object with the following structure:
{
    "goals": [
        {
            "goal_name": "Name of the goal discussed",
            "goal_id": "Goal ID if mentioned, otherwise null",
            "key_points": [
                {
                    "type": "decision|discussion|progress|action_item|blocker",
                    "content": "Brief description of what was decided or discussed"
                }
            ]
        }
    ],
    "general_insights": [
        {
            "type": "preference|insight",
            "content": "User preferences or insights not tied to a specific goal"
        }
    ],
    "stats": {
        "goals_created": <number>,
        "goals_updated": <number>,
        "goals_completed": <number>
    }
}

Be concise but capture essential information. Only include meaningful points - skip trivial greetings or small talk.
Include discussions even if no decision was made - they could be useful context for future sessions.
If there's nothing meaningful to extract, return {"goals": [], "general_insights": [], "stats": {"goals_created": 0, "goals_updated": 0, "goals_completed": 0}}`

const summarizationPromptFormat = `Summarize these %d session context points into a concise summary.
Date range: %s to %s

CONTEXT POINTS:
%s

Combine similar points, remove redundancy, keep the most important:
- Major goal achievements
- Significant decisions
- Ongoing action items (not completed ones)
- Key user preferences discovered
- Important blockers or challenges

Return a JSON object:
{
    "context_points": [
        {
            "type": "goal_progress|decision|action_item|insight|preference|blocker",
            "content": "Summarized context point"
        }
    ]
}

Be concise but comprehensive. Aim for 5-15 key points maximum.`

type extractedPoint struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type extractedGoal struct {
	GoalName  string           `json:"goal_name"`
	GoalID    string           `json:"goal_id"`
	KeyPoints []extractedPoint `json:"key_points"`
}

type extractionResult struct {
	Goals           []extractedGoal  `json:"goals"`
	GeneralInsights []extractedPoint `json:"general_insights"`
	Stats           struct {
		GoalsCreated   int `json:"goals_created"`
		GoalsUpdated   int `json:"goals_updated"`
		GoalsCompleted int `json:"goals_completed"`
	} `json:"stats"`
}

// ExtractAndSave distills the user's recent conversation into a session
// context record. Returns the record ID, or empty when there was nothing
// worth extracting. Provider and parse failures count as nothing to
// extract; only storage errors propagate.
func (s *Service) ExtractAndSave(ctx context.Context, userID, sessionID string) (string, error) {
	messages, err := s.repo.RecentMessages(ctx, userID, s.cfg.TranscriptFetchLimit, "")
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	if len(messages) < s.cfg.MinMessages {
		s.logger.Info("Skipping context extraction, insufficient messages", "user_id", userID)
		return "", nil
	}

	transcript := buildTranscript(messages, s.cfg.TranscriptCharLimit)

	// Model-side failures mean there is simply nothing to save this round.
	// The transcript is still there and the next trigger retries.
	provider, err := s.providers.Default()
	if err != nil {
		s.logger.Error("Context extraction provider unavailable", "user_id", userID, "error", err)
		return "", nil
	}

	resp, err := provider.Send(ctx, llm.SendRequest{
		Message:   fmt.Sprintf(extractionPromptFormat, transcript),
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		s.logger.Error("Context extraction completion failed", "user_id", userID, "error", err)
		return "", nil
	}

	raw, ok := extractJSON(resp.Content)
	if !ok {
		s.logger.Warn("Context extraction response contained no JSON object", "user_id", userID)
		return "", nil
	}
	var extracted extractionResult
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		s.logger.Warn("Context extraction returned malformed JSON", "user_id", userID, "error", err)
		return "", nil
	}

	now := s.now()
	var points []domain.ContextPoint
	for _, goal := range extracted.Goals {
		name := goal.GoalName
		if name == "" {
			name = "Unknown goal"
		}
		for _, point := range goal.KeyPoints {
			pointType := domain.ContextPointType(point.Type)
			if !pointType.Valid() {
				continue
			}
			points = append(points, domain.ContextPoint{
				Type:          pointType,
				Content:       fmt.Sprintf("[%s] %s", name, point.Content),
				RelatedGoalID: goal.GoalID,
				Timestamp:     now,
			})
		}
	}
	for _, insight := range extracted.GeneralInsights {
		pointType := domain.ContextPointType(insight.Type)
		if !pointType.Valid() {
			continue
		}
		points = append(points, domain.ContextPoint{
			Type:      pointType,
			Content:   insight.Content,
			Timestamp: now,
		})
	}

	if len(points) == 0 {
		s.logger.Info("No context points extracted", "user_id", userID)
		return "", nil
	}

	endedAt := now
	record := &domain.SessionContext{
		UserID:         userID,
		SessionID:      sessionID,
		CreatedAt:      now,
		EndedAt:        &endedAt,
		ContextPoints:  points,
		MessageCount:   len(messages),
		GoalsCreated:   extracted.Stats.GoalsCreated,
		GoalsUpdated:   extracted.Stats.GoalsUpdated,
		GoalsCompleted: extracted.Stats.GoalsCompleted,
	}
	if err := s.repo.InsertSessionContext(ctx, record); err != nil {
		return "", fmt.Errorf("save session context: %w", err)
	}
	s.logger.Info("Saved session context", "context_id", record.ID, "user_id", userID, "points", len(points))

	if err := s.maybeSummarize(ctx, userID); err != nil {
		// The backlog stays intact; the next extraction retries.
		s.logger.Error("Rolling summarization failed", "user_id", userID, "error", err)
	}
	return record.ID, nil
}

// maybeSummarize merges the oldest batch of session records into one summary
// once the unsummarized backlog reaches the threshold.
func (s *Service) maybeSummarize(ctx context.Context, userID string) error {
	unsummarized, err := s.repo.UnsummarizedContexts(ctx, userID)
	if err != nil {
		return fmt.Errorf("load unsummarized contexts: %w", err)
	}
	if len(unsummarized) < s.cfg.SummarizeThreshold {
		return nil
	}
	s.logger.Info("Summarization triggered", "user_id", userID, "unsummarized", len(unsummarized))

	batch := unsummarized[:s.cfg.SummarizeBatch]

	var (
		lines          []string
		totalMessages  int
		totalCreated   int
		totalUpdated   int
		totalCompleted int
		sessionIDs     []string
		recordIDs      []string
	)
	for _, sc := range batch {
		totalMessages += sc.MessageCount
		totalCreated += sc.GoalsCreated
		totalUpdated += sc.GoalsUpdated
		totalCompleted += sc.GoalsCompleted
		sessionIDs = append(sessionIDs, sc.SessionID)
		recordIDs = append(recordIDs, sc.ID)
		for _, point := range sc.ContextPoints {
			lines = append(lines, fmt.Sprintf("- [%s] %s", point.Type, point.Content))
		}
	}
	if len(lines) == 0 {
		return nil
	}

	rangeStart := batch[0].CreatedAt
	rangeEnd := batch[len(batch)-1].CreatedAt
	if ended := batch[len(batch)-1].EndedAt; ended != nil {
		rangeEnd = *ended
	}

	provider, err := s.providers.Default()
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}
	resp, err := provider.Send(ctx, llm.SendRequest{
		Message: fmt.Sprintf(summarizationPromptFormat,
			len(batch), rangeStart.Format("2006-01-02"), rangeEnd.Format("2006-01-02"),
			strings.Join(lines, "\n")),
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("summarization completion: %w", err)
	}

	raw, ok := extractJSON(resp.Content)
	if !ok {
		return fmt.Errorf("summarization response contained no JSON object")
	}
	var parsed struct {
		ContextPoints []extractedPoint `json:"context_points"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("parse summarization JSON: %w", err)
	}

	var points []domain.ContextPoint
	for _, point := range parsed.ContextPoints {
		pointType := domain.ContextPointType(point.Type)
		if !pointType.Valid() {
			continue
		}
		points = append(points, domain.ContextPoint{
			Type:      pointType,
			Content:   point.Content,
			Timestamp: rangeEnd,
		})
	}
	if len(points) == 0 {
		return fmt.Errorf("summarization produced no valid context points")
	}

	summary := &domain.SessionContext{
		UserID:               userID,
		SessionID:            "summary-" + uuid.NewString(),
		CreatedAt:            rangeStart,
		EndedAt:              &rangeEnd,
		ContextPoints:        points,
		MessageCount:         totalMessages,
		GoalsCreated:         totalCreated,
		GoalsUpdated:         totalUpdated,
		GoalsCompleted:       totalCompleted,
		IsSummary:            true,
		SummarizedSessionIDs: sessionIDs,
	}
	if err := s.repo.InsertSessionContext(ctx, summary); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	// Originals go away only after the summary is durable.
	if _, err := s.repo.DeleteSessionContexts(ctx, recordIDs); err != nil {
		return fmt.Errorf("delete summarized contexts: %w", err)
	}

	s.logger.Info("Created rolling summary", "summary_id", summary.ID, "user_id", userID, "replaced", len(batch))
	return nil
}

// LoadUserContext returns the user's summaries followed by their most recent
// sessions, all in chronological order.
func (s *Service) LoadUserContext(ctx context.Context, userID string) ([]*domain.SessionContext, error) {
	summaries, err := s.repo.SummaryContexts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	recent, err := s.repo.RecentUnsummarizedContexts(ctx, userID, s.cfg.RecentContextLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent contexts: %w", err)
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return append(summaries, recent...), nil
}

// FirstTimeUser reports whether the user has neither context records nor
// chat history. Errors resolve to false so returning users are never shown
// onboarding by mistake.
func (s *Service) FirstTimeUser(ctx context.Context, userID string) bool {
	contexts, err := s.repo.CountContexts(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to count contexts", "user_id", userID, "error", err)
		return false
	}
	if contexts > 0 {
		return false
	}
	messages, err := s.repo.CountMessages(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to count messages", "user_id", userID, "error", err)
		return false
	}
	return messages == 0
}

func buildTranscript(messages []*domain.Message, charLimit int) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(string(msg.Role)))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	transcript := b.String()
	if len(transcript) > charLimit {
		transcript = transcript[:charLimit]
	}
	return transcript
}

// extractJSON returns the first balanced top-level JSON object in s. Braces
// inside string literals are ignored.
func extractJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
