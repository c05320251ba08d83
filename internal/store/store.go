// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
)

// TranscriptStore is append-only chat message persistence, queryable by
// recency with pagination.
type TranscriptStore interface {
	// AppendMessage persists a message and fills in its ID and timestamp.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// RecentMessages returns the most recent messages for a user in
	// chronological order, optionally scoped to a meeting.
	RecentMessages(ctx context.Context, userID string, limit int, meetingID string) ([]*domain.Message, error)

	// MessageHistory returns one page of messages (chronological within the
	// page) plus the total count, newest pages first.
	MessageHistory(ctx context.Context, userID string, page, pageSize int, meetingID string) ([]*domain.Message, int, error)

	// CountMessages returns the number of persisted messages for a user.
	CountMessages(ctx context.Context, userID string) (int, error)
}

// MeetingStore is read access to a user's scheduled meetings for the access gate.
type MeetingStore interface {
	// MeetingsInRange returns scheduled or active meetings whose scheduled_at
	// falls within [from, to], ordered by scheduled_at ascending.
	MeetingsInRange(ctx context.Context, userID string, from, to time.Time) ([]*domain.Meeting, error)

	// NextScheduledMeeting returns the earliest scheduled meeting strictly
	// after the given time, or nil if none exists.
	NextScheduledMeeting(ctx context.Context, userID string, after time.Time) (*domain.Meeting, error)
}

// SessionContextStore persists per-session context records and their summaries.
type SessionContextStore interface {
	// InsertSessionContext persists a session context and fills in its ID.
	InsertSessionContext(ctx context.Context, sc *domain.SessionContext) error

	// UnsummarizedContexts returns all non-summary contexts for a user,
	// ordered by creation time ascending.
	UnsummarizedContexts(ctx context.Context, userID string) ([]*domain.SessionContext, error)

	// SummaryContexts returns all summary contexts for a user, ordered by
	// creation time ascending.
	SummaryContexts(ctx context.Context, userID string) ([]*domain.SessionContext, error)

	// RecentUnsummarizedContexts returns the most recent non-summary contexts,
	// newest first.
	RecentUnsummarizedContexts(ctx context.Context, userID string, limit int) ([]*domain.SessionContext, error)

	// DeleteSessionContexts removes the contexts with the given record IDs and
	// returns how many were deleted.
	DeleteSessionContexts(ctx context.Context, ids []string) (int64, error)

	// ContextHistory returns one page of contexts (newest first) plus the
	// total count.
	ContextHistory(ctx context.Context, userID string, page, pageSize int) ([]*domain.SessionContext, int, error)

	// CountContexts returns the number of context records for a user,
	// summaries included.
	CountContexts(ctx context.Context, userID string) (int, error)
}

// GoalStore persists user goals for the goal tool executor.
type GoalStore interface {
	// InsertGoal persists a goal and fills in its ID and timestamps.
	InsertGoal(ctx context.Context, goal *domain.Goal) error

	// GetGoal retrieves a goal owned by the user, or nil if not found.
	GetGoal(ctx context.Context, userID, goalID string) (*domain.Goal, error)

	// UpdateGoal overwrites a goal's mutable fields.
	UpdateGoal(ctx context.Context, goal *domain.Goal) error

	// ActiveGoals returns the user's non-archived goals, most recently
	// updated first.
	ActiveGoals(ctx context.Context, userID string, limit int) ([]*domain.Goal, error)
}

// UserStore provides user lookup for identity resolution.
type UserStore interface {
	// GetUser retrieves a user by ID, or nil if not found.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByToken retrieves a user by API token, or nil if not found.
	GetUserByToken(ctx context.Context, token string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateUserProvider sets the user's preferred LLM backend. An empty
	// value clears the preference back to the service default.
	UpdateUserProvider(ctx context.Context, userID, provider string) error
}

// Repository is the full persistence surface consumed by the chat core.
type Repository interface {
	TranscriptStore
	MeetingStore
	SessionContextStore
	GoalStore
	UserStore

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
