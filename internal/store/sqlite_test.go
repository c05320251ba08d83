package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		err := s.AppendMessage(ctx, &domain.Message{
			UserID:    "u1",
			SessionID: "sess-1",
			Role:      role,
			Content:   string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	msgs, err := s.RecentMessages(ctx, "u1", 3, "")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	// Chronological order, most recent three.
	require.Equal(t, "c", msgs[0].Content)
	require.Equal(t, "d", msgs[1].Content)
	require.Equal(t, "e", msgs[2].Content)

	count, err := s.CountMessages(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestRecentMessagesMeetingFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.AppendMessage(ctx, &domain.Message{
		UserID: "u1", Role: domain.RoleUser, Content: "general", Timestamp: base,
	}))
	require.NoError(t, s.AppendMessage(ctx, &domain.Message{
		UserID: "u1", MeetingID: "m1", Role: domain.RoleUser, Content: "in meeting", Timestamp: base.Add(time.Minute),
	}))

	msgs, err := s.RecentMessages(ctx, "u1", 10, "m1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "in meeting", msgs[0].Content)
}

func TestMessageHistoryPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		err := s.AppendMessage(ctx, &domain.Message{
			UserID:    "u1",
			Role:      domain.RoleUser,
			Content:   "msg",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	page1, total, err := s.MessageHistory(ctx, "u1", 1, 10, "")
	require.NoError(t, err)
	require.Equal(t, 25, total)
	require.Len(t, page1, 10)

	page3, total, err := s.MessageHistory(ctx, "u1", 3, 10, "")
	require.NoError(t, err)
	require.Equal(t, 25, total)
	require.Len(t, page3, 5)

	// Page 1 is the newest slice; within the page order is chronological.
	require.True(t, page1[0].Timestamp.Before(page1[9].Timestamp))
	require.True(t, page3[0].Timestamp.Before(page1[0].Timestamp))
}

func TestAppendMessageRejectsInvalidRole(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendMessage(context.Background(), &domain.Message{
		UserID: "u1", Role: "system", Content: "nope",
	})
	require.Error(t, err)
}

func TestMeetingsInRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.InsertMeeting(ctx, &domain.Meeting{
		UserID: "u1", ScheduledAt: now.Add(time.Hour), DurationMinutes: 30, Status: domain.MeetingScheduled,
	}))
	require.NoError(t, s.InsertMeeting(ctx, &domain.Meeting{
		UserID: "u1", ScheduledAt: now.Add(3 * time.Hour), DurationMinutes: 30, Status: domain.MeetingScheduled,
	}))
	require.NoError(t, s.InsertMeeting(ctx, &domain.Meeting{
		UserID: "u1", ScheduledAt: now.Add(90 * time.Minute), DurationMinutes: 30, Status: domain.MeetingCancelled,
	}))

	meetings, err := s.MeetingsInRange(ctx, "u1", now, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	require.Equal(t, domain.MeetingScheduled, meetings[0].Status)

	next, err := s.NextScheduledMeeting(ctx, "u1", now.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, next)
	require.WithinDuration(t, now.Add(3*time.Hour), next.ScheduledAt, time.Millisecond)

	none, err := s.NextScheduledMeeting(ctx, "u1", now.Add(4*time.Hour))
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestSessionContextLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-24 * time.Hour)

	for i := 0; i < 4; i++ {
		sc := &domain.SessionContext{
			UserID:    "u1",
			SessionID: "sess",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			ContextPoints: []domain.ContextPoint{
				{Type: domain.ContextDecision, Content: "decided something", Timestamp: base},
			},
			MessageCount: i + 1,
		}
		require.NoError(t, s.InsertSessionContext(ctx, sc))
		require.NotEmpty(t, sc.ID)
	}

	unsummarized, err := s.UnsummarizedContexts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unsummarized, 4)
	require.Equal(t, 1, unsummarized[0].MessageCount)
	require.Equal(t, 4, unsummarized[3].MessageCount)

	recent, err := s.RecentUnsummarizedContexts(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, 4, recent[0].MessageCount)

	// Replace the two oldest with a summary record.
	ids := []string{unsummarized[0].ID, unsummarized[1].ID}
	summary := &domain.SessionContext{
		UserID:    "u1",
		SessionID: "summary",
		CreatedAt: unsummarized[0].CreatedAt,
		ContextPoints: []domain.ContextPoint{
			{Type: domain.ContextInsight, Content: "merged insight", Timestamp: base},
		},
		IsSummary:            true,
		SummarizedSessionIDs: []string{unsummarized[0].SessionID, unsummarized[1].SessionID},
	}
	require.NoError(t, s.InsertSessionContext(ctx, summary))

	deleted, err := s.DeleteSessionContexts(ctx, ids)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	summaries, err := s.SummaryContexts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.True(t, summaries[0].IsSummary)
	require.Equal(t, []string{"sess", "sess"}, summaries[0].SummarizedSessionIDs)

	total, err := s.CountContexts(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, total)

	page, pageTotal, err := s.ContextHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 3, pageTotal)
	require.Len(t, page, 3)
	// Newest first.
	require.Equal(t, 4, page[0].MessageCount)
}

func TestGoalCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goal := &domain.Goal{
		UserID:  "u1",
		Title:   "Run a marathon",
		Content: "Train 4x per week",
		Phase:   domain.GoalPhaseDraft,
		Tags:    []string{"fitness"},
	}
	require.NoError(t, s.InsertGoal(ctx, goal))
	require.NotEmpty(t, goal.ID)

	got, err := s.GetGoal(ctx, "u1", goal.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Run a marathon", got.Title)
	require.Equal(t, []string{"fitness"}, got.Tags)

	// Ownership scoped.
	other, err := s.GetGoal(ctx, "u2", goal.ID)
	require.NoError(t, err)
	require.Nil(t, other)

	got.Phase = domain.GoalPhaseActive
	got.Milestones = []domain.Milestone{{Title: "First 10k", Completed: true}}
	require.NoError(t, s.UpdateGoal(ctx, got))

	updated, err := s.GetGoal(ctx, "u1", goal.ID)
	require.NoError(t, err)
	require.Equal(t, domain.GoalPhaseActive, updated.Phase)
	require.Len(t, updated.Milestones, 1)
	require.True(t, updated.Milestones[0].Completed)

	archived := &domain.Goal{UserID: "u1", Title: "Old", Content: "", Phase: domain.GoalPhaseArchived}
	require.NoError(t, s.InsertGoal(ctx, archived))

	active, err := s.ActiveGoals(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, goal.ID, active[0].ID)
}

func TestUpdateGoalNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateGoal(context.Background(), &domain.Goal{
		ID: "missing", UserID: "u1", Title: "x", Phase: domain.GoalPhaseDraft,
	})
	require.Error(t, err)
}

func TestUserUpsertAndTokenLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &domain.User{
		ID:          "u1",
		Email:       "u1@example.com",
		Name:        "Alex",
		Phase:       domain.PhaseGoalSetting,
		LLMProvider: "anthropic",
		APIToken:    "tok-123",
	}
	require.NoError(t, s.UpsertUser(ctx, user))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, domain.PhaseGoalSetting, got.Phase)

	byToken, err := s.GetUserByToken(ctx, "tok-123")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	require.Equal(t, "u1", byToken.ID)

	missing, err := s.GetUserByToken(ctx, "tok-999")
	require.NoError(t, err)
	require.Nil(t, missing)

	empty, err := s.GetUserByToken(ctx, "")
	require.NoError(t, err)
	require.Nil(t, empty)

	user.Phase = domain.PhaseTracking
	require.NoError(t, s.UpsertUser(ctx, user))

	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.PhaseTracking, got.Phase)
}

func TestUpdateUserProvider(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &domain.User{
		ID: "u1", Email: "u1@example.com", Name: "Alex", Phase: domain.PhaseGoalSetting,
	}))

	require.NoError(t, s.UpdateUserProvider(ctx, "u1", "openai"))
	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "openai", got.LLMProvider)

	// Empty value clears the preference.
	require.NoError(t, s.UpdateUserProvider(ctx, "u1", ""))
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, got.LLMProvider)

	require.Error(t, s.UpdateUserProvider(ctx, "missing", "openai"))
}
