package chat

import (
	"context"
	"testing"
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeMeetingStore serves a fixed meeting list.
type fakeMeetingStore struct {
	meetings []*domain.Meeting
}

func (f *fakeMeetingStore) MeetingsInRange(_ context.Context, userID string, from, to time.Time) ([]*domain.Meeting, error) {
	var out []*domain.Meeting
	for _, m := range f.meetings {
		if m.UserID != userID {
			continue
		}
		if m.Status != domain.MeetingScheduled && m.Status != domain.MeetingActive {
			continue
		}
		if m.ScheduledAt.Before(from) || m.ScheduledAt.After(to) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMeetingStore) NextScheduledMeeting(_ context.Context, userID string, after time.Time) (*domain.Meeting, error) {
	var next *domain.Meeting
	for _, m := range f.meetings {
		if m.UserID != userID || m.Status != domain.MeetingScheduled || !m.ScheduledAt.After(after) {
			continue
		}
		if next == nil || m.ScheduledAt.Before(next.ScheduledAt) {
			next = m
		}
	}
	return next, nil
}

func newTestGate(meetings []*domain.Meeting, now time.Time) *Gate {
	g := NewGate(&fakeMeetingStore{meetings: meetings}, DefaultGateConfig())
	g.now = func() time.Time { return now }
	return g
}

func trackingUser() *domain.User {
	return &domain.User{ID: "u1", Phase: domain.PhaseTracking}
}

func TestGateGoalSettingAlwaysAllowed(t *testing.T) {
	g := newTestGate(nil, time.Now())
	verdict, err := g.Check(context.Background(), &domain.User{ID: "u1", Phase: domain.PhaseGoalSetting})
	require.NoError(t, err)
	require.True(t, verdict.CanAccess)
	require.Empty(t, verdict.MeetingID)
	require.Nil(t, verdict.NextAvailable)
}

func TestGateTrackingInsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	meeting := &domain.Meeting{
		ID: "m1", UserID: "u1",
		ScheduledAt:     now.Add(10 * time.Minute),
		DurationMinutes: 30,
		Status:          domain.MeetingScheduled,
	}
	g := newTestGate([]*domain.Meeting{meeting}, now)

	verdict, err := g.Check(context.Background(), trackingUser())
	require.NoError(t, err)
	require.True(t, verdict.CanAccess)
	require.Equal(t, "m1", verdict.MeetingID)
	require.Equal(t, "Active meeting window", verdict.Reason)
}

func TestGateTrackingWindowBoundaries(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	meeting := &domain.Meeting{
		ID: "m1", UserID: "u1",
		ScheduledAt:     scheduled,
		DurationMinutes: 30,
		Status:          domain.MeetingScheduled,
	}

	cases := []struct {
		name   string
		now    time.Time
		access bool
	}{
		{"window open boundary", scheduled.Add(-30 * time.Minute), true},
		{"just before window", scheduled.Add(-31 * time.Minute), false},
		{"during meeting", scheduled.Add(15 * time.Minute), true},
		{"window close boundary", scheduled.Add(90 * time.Minute), true},
		{"just after window", scheduled.Add(91 * time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGate([]*domain.Meeting{meeting}, tc.now)
			verdict, err := g.Check(context.Background(), trackingUser())
			require.NoError(t, err)
			require.Equal(t, tc.access, verdict.CanAccess)
		})
	}
}

func TestGateTrackingZeroDurationUsesDefault(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	meeting := &domain.Meeting{
		ID: "m1", UserID: "u1",
		ScheduledAt: scheduled,
		Status:      domain.MeetingScheduled,
	}

	// Default 30m duration keeps the window open until +90m.
	g := newTestGate([]*domain.Meeting{meeting}, scheduled.Add(85*time.Minute))
	verdict, err := g.Check(context.Background(), trackingUser())
	require.NoError(t, err)
	require.True(t, verdict.CanAccess)
}

func TestGateTrackingDeniedWithNextAvailable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next := &domain.Meeting{
		ID: "m2", UserID: "u1",
		ScheduledAt:     now.Add(5 * time.Hour),
		DurationMinutes: 30,
		Status:          domain.MeetingScheduled,
	}
	g := newTestGate([]*domain.Meeting{next}, now)

	verdict, err := g.Check(context.Background(), trackingUser())
	require.NoError(t, err)
	require.False(t, verdict.CanAccess)
	require.NotNil(t, verdict.NextAvailable)
	// Access opens 30 minutes before the next meeting.
	require.Equal(t, now.Add(5*time.Hour).Add(-30*time.Minute), *verdict.NextAvailable)
}

func TestGateTrackingDeniedNoMeetings(t *testing.T) {
	g := newTestGate(nil, time.Now())
	verdict, err := g.Check(context.Background(), trackingUser())
	require.NoError(t, err)
	require.False(t, verdict.CanAccess)
	require.Nil(t, verdict.NextAvailable)
}

func TestGateCancelledMeetingIgnored(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	meeting := &domain.Meeting{
		ID: "m1", UserID: "u1",
		ScheduledAt:     now.Add(10 * time.Minute),
		DurationMinutes: 30,
		Status:          domain.MeetingCancelled,
	}
	g := newTestGate([]*domain.Meeting{meeting}, now)

	verdict, err := g.Check(context.Background(), trackingUser())
	require.NoError(t, err)
	require.False(t, verdict.CanAccess)
}

func TestGateInvalidPhase(t *testing.T) {
	g := newTestGate(nil, time.Now())
	verdict, err := g.Check(context.Background(), &domain.User{ID: "u1", Phase: "paused"})
	require.NoError(t, err)
	require.False(t, verdict.CanAccess)
	require.Equal(t, "Invalid user phase", verdict.Reason)
}
