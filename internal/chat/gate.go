package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/store"
)

// Verdict is the outcome of one access check.
type Verdict struct {
	CanAccess     bool         `json:"can_access"`
	Reason        string       `json:"reason"`
	UserPhase     domain.Phase `json:"user_phase"`
	NextAvailable *time.Time   `json:"next_available,omitempty"`
	MeetingID     string       `json:"meeting_id,omitempty"`
}

// GateConfig sets the meeting window boundaries.
type GateConfig struct {
	WindowBefore    time.Duration
	WindowAfter     time.Duration
	DefaultDuration time.Duration
	LookAhead       time.Duration
}

// DefaultGateConfig returns the production window boundaries.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		WindowBefore:    30 * time.Minute,
		WindowAfter:     60 * time.Minute,
		DefaultDuration: 30 * time.Minute,
		LookAhead:       2 * time.Hour,
	}
}

// Gate decides whether a user may talk to the coach right now. Goal-setting
// users always may; tracking users only inside a meeting window.
type Gate struct {
	meetings store.MeetingStore
	cfg      GateConfig
	now      func() time.Time
}

// NewGate creates an access gate over the meeting store.
func NewGate(meetings store.MeetingStore, cfg GateConfig) *Gate {
	return &Gate{meetings: meetings, cfg: cfg, now: time.Now}
}

// Check evaluates chat access for a user.
func (g *Gate) Check(ctx context.Context, user *domain.User) (*Verdict, error) {
	switch user.Phase {
	case domain.PhaseGoalSetting:
		return &Verdict{
			CanAccess: true,
			Reason:    "Goal setting phase - unlimited coach access",
			UserPhase: user.Phase,
		}, nil

	case domain.PhaseTracking:
		return g.checkTracking(ctx, user)

	default:
		return &Verdict{
			CanAccess: false,
			Reason:    "Invalid user phase",
			UserPhase: user.Phase,
		}, nil
	}
}

func (g *Gate) checkTracking(ctx context.Context, user *domain.User) (*Verdict, error) {
	now := g.now()

	candidates, err := g.meetings.MeetingsInRange(ctx, user.ID, now.Add(-g.cfg.WindowBefore), now.Add(g.cfg.LookAhead))
	if err != nil {
		return nil, fmt.Errorf("query candidate meetings: %w", err)
	}

	for _, meeting := range candidates {
		duration := time.Duration(meeting.DurationMinutes) * time.Minute
		if duration <= 0 {
			duration = g.cfg.DefaultDuration
		}
		open := meeting.ScheduledAt.Add(-g.cfg.WindowBefore)
		close := meeting.ScheduledAt.Add(duration + g.cfg.WindowAfter)

		if !now.Before(open) && !now.After(close) {
			return &Verdict{
				CanAccess: true,
				Reason:    "Active meeting window",
				UserPhase: user.Phase,
				MeetingID: meeting.ID,
			}, nil
		}
	}

	verdict := &Verdict{
		CanAccess: false,
		Reason:    "Chat is only available during scheduled meetings in tracking phase",
		UserPhase: user.Phase,
	}

	next, err := g.meetings.NextScheduledMeeting(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("query next meeting: %w", err)
	}
	if next != nil {
		available := next.ScheduledAt.Add(-g.cfg.WindowBefore)
		verdict.NextAvailable = &available
	}
	return verdict, nil
}
