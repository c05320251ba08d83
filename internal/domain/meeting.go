package domain

import (
	"time"
)

// MeetingStatus is a scheduled meeting's lifecycle state.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingActive    MeetingStatus = "active"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

// Meeting is a scheduled coaching check-in. In the tracking phase chat access
// is granted only inside a meeting's window.
type Meeting struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          MeetingStatus `json:"status"`
}

// Window returns the interval during which this meeting grants chat access:
// [scheduled_at - before, scheduled_at + duration + after].
func (m *Meeting) Window(before, after time.Duration) (time.Time, time.Time) {
	duration := time.Duration(m.DurationMinutes) * time.Minute
	return m.ScheduledAt.Add(-before), m.ScheduledAt.Add(duration + after)
}
