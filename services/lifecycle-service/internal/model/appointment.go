package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is an appointment lifecycle state.
//
//	SCHEDULED → CONFIRMED → IN_PROGRESS → COMPLETED
//	SCHEDULED | CONFIRMED → NO_SHOW (overdue)
//	any non-terminal → CANCELLED (manual)
type Status string

const (
	StatusScheduled   Status = "SCHEDULED"
	StatusConfirmed   Status = "CONFIRMED"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusNoShow      Status = "NO_SHOW"
	StatusRescheduled Status = "RESCHEDULED"
)

var allStatuses = []Status{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
	StatusRescheduled,
}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the automatic engine may never move s again.
// RESCHEDULED counts as terminal here: a reschedule is represented outside
// this service.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// AcceptsReminders reports whether reminders may still fire in s.
func (s Status) AcceptsReminders() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// ParseStatus accepts any casing and "-" or " " in place of "_".
func ParseStatus(raw string) (Status, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	s := Status(norm)
	if !s.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", raw)
	}
	return s, nil
}

const DefaultDurationMinutes = 30

type Appointment struct {
	ID string

	ClientID     string
	ClientName   string
	FacilityID   string
	FacilityName string
	// WorkerID stays empty until a health worker is assigned.
	WorkerID   string
	WorkerName string

	Type            string
	ScheduledAt     time.Time
	DurationMinutes int

	Status         Status
	ReminderSent   bool
	Reminder2hSent bool

	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string

	// Version is bumped on every successful save and used for compare-and-swap.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) HasWorker() bool {
	return a.WorkerID != ""
}

// Duration falls back to fallback when DurationMinutes is unset.
func (a Appointment) Duration(fallback time.Duration) time.Duration {
	if a.DurationMinutes <= 0 {
		return fallback
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// EndsAt is the nominal end of the visit.
func (a Appointment) EndsAt(fallback time.Duration) time.Time {
	return a.ScheduledAt.Add(a.Duration(fallback))
}
