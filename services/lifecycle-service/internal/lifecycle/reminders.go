package lifecycle

import (
	"time"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

type ReminderKind string

const (
	ReminderLong  ReminderKind = "24h"
	ReminderShort ReminderKind = "2h"
)

var ReminderKinds = []ReminderKind{ReminderLong, ReminderShort}

// Planner decides which reminders are due. Each kind is gated by its own
// persisted flag so it fires at most once per appointment.
type Planner struct {
	rules Rules
}

func NewPlanner(rules Rules) *Planner {
	return &Planner{rules: rules}
}

func (p *Planner) Lead(kind ReminderKind) time.Duration {
	if kind == ReminderLong {
		return p.rules.LongReminderLead
	}
	return p.rules.ShortReminderLead
}

// CandidateRange is the scheduledAt range whose appointments may be due for
// kind at time now.
func (p *Planner) CandidateRange(kind ReminderKind, now time.Time) (start, end time.Time) {
	center := now.Add(p.Lead(kind))
	return center.Add(-p.rules.ReminderTolerance), center.Add(p.rules.ReminderTolerance)
}

// Due lists the reminders that should fire for a at now.
func (p *Planner) Due(a model.Appointment, now time.Time) []ReminderKind {
	if !a.Status.AcceptsReminders() || a.ScheduledAt.IsZero() {
		return nil
	}
	var due []ReminderKind
	for _, kind := range ReminderKinds {
		if ReminderSent(a, kind) {
			continue
		}
		fireAt := a.ScheduledAt.Add(-p.Lead(kind))
		if now.Before(fireAt.Add(-p.rules.ReminderTolerance)) || now.After(fireAt.Add(p.rules.ReminderTolerance)) {
			continue
		}
		due = append(due, kind)
	}
	return due
}

func ReminderSent(a model.Appointment, kind ReminderKind) bool {
	if kind == ReminderLong {
		return a.ReminderSent
	}
	return a.Reminder2hSent
}

// MarkReminderSent returns a copy of a with the flag for kind set.
func MarkReminderSent(a model.Appointment, kind ReminderKind) model.Appointment {
	if kind == ReminderLong {
		a.ReminderSent = true
	} else {
		a.Reminder2hSent = true
	}
	return a
}
