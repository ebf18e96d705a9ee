package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

var ErrMissingSchedule = errors.New("appointment has no scheduled time")

// Rule names, also used as metric and log labels.
const (
	RuleOverdue    = "overdue"
	RuleStarting   = "starting"
	RuleCompleting = "completing"
)

// Decision is the outcome of evaluating one appointment. The zero value means
// no automatic transition applies.
type Decision struct {
	Rule string
	From model.Status
	To   model.Status
}

func (d Decision) Applies() bool {
	return d.To != ""
}

type rule struct {
	name string
	from model.Status
	to   model.Status
	due  func(r Rules, a model.Appointment, now time.Time) bool
}

// automaticRules is evaluated top to bottom and the first match wins, so the
// overdue checks must stay ahead of the starting check.
var automaticRules = []rule{
	{
		name: RuleOverdue, from: model.StatusScheduled, to: model.StatusNoShow,
		due: func(r Rules, a model.Appointment, now time.Time) bool {
			return now.After(a.ScheduledAt.Add(r.ScheduledNoShowGrace))
		},
	},
	{
		name: RuleOverdue, from: model.StatusConfirmed, to: model.StatusNoShow,
		due: func(r Rules, a model.Appointment, now time.Time) bool {
			return now.After(a.ScheduledAt.Add(r.ConfirmedNoShowGrace))
		},
	},
	{
		name: RuleStarting, from: model.StatusConfirmed, to: model.StatusInProgress,
		due: func(r Rules, a model.Appointment, now time.Time) bool {
			return !now.Before(a.ScheduledAt.Add(-r.StartWindow)) && !now.After(a.ScheduledAt.Add(r.StartWindow))
		},
	},
	{
		name: RuleCompleting, from: model.StatusInProgress, to: model.StatusCompleted,
		due: func(r Rules, a model.Appointment, now time.Time) bool {
			return now.After(a.EndsAt(r.DefaultDuration).Add(r.CompletionGrace))
		},
	},
}

// Engine decides automatic transitions. It does no I/O.
type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// Evaluate returns at most one transition for a at time now. Terminal
// appointments never match.
func (e *Engine) Evaluate(a model.Appointment, now time.Time) (Decision, error) {
	if a.Status.IsTerminal() {
		return Decision{}, nil
	}
	if !a.Status.Valid() {
		return Decision{}, fmt.Errorf("appointment %s: unknown status %q", a.ID, a.Status)
	}
	if a.ScheduledAt.IsZero() {
		return Decision{}, fmt.Errorf("appointment %s: %w", a.ID, ErrMissingSchedule)
	}
	for _, r := range automaticRules {
		if r.from != a.Status {
			continue
		}
		if r.due(e.rules, a, now) {
			return Decision{Rule: r.name, From: a.Status, To: r.to}, nil
		}
	}
	return Decision{}, nil
}

// ApplyTransition moves a to status `to` at time now. CompletedAt is set
// only for COMPLETED, CancelledAt and CancellationReason only for CANCELLED.
// The input is not modified.
func ApplyTransition(a model.Appointment, to model.Status, reason string, now time.Time) model.Appointment {
	out := a
	out.Status = to

	out.CompletedAt = nil
	if to == model.StatusCompleted {
		ts := now
		out.CompletedAt = &ts
	}

	out.CancelledAt = nil
	out.CancellationReason = ""
	if to == model.StatusCancelled {
		ts := now
		out.CancelledAt = &ts
		out.CancellationReason = reason
	}
	return out
}
