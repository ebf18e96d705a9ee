package scheduler

import (
	"time"
)

type OutcomeKind string

const (
	OutcomeUnchanged    OutcomeKind = "unchanged"
	OutcomeTransitioned OutcomeKind = "transitioned"
	OutcomeReminded     OutcomeKind = "reminded"
	OutcomeConflict     OutcomeKind = "conflict"
	OutcomeFailed       OutcomeKind = "failed"
)

// Failure stages, also used as metric labels.
const (
	StageQuery    = "query"
	StageEvaluate = "evaluate"
	StageSave     = "save"
	StageNotify   = "notify"
	StagePanic    = "panic"
)

// Outcome is what happened to one candidate appointment during a tick.
// NotifyFailures counts dispatch errors, which never change Kind.
type Outcome struct {
	AppointmentID  string
	Kind           OutcomeKind
	Stage          string
	Err            error
	Notified       int
	NotifyFailures int
}

// Summary aggregates one tick.
type Summary struct {
	Now            time.Time
	Candidates     int
	Transitioned   int
	Reminded       int
	Unchanged      int
	Conflicts      int
	Failed         int
	QueryFailures  int
	Notified       int
	NotifyFailures int
	Took           time.Duration
}

func (s *Summary) add(o Outcome) {
	switch o.Kind {
	case OutcomeTransitioned:
		s.Transitioned++
	case OutcomeReminded:
		s.Reminded++
	case OutcomeConflict:
		s.Conflicts++
	case OutcomeFailed:
		s.Failed++
	default:
		s.Unchanged++
	}
	s.Notified += o.Notified
	s.NotifyFailures += o.NotifyFailures
}

func (s Summary) logArgs() []any {
	return []any{
		"now", s.Now.Format(time.RFC3339),
		"candidates", s.Candidates,
		"transitioned", s.Transitioned,
		"reminded", s.Reminded,
		"unchanged", s.Unchanged,
		"conflicts", s.Conflicts,
		"failed", s.Failed,
		"query_failures", s.QueryFailures,
		"notified", s.Notified,
		"notify_failures", s.NotifyFailures,
		"took_ms", s.Took.Milliseconds(),
	}
}
