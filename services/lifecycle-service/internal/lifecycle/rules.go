package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// Rules holds every threshold the engine and planner use. All of them are
// deployment-tunable; DefaultRules returns the clinical defaults.
type Rules struct {
	// Unconfirmed bookings expire the moment they are overdue by more than
	// this (default 0). Confirmed bookings get ConfirmedNoShowGrace because a
	// worker already vouched for them.
	ScheduledNoShowGrace time.Duration
	ConfirmedNoShowGrace time.Duration

	CompletionGrace time.Duration
	StartWindow     time.Duration
	DefaultDuration time.Duration

	LongReminderLead  time.Duration
	ShortReminderLead time.Duration
	ReminderTolerance time.Duration
}

func DefaultRules() Rules {
	return Rules{
		ScheduledNoShowGrace: 0,
		ConfirmedNoShowGrace: 15 * time.Minute,
		CompletionGrace:      15 * time.Minute,
		StartWindow:          5 * time.Minute,
		DefaultDuration:      30 * time.Minute,
		LongReminderLead:     24 * time.Hour,
		ShortReminderLead:    2 * time.Hour,
		ReminderTolerance:    15 * time.Minute,
	}
}

// Validate rejects combinations that would make reminder windows overlap or
// thresholds negative.
func (r Rules) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"scheduled no-show grace": r.ScheduledNoShowGrace,
		"confirmed no-show grace": r.ConfirmedNoShowGrace,
		"completion grace":        r.CompletionGrace,
		"start window":            r.StartWindow,
		"reminder tolerance":      r.ReminderTolerance,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if r.DefaultDuration <= 0 {
		errs = append(errs, errors.New("default duration must be positive"))
	}
	if r.ShortReminderLead <= r.ReminderTolerance {
		errs = append(errs, errors.New("short reminder lead must exceed the reminder tolerance"))
	}
	if r.LongReminderLead-r.ReminderTolerance <= r.ShortReminderLead+r.ReminderTolerance {
		errs = append(errs, errors.New("long and short reminder windows overlap"))
	}
	return errors.Join(errs...)
}
