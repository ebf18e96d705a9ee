package main

import (
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/carecycle/libs/config"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
)

type settings struct {
	TickInterval    time.Duration
	Rules           lifecycle.Rules
	Location        *time.Location
	NotifyTimeout   time.Duration
	NotifyQueueSize int
	NotifyWorkers   int
	LeaseTTL        time.Duration
	RateLimit       int
	DBMaxConns      int
}

// loadSettings reads the lifecycle tuning knobs. Malformed values fall back
// to their defaults with a warning so a typo cannot keep the service down.
func loadSettings(logger *slog.Logger) settings {
	def := lifecycle.DefaultRules()
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := config.Duration(key, fallback)
		if err != nil {
			logger.Warn("invalid config value, using default", "err", err, "default", fallback.String())
		}
		return d
	}
	integer := func(key string, fallback int) int {
		n, err := config.Int(key, fallback)
		if err != nil {
			logger.Warn("invalid config value, using default", "err", err, "default", fallback)
		}
		return n
	}

	s := settings{
		TickInterval: duration("LIFECYCLE_TICK_INTERVAL", 15*time.Minute),
		Rules: lifecycle.Rules{
			ScheduledNoShowGrace: duration("LIFECYCLE_SCHEDULED_NO_SHOW_GRACE", def.ScheduledNoShowGrace),
			ConfirmedNoShowGrace: duration("LIFECYCLE_CONFIRMED_NO_SHOW_GRACE", def.ConfirmedNoShowGrace),
			CompletionGrace:      duration("LIFECYCLE_COMPLETION_GRACE", def.CompletionGrace),
			StartWindow:          duration("LIFECYCLE_START_WINDOW", def.StartWindow),
			DefaultDuration:      duration("LIFECYCLE_DEFAULT_DURATION", def.DefaultDuration),
			LongReminderLead:     duration("REMINDER_LONG_LEAD", def.LongReminderLead),
			ShortReminderLead:    duration("REMINDER_SHORT_LEAD", def.ShortReminderLead),
			ReminderTolerance:    duration("REMINDER_TOLERANCE", def.ReminderTolerance),
		},
		Location:        time.UTC,
		NotifyTimeout:   duration("NOTIFY_TIMEOUT", 5*time.Second),
		NotifyQueueSize: integer("NOTIFY_QUEUE_SIZE", 256),
		NotifyWorkers:   integer("NOTIFY_WORKERS", 4),
		LeaseTTL:        duration("TICK_LEASE_TTL", 10*time.Minute),
		RateLimit:       integer("RATE_LIMIT_PER_MINUTE", 60),
		DBMaxConns:      integer("DB_MAX_CONNS", 10),
	}

	if s.TickInterval <= 0 {
		logger.Warn("tick interval must be positive, using default", "default", "15m")
		s.TickInterval = 15 * time.Minute
	}
	if err := s.Rules.Validate(); err != nil {
		logger.Warn("invalid lifecycle rules, using defaults", "err", err)
		s.Rules = def
	}
	if name := config.String("LOCATION", "UTC"); name != "UTC" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			logger.Warn("unknown LOCATION, using UTC", "err", err)
		} else {
			s.Location = loc
		}
	}
	return s
}
