package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

func TestPlannerLongReminderWindow(t *testing.T) {
	p := NewPlanner(DefaultRules())
	a := appt(model.StatusScheduled)
	fireAt := base.Add(-24 * time.Hour)

	require.Empty(t, p.Due(a, fireAt.Add(-16*time.Minute)))
	require.Equal(t, []ReminderKind{ReminderLong}, p.Due(a, fireAt.Add(-15*time.Minute)))
	require.Equal(t, []ReminderKind{ReminderLong}, p.Due(a, fireAt))
	require.Equal(t, []ReminderKind{ReminderLong}, p.Due(a, fireAt.Add(15*time.Minute)))
	require.Empty(t, p.Due(a, fireAt.Add(16*time.Minute)))
}

func TestPlannerShortReminderGatedByOwnFlag(t *testing.T) {
	p := NewPlanner(DefaultRules())
	a := appt(model.StatusConfirmed)
	now := base.Add(-2 * time.Hour)

	// The long flag must not suppress the short reminder.
	a.ReminderSent = true
	require.Equal(t, []ReminderKind{ReminderShort}, p.Due(a, now))

	a = MarkReminderSent(a, ReminderShort)
	require.True(t, a.Reminder2hSent)
	require.Empty(t, p.Due(a, now))
	require.Empty(t, p.Due(a, now.Add(10*time.Minute)))
}

func TestPlannerSkipsStatusesWithoutReminders(t *testing.T) {
	p := NewPlanner(DefaultRules())
	for _, s := range []model.Status{model.StatusInProgress, model.StatusCancelled, model.StatusCompleted, model.StatusNoShow, model.StatusRescheduled} {
		require.Empty(t, p.Due(appt(s), base.Add(-24*time.Hour)), "status %s", s)
	}
}

func TestCandidateRange(t *testing.T) {
	p := NewPlanner(DefaultRules())
	now := base

	start, end := p.CandidateRange(ReminderShort, now)
	require.True(t, start.Equal(now.Add(105*time.Minute)))
	require.True(t, end.Equal(now.Add(135*time.Minute)))

	start, end = p.CandidateRange(ReminderLong, now)
	require.True(t, start.Equal(now.Add(24*time.Hour-15*time.Minute)))
	require.True(t, end.Equal(now.Add(24*time.Hour+15*time.Minute)))
}
