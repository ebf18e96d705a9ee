package model

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"scheduled":   StatusScheduled,
		"In-Progress": StatusInProgress,
		" no show ":   StatusNoShow,
		"CANCELLED":   StatusCancelled,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		if err != nil {
			t.Fatalf("ParseStatus(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
		if s.AcceptsReminders() {
			t.Fatalf("%s should not accept reminders", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusConfirmed, StatusInProgress} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if StatusInProgress.AcceptsReminders() {
		t.Fatal("IN_PROGRESS should not accept reminders")
	}
}

func TestEndsAtUsesFallbackDuration(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := Appointment{ScheduledAt: start}
	if got := a.EndsAt(30 * time.Minute); !got.Equal(start.Add(30 * time.Minute)) {
		t.Fatalf("unexpected end: %s", got)
	}
	a.DurationMinutes = 45
	if got := a.EndsAt(30 * time.Minute); !got.Equal(start.Add(45 * time.Minute)) {
		t.Fatalf("unexpected end: %s", got)
	}
}
