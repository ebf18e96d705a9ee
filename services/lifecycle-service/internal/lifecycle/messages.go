package lifecycle

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

type Category string

const (
	CategoryAppointment Category = "appointment"
	CategoryReminder    Category = "reminder"
)

type Event string

const (
	EventBooked      Event = "booked"
	EventConfirmed   Event = "confirmed"
	EventCancelled   Event = "cancelled"
	EventStarted     Event = "started"
	EventCompleted   Event = "completed"
	EventNoShow      Event = "no_show"
	EventStatusSet   Event = "status_updated"
	EventReminder24h Event = "reminder_24h"
	EventReminder2h  Event = "reminder_2h"
)

// Notification is one message addressed to one user.
type Notification struct {
	UserID        string
	Category      Category
	Event         Event
	AppointmentID string
	Message       string
}

const timeLayout = "Mon, 02 Jan 2006 at 15:04 MST"

// Formatter renders the notification contract. Content depends only on the
// appointment and the event.
type Formatter struct {
	loc *time.Location
}

func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{loc: loc}
}

func (f *Formatter) when(a model.Appointment) string {
	return a.ScheduledAt.In(f.loc).Format(timeLayout)
}

// ForTransition returns the notifications implied by moving a to status to.
// a is the appointment before the change. reason is appended where the
// transition was made by a person.
func (f *Formatter) ForTransition(a model.Appointment, to model.Status, reason string) []Notification {
	var out []Notification
	add := func(userID string, event Event, msg string) {
		if userID == "" {
			return
		}
		out = append(out, Notification{
			UserID:        userID,
			Category:      CategoryAppointment,
			Event:         event,
			AppointmentID: a.ID,
			Message:       msg,
		})
	}
	note := ""
	if r := strings.TrimSpace(reason); r != "" {
		note = " Note: " + r
	}

	switch to {
	case model.StatusConfirmed:
		add(a.ClientID, EventConfirmed, fmt.Sprintf("Your %s with %s on %s at %s has been confirmed.%s",
			typeLabel(a), workerLabel(a), f.when(a), facilityLabel(a), note))
	case model.StatusCancelled:
		msg := fmt.Sprintf("Your %s scheduled for %s has been cancelled.", typeLabel(a), f.when(a))
		if r := strings.TrimSpace(reason); r != "" {
			msg += " Reason: " + r
		}
		add(a.ClientID, EventCancelled, msg)
	case model.StatusInProgress:
		add(a.ClientID, EventStarted, fmt.Sprintf("Your %s with %s is starting now.%s", typeLabel(a), workerLabel(a), note))
		add(a.WorkerID, EventStarted, fmt.Sprintf("Your %s with %s is starting now.%s", typeLabel(a), clientLabel(a), note))
	case model.StatusCompleted:
		add(a.ClientID, EventCompleted, fmt.Sprintf("Thank you for attending your %s with %s. Your visit is now complete.%s",
			typeLabel(a), workerLabel(a), note))
		add(a.WorkerID, EventCompleted, fmt.Sprintf("Your %s with %s has been marked as completed.%s", typeLabel(a), clientLabel(a), note))
	case model.StatusNoShow:
		add(a.WorkerID, EventNoShow, fmt.Sprintf("%s did not attend the %s scheduled for %s.%s",
			upperFirst(clientLabel(a)), typeLabel(a), f.when(a), note))
	default:
		add(a.ClientID, EventStatusSet, fmt.Sprintf("Your %s on %s is now marked as %s.%s",
			typeLabel(a), f.when(a), statusLabel(to), note))
	}
	return out
}

// ForReminder renders a reminder to the client. now is used for the
// remaining-time phrase.
func (f *Formatter) ForReminder(a model.Appointment, kind ReminderKind, now time.Time) []Notification {
	if a.ClientID == "" {
		return nil
	}
	event := EventReminder2h
	if kind == ReminderLong {
		event = EventReminder24h
	}
	return []Notification{{
		UserID:        a.ClientID,
		Category:      CategoryReminder,
		Event:         event,
		AppointmentID: a.ID,
		Message: fmt.Sprintf("Reminder: your %s is in %s, on %s with %s at %s.",
			typeLabel(a), humanizeRemaining(a.ScheduledAt.Sub(now)), f.when(a), workerLabel(a), facilityLabel(a)),
	}}
}

// ForBooking renders the new-booking notices: the assigned worker learns who
// booked, the client learns the booking awaits approval.
func (f *Formatter) ForBooking(a model.Appointment) []Notification {
	var out []Notification
	if a.WorkerID != "" {
		out = append(out, Notification{
			UserID:        a.WorkerID,
			Category:      CategoryAppointment,
			Event:         EventBooked,
			AppointmentID: a.ID,
			Message:       fmt.Sprintf("New %s booked by %s for %s.", typeLabel(a), clientLabel(a), f.when(a)),
		})
	}
	if a.ClientID != "" {
		out = append(out, Notification{
			UserID:        a.ClientID,
			Category:      CategoryAppointment,
			Event:         EventBooked,
			AppointmentID: a.ID,
			Message: fmt.Sprintf("Your %s on %s at %s has been booked and is pending approval.",
				typeLabel(a), f.when(a), facilityLabel(a)),
		})
	}
	return out
}

func typeLabel(a model.Appointment) string {
	t := strings.TrimSpace(strings.ReplaceAll(a.Type, "_", " "))
	if t == "" {
		return "appointment"
	}
	return strings.ToLower(t) + " appointment"
}

func workerLabel(a model.Appointment) string {
	if strings.TrimSpace(a.WorkerName) == "" {
		return "your health worker"
	}
	return a.WorkerName
}

func clientLabel(a model.Appointment) string {
	if strings.TrimSpace(a.ClientName) == "" {
		return "your client"
	}
	return a.ClientName
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func facilityLabel(a model.Appointment) string {
	if strings.TrimSpace(a.FacilityName) == "" {
		return "the facility"
	}
	return a.FacilityName
}

func statusLabel(s model.Status) string {
	return strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
}

func humanizeRemaining(d time.Duration) string {
	if d <= 0 {
		return "a moment"
	}
	if d >= time.Hour {
		h := int(d.Round(time.Hour) / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	m := int(d.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
