package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/notify"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type bookedEvent struct {
	AppointmentID string `json:"appointment_id"`
}

// NewBookedHandler sends the new-booking notices for
// booking.appointment.booked.v1 events. Malformed events and appointments
// that no longer exist are logged and skipped.
func NewBookedHandler(store storage.Store, dispatcher notify.Dispatcher, formatter *lifecycle.Formatter, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt bookedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid booked event", "err", err)
			return nil
		}
		evt.AppointmentID = strings.TrimSpace(evt.AppointmentID)
		if evt.AppointmentID == "" {
			logger.Error("booked event missing appointment_id")
			return nil
		}

		appt, err := store.FindByID(ctx, evt.AppointmentID)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn("booked appointment not found", "appointment_id", evt.AppointmentID)
			return nil
		}
		if err != nil {
			return err
		}

		for _, n := range formatter.ForBooking(appt) {
			if err := dispatcher.Notify(ctx, n); err != nil {
				logger.Warn("booking notification not dispatched", "err", err, "appointment_id", appt.ID, "user_id", n.UserID)
			}
		}
		return nil
	}
}
