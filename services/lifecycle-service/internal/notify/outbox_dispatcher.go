package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/carecycle/libs/db"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/outbox"
)

// OutboxDispatcher writes the notification to the in-app feed and enqueues a
// notification event for push/email delivery, in one transaction.
type OutboxDispatcher struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewOutboxDispatcher(pool *db.Pool, outboxRepo *outbox.Repository) *OutboxDispatcher {
	return &OutboxDispatcher{pool: pool, outbox: outboxRepo}
}

type notificationPayload struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Category       string `json:"category"`
	Event          string `json:"event"`
	AppointmentID  string `json:"appointment_id,omitempty"`
	Message        string `json:"message"`
	CreatedAt      string `json:"created_at"`
}

func (d *OutboxDispatcher) Notify(ctx context.Context, n lifecycle.Notification) error {
	id := uuid.NewString()
	createdAt := time.Now().UTC()
	evt, err := outbox.NewEvent("notification", id, outbox.NotificationRequested, notificationPayload{
		NotificationID: id,
		UserID:         n.UserID,
		Category:       string(n.Category),
		Event:          string(n.Event),
		AppointmentID:  n.AppointmentID,
		Message:        n.Message,
		CreatedAt:      createdAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return d.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO notifications (id, user_id, category, event, appointment_id, message, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7)
		`, id, n.UserID, string(n.Category), string(n.Event), n.AppointmentID, n.Message, createdAt)
		if err != nil {
			return err
		}
		_, err = d.outbox.Insert(ctx, tx, evt)
		return err
	})
}
