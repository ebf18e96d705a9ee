package notify

import (
	"context"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
)

// Dispatcher delivers one notification. Callers treat delivery as best
// effort: an error is logged and counted, never propagated into the
// transition that produced the notification.
type Dispatcher interface {
	Notify(ctx context.Context, n lifecycle.Notification) error
}

type DispatcherFunc func(ctx context.Context, n lifecycle.Notification) error

func (f DispatcherFunc) Notify(ctx context.Context, n lifecycle.Notification) error {
	return f(ctx, n)
}

// Results reported to Config.OnResult.
const (
	ResultSent     = "sent"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
	ResultDropped  = "dropped"
)
