package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

type GuardConfig struct {
	Timeout   time.Duration
	QueueSize int
	Workers   int
	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
	OnResult        func(result string)
}

// Guard makes a Dispatcher safe to call from the scheduler: Notify only
// enqueues, workers deliver with a per-call timeout, and a circuit breaker
// stops hammering a failing backend.
type Guard struct {
	next    Dispatcher
	logger  *slog.Logger
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
	report  func(string)

	mu     sync.RWMutex
	closed bool
	queue  chan queued
	wg     sync.WaitGroup
}

// queued keeps the caller's span so delivery stays in the same trace.
type queued struct {
	span trace.SpanContext
	n    lifecycle.Notification
}

func NewGuard(next Dispatcher, logger *slog.Logger, cfg GuardConfig) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.OnResult == nil {
		cfg.OnResult = func(string) {}
	}

	failures := cfg.BreakerFailures
	g := &Guard{
		next:    next,
		logger:  logger,
		timeout: cfg.Timeout,
		report:  cfg.OnResult,
		queue:   make(chan queued, cfg.QueueSize),
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "notify",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("notification breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
	}
	for i := 0; i < cfg.Workers; i++ {
		g.wg.Add(1)
		go g.work()
	}
	return g
}

// Notify enqueues n and returns immediately. It fails only when the queue is
// full or the guard is closed.
func (g *Guard) Notify(ctx context.Context, n lifecycle.Notification) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrDispatcherClosed
	}
	select {
	case g.queue <- queued{span: trace.SpanContextFromContext(ctx), n: n}:
		return nil
	default:
		g.report(ResultDropped)
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered or ctx to end.
func (g *Guard) Close(ctx context.Context) error {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.queue)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) work() {
	defer g.wg.Done()
	for q := range g.queue {
		g.deliver(q)
	}
}

func (g *Guard) deliver(q queued) {
	n := q.n
	_, err := g.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(trace.ContextWithSpanContext(context.Background(), q.span), g.timeout)
		defer cancel()
		return struct{}{}, g.next.Notify(ctx, n)
	})
	switch {
	case err == nil:
		g.report(ResultSent)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.report(ResultRejected)
		g.logger.Warn("notification rejected", "err", err, "user_id", n.UserID, "appointment_id", n.AppointmentID)
	default:
		g.report(ResultFailed)
		g.logger.Warn("notification failed", "err", err, "user_id", n.UserID, "appointment_id", n.AppointmentID)
	}
}
