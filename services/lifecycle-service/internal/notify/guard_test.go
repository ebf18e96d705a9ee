package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
)

type results struct {
	mu  sync.Mutex
	got []string
}

func (r *results) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *results) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func note(user string) lifecycle.Notification {
	return lifecycle.Notification{UserID: user, Category: lifecycle.CategoryAppointment, Message: "hi"}
}

func TestGuardDeliversQueuedNotifications(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	next := DispatcherFunc(func(_ context.Context, n lifecycle.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, n.UserID)
		return nil
	})
	res := &results{}
	g := NewGuard(next, discard(), GuardConfig{Workers: 2, OnResult: res.add})

	for _, u := range []string{"a", "b", "c"} {
		require.NoError(t, g.Notify(context.Background(), note(u)))
	}
	require.NoError(t, g.Close(context.Background()))

	require.ElementsMatch(t, []string{"a", "b", "c"}, delivered)
	require.Equal(t, []string{ResultSent, ResultSent, ResultSent}, res.all())
	require.ErrorIs(t, g.Notify(context.Background(), note("d")), ErrDispatcherClosed)
}

func TestGuardRejectsWhenQueueFull(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	next := DispatcherFunc(func(context.Context, lifecycle.Notification) error {
		entered <- struct{}{}
		<-release
		return nil
	})
	g := NewGuard(next, discard(), GuardConfig{Workers: 1, QueueSize: 1})

	require.NoError(t, g.Notify(context.Background(), note("busy")))
	<-entered
	require.NoError(t, g.Notify(context.Background(), note("queued")))
	require.ErrorIs(t, g.Notify(context.Background(), note("overflow")), ErrQueueFull)

	close(release)
	require.NoError(t, g.Close(context.Background()))
}

func TestGuardBoundsSlowDispatch(t *testing.T) {
	next := DispatcherFunc(func(ctx context.Context, _ lifecycle.Notification) error {
		<-ctx.Done()
		return ctx.Err()
	})
	res := &results{}
	g := NewGuard(next, discard(), GuardConfig{Workers: 1, Timeout: 10 * time.Millisecond, OnResult: res.add})

	start := time.Now()
	require.NoError(t, g.Notify(context.Background(), note("slow")))
	require.NoError(t, g.Close(context.Background()))
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, []string{ResultFailed}, res.all())
}

func TestGuardBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	next := DispatcherFunc(func(context.Context, lifecycle.Notification) error {
		calls++
		return errors.New("smtp down")
	})
	res := &results{}
	g := NewGuard(next, discard(), GuardConfig{
		Workers:         1,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
		OnResult:        res.add,
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, g.Notify(context.Background(), note("u")))
	}
	require.NoError(t, g.Close(context.Background()))

	require.Equal(t, 2, calls)
	require.Equal(t, []string{ResultFailed, ResultFailed, ResultRejected, ResultRejected}, res.all())
}
