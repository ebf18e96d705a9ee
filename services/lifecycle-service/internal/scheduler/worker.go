package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	otelx "github.com/md-rashed-zaman/carecycle/libs/otel"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lease"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/notify"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observer receives scheduler metrics. *metrics.Collector implements it.
type Observer interface {
	ObserveTick(outcome string, took time.Duration)
	Transition(from, to, source string)
	Reminder(kind string)
	AppointmentError(stage string)
}

type nopObserver struct{}

func (nopObserver) ObserveTick(string, time.Duration) {}
func (nopObserver) Transition(string, string, string) {}
func (nopObserver) Reminder(string)                   {}
func (nopObserver) AppointmentError(string)           {}

// Tick outcomes reported to Observer.ObserveTick.
const (
	TickCompleted = "completed"
	TickSkipped   = "skipped"
	TickPanicked  = "panicked"
)

const SourceAutomatic = "automatic"

type WorkerConfig struct {
	Interval  time.Duration
	Rules     lifecycle.Rules
	Formatter *lifecycle.Formatter
	Lease     lease.Lease
	Observer  Observer
	Now       func() time.Time
}

// Worker is the periodic lifecycle driver. It owns no appointment state;
// every tick recomputes eligibility from the store and the wall clock.
type Worker struct {
	store      storage.Store
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	engine     *lifecycle.Engine
	planner    *lifecycle.Planner
	formatter  *lifecycle.Formatter
	lease      lease.Lease
	observer   Observer
	interval   time.Duration
	now        func() time.Time
	tracer     trace.Tracer

	lastTick atomic.Int64
}

func NewWorker(store storage.Store, dispatcher notify.Dispatcher, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Rules == (lifecycle.Rules{}) {
		cfg.Rules = lifecycle.DefaultRules()
	}
	if cfg.Formatter == nil {
		cfg.Formatter = lifecycle.NewFormatter(time.UTC)
	}
	if cfg.Lease == nil {
		cfg.Lease = lease.NewLocal()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		engine:     lifecycle.NewEngine(cfg.Rules),
		planner:    lifecycle.NewPlanner(cfg.Rules),
		formatter:  cfg.Formatter,
		lease:      cfg.Lease,
		observer:   cfg.Observer,
		interval:   cfg.Interval,
		now:        cfg.Now,
		tracer:     otelx.Tracer("lifecycle-scheduler"),
	}
}

// Run ticks once immediately and then every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("lifecycle scheduler started", "interval", w.interval.String())
	w.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runTick(ctx)
		}
	}
}

// LastTick is when the scheduler last finished a tick, or skipped one because
// another replica held the lease. Zero before the first tick.
func (w *Worker) LastTick() time.Time {
	ns := w.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (w *Worker) Interval() time.Duration {
	return w.interval
}

// runTick is the failure boundary between a tick and the ticker: nothing it
// does can stop later ticks.
func (w *Worker) runTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("lifecycle tick panicked", "panic", fmt.Sprint(r))
			w.observer.ObserveTick(TickPanicked, time.Since(start))
		}
	}()

	release, ok, err := w.lease.TryAcquire(ctx)
	if err != nil {
		w.logger.Error("lifecycle tick lease failed", "err", err)
		w.observer.ObserveTick(TickSkipped, 0)
		return
	}
	if !ok {
		w.logger.Debug("lifecycle tick lease held elsewhere")
		w.observer.ObserveTick(TickSkipped, 0)
		w.lastTick.Store(w.now().UnixNano())
		return
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn("lifecycle tick lease release failed", "err", err)
		}
	}()

	w.Tick(ctx, w.now().UTC())
}

// Tick runs one full evaluation cycle at now and returns its summary.
func (w *Worker) Tick(ctx context.Context, now time.Time) Summary {
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "lifecycle.tick")
	defer span.End()

	sum := Summary{Now: now}
	candidates := w.collect(ctx, now, &sum)
	sum.Candidates = len(candidates)

	for _, a := range candidates {
		o := w.processSafely(ctx, a, now)
		sum.add(o)
		switch o.Kind {
		case OutcomeFailed:
			w.observer.AppointmentError(o.Stage)
			w.logger.Error("lifecycle appointment failed", "err", o.Err, "appointment_id", o.AppointmentID, "stage", o.Stage)
		case OutcomeConflict:
			w.logger.Debug("lifecycle write dropped on conflict", "appointment_id", o.AppointmentID)
		}
	}

	sum.Took = time.Since(start)
	span.SetAttributes(
		attribute.Int("lifecycle.candidates", sum.Candidates),
		attribute.Int("lifecycle.transitioned", sum.Transitioned),
		attribute.Int("lifecycle.failed", sum.Failed),
	)
	w.observer.ObserveTick(TickCompleted, sum.Took)
	w.lastTick.Store(w.now().UnixNano())
	w.logger.Info("lifecycle tick completed", sum.logArgs()...)
	return sum
}

type candidateQuery struct {
	name string
	run  func(ctx context.Context) ([]model.Appointment, error)
}

// collect runs every candidate query and de-duplicates by id, keeping the
// first copy. A failing query is logged and the others still run.
func (w *Worker) collect(ctx context.Context, now time.Time, sum *Summary) []model.Appointment {
	rules := w.engine.Rules()
	queries := []candidateQuery{
		{"overdue_scheduled", func(ctx context.Context) ([]model.Appointment, error) {
			return w.store.FindByStatusBefore(ctx, model.StatusScheduled, now.Add(-rules.ScheduledNoShowGrace))
		}},
		{"overdue_confirmed", func(ctx context.Context) ([]model.Appointment, error) {
			return w.store.FindByStatusBefore(ctx, model.StatusConfirmed, now.Add(-rules.ConfirmedNoShowGrace))
		}},
		{"starting", func(ctx context.Context) ([]model.Appointment, error) {
			return w.store.FindByStatusBetween(ctx, model.StatusConfirmed, now.Add(-rules.StartWindow), now.Add(rules.StartWindow))
		}},
		{"in_progress", func(ctx context.Context) ([]model.Appointment, error) {
			return w.store.FindByStatus(ctx, model.StatusInProgress)
		}},
	}
	for _, kind := range lifecycle.ReminderKinds {
		start, end := w.planner.CandidateRange(kind, now)
		queries = append(queries, candidateQuery{"reminder_" + string(kind), func(ctx context.Context) ([]model.Appointment, error) {
			return w.store.FindDueForReminder(ctx, start, end)
		}})
	}

	seen := map[string]bool{}
	var out []model.Appointment
	for _, q := range queries {
		appts, err := w.runQuery(ctx, q)
		if err != nil {
			sum.QueryFailures++
			w.observer.AppointmentError(StageQuery)
			w.logger.Error("lifecycle candidate query failed", "err", err, "query", q.name)
			continue
		}
		for _, a := range appts {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	return out
}

func (w *Worker) runQuery(ctx context.Context, q candidateQuery) (appts []model.Appointment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query panicked: %v", r)
		}
	}()
	return q.run(ctx)
}

func (w *Worker) processSafely(ctx context.Context, a model.Appointment, now time.Time) (o Outcome) {
	ctx, span := w.tracer.Start(ctx, "lifecycle.appointment", trace.WithAttributes(
		attribute.String("appointment.id", a.ID),
		attribute.String("appointment.status", string(a.Status)),
	))
	defer func() {
		if r := recover(); r != nil {
			o = Outcome{AppointmentID: a.ID, Kind: OutcomeFailed, Stage: StagePanic, Err: fmt.Errorf("panic: %v", r)}
		}
		var spanErr error
		if o.Kind == OutcomeFailed {
			spanErr = o.Err
		}
		otelx.EndSpan(span, spanErr)
	}()
	return w.process(ctx, a, now)
}

func (w *Worker) process(ctx context.Context, a model.Appointment, now time.Time) Outcome {
	out := Outcome{AppointmentID: a.ID, Kind: OutcomeUnchanged}

	decision, err := w.engine.Evaluate(a, now)
	if err != nil {
		return failed(out, StageEvaluate, err)
	}
	if decision.Applies() {
		next := lifecycle.ApplyTransition(a, decision.To, "", now)
		if _, err := w.store.Save(ctx, next); err != nil {
			return w.saveFailed(out, err)
		}
		w.observer.Transition(string(decision.From), string(decision.To), SourceAutomatic)
		out.Kind = OutcomeTransitioned
		w.dispatch(ctx, &out, w.formatter.ForTransition(a, decision.To, ""))
		return out
	}

	due := w.planner.Due(a, now)
	if len(due) == 0 {
		return out
	}
	// The flag is persisted before sending, so a lost notification is
	// preferred over a duplicate one.
	next := a
	for _, kind := range due {
		next = lifecycle.MarkReminderSent(next, kind)
	}
	if _, err := w.store.Save(ctx, next); err != nil {
		return w.saveFailed(out, err)
	}
	out.Kind = OutcomeReminded
	for _, kind := range due {
		w.observer.Reminder(string(kind))
		w.dispatch(ctx, &out, w.formatter.ForReminder(a, kind, now))
	}
	return out
}

// saveFailed drops the write on a lost compare-and-swap; the next tick
// re-derives eligibility from the fresh row.
func (w *Worker) saveFailed(out Outcome, err error) Outcome {
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
		out.Kind = OutcomeConflict
		out.Err = err
		return out
	}
	return failed(out, StageSave, err)
}

func (w *Worker) dispatch(ctx context.Context, out *Outcome, ns []lifecycle.Notification) {
	for _, n := range ns {
		if err := w.dispatcher.Notify(ctx, n); err != nil {
			out.NotifyFailures++
			w.observer.AppointmentError(StageNotify)
			w.logger.Warn("lifecycle notification not dispatched", "err", err, "appointment_id", n.AppointmentID, "user_id", n.UserID, "event", string(n.Event))
			continue
		}
		out.Notified++
	}
}

func failed(out Outcome, stage string, err error) Outcome {
	out.Kind = OutcomeFailed
	out.Stage = stage
	out.Err = err
	return out
}
