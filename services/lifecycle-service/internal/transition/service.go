package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/md-rashed-zaman/carecycle/libs/auth"
	otelx "github.com/md-rashed-zaman/carecycle/libs/otel"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/lifecycle"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/notify"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidReason     = errors.New("invalid reason")
	ErrInvalidTransition = errors.New("transition not allowed")
	ErrForbidden         = errors.New("not allowed to change this appointment")
)

const (
	SourceManual    = "manual"
	maxReasonLength = 500
)

// Recorder receives manual transition metrics.
type Recorder interface {
	Transition(from, to, source string)
}

type Request struct {
	AppointmentID string
	Status        string
	Reason        string
	Actor         auth.Identity
}

type Service struct {
	store      storage.Store
	dispatcher notify.Dispatcher
	formatter  *lifecycle.Formatter
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
	tracer     trace.Tracer
}

type Config struct {
	Formatter *lifecycle.Formatter
	Recorder  Recorder
	Now       func() time.Time
}

func NewService(store storage.Store, dispatcher notify.Dispatcher, logger *slog.Logger, cfg Config) *Service {
	if cfg.Formatter == nil {
		cfg.Formatter = lifecycle.NewFormatter(time.UTC)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		formatter:  cfg.Formatter,
		logger:     logger,
		recorder:   cfg.Recorder,
		now:        cfg.Now,
		tracer:     otelx.Tracer("lifecycle-transition"),
	}
}

// Transition forces an appointment into req.Status outside the periodic
// cycle. Requesting the current status is a no-op that returns the
// appointment unchanged and sends nothing. A concurrent change surfaces as
// storage.ErrConflict.
func (s *Service) Transition(ctx context.Context, req Request) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.transition", trace.WithAttributes(
		attribute.String("appointment.id", req.AppointmentID),
		attribute.String("appointment.target_status", req.Status),
	))
	defer func() { otelx.EndSpan(span, err) }()

	to, err := model.ParseStatus(req.Status)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	// Reschedules are written by the booking flow together with the new slot.
	if to == model.StatusRescheduled {
		return model.Appointment{}, fmt.Errorf("%w: %s is set by rescheduling, not by a status change", ErrInvalidStatus, to)
	}
	reason := strings.TrimSpace(req.Reason)
	if n := utf8.RuneCountInString(reason); n > maxReasonLength {
		return model.Appointment{}, fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidReason, n, maxReasonLength)
	}

	cur, err := s.store.FindByID(ctx, req.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := authorize(req.Actor, cur, to); err != nil {
		return model.Appointment{}, err
	}
	if cur.Status == to {
		return cur, nil
	}
	if cur.Status.IsTerminal() {
		return model.Appointment{}, fmt.Errorf("%w: appointment is already %s", ErrInvalidTransition, cur.Status)
	}

	next := lifecycle.ApplyTransition(cur, to, reason, s.now().UTC())
	saved, err := s.store.Save(ctx, next)
	if err != nil {
		return model.Appointment{}, err
	}
	if s.recorder != nil {
		s.recorder.Transition(string(cur.Status), string(to), SourceManual)
	}
	s.logger.Info("appointment transitioned", "appointment_id", saved.ID, "from", string(cur.Status), "to", string(to), "actor_id", req.Actor.UserID, "actor_role", req.Actor.Role)

	for _, n := range s.formatter.ForTransition(cur, to, reason) {
		if err := s.dispatcher.Notify(ctx, n); err != nil {
			s.logger.Warn("manual transition notification not dispatched", "err", err, "appointment_id", saved.ID, "user_id", n.UserID)
		}
	}
	return saved, nil
}

// Cancel is Transition to CANCELLED.
func (s *Service) Cancel(ctx context.Context, appointmentID, reason string, actor auth.Identity) (model.Appointment, error) {
	return s.Transition(ctx, Request{
		AppointmentID: appointmentID,
		Status:        string(model.StatusCancelled),
		Reason:        reason,
		Actor:         actor,
	})
}

// authorize lets workers and admins make any change; clients may only cancel
// appointments they booked.
func authorize(actor auth.Identity, a model.Appointment, to model.Status) error {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleWorker:
		return nil
	case auth.RoleClient:
		if a.ClientID == actor.UserID && to == model.StatusCancelled {
			return nil
		}
	}
	return ErrForbidden
}
