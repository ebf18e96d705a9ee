package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/carecycle/libs/auth"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/storage"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/transition"
)

// Transitioner is the manual transition API behind the HTTP surface.
type Transitioner interface {
	Transition(ctx context.Context, req transition.Request) (model.Appointment, error)
}

type AppointmentHandler struct {
	svc    Transitioner
	logger *slog.Logger
}

func NewAppointmentHandler(svc Transitioner, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type appointmentResponse struct {
	AppointmentID      string `json:"appointment_id"`
	Status             string `json:"status"`
	ScheduledAt        string `json:"scheduled_at"`
	CompletedAt        string `json:"completed_at,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	Version            int64  `json:"version"`
}

// Transition handles POST /api/v1/appointments/transition.
func (h *AppointmentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Status = strings.TrimSpace(req.Status)
	if req.AppointmentID == "" || req.Status == "" {
		http.Error(w, "appointment_id and status required", http.StatusBadRequest)
		return
	}
	h.apply(w, r, transition.Request{
		AppointmentID: req.AppointmentID,
		Status:        req.Status,
		Reason:        req.Reason,
	})
}

// Cancel handles POST /api/v1/appointments/cancel.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	h.apply(w, r, transition.Request{
		AppointmentID: req.AppointmentID,
		Status:        string(model.StatusCancelled),
		Reason:        req.Reason,
	})
}

func (h *AppointmentHandler) apply(w http.ResponseWriter, r *http.Request, req transition.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	req.Actor = actor

	appt, err := h.svc.Transition(r.Context(), req)
	if err != nil {
		status, msg := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("appointment transition failed", "err", err, "appointment_id", req.AppointmentID)
		}
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "appointment not found"
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "appointment was modified concurrently, retry"
	case errors.Is(err, transition.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, transition.ErrInvalidStatus), errors.Is(err, transition.ErrInvalidReason):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, transition.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "failed to update appointment"
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:      a.ID,
		Status:             string(a.Status),
		ScheduledAt:        a.ScheduledAt.UTC().Format(time.RFC3339),
		CancellationReason: a.CancellationReason,
		Version:            a.Version,
	}
	if a.CompletedAt != nil {
		resp.CompletedAt = a.CompletedAt.UTC().Format(time.RFC3339)
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
