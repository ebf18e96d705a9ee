package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/carecycle/libs/auth"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/storage"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/transition"
)

type fakeTransitioner struct {
	got  transition.Request
	err  error
	appt model.Appointment
}

func (f *fakeTransitioner) Transition(_ context.Context, req transition.Request) (model.Appointment, error) {
	f.got = req
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	return f.appt, nil
}

func newHandler(f *fakeTransitioner) *AppointmentHandler {
	return NewAppointmentHandler(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func post(h http.HandlerFunc, body string, id *auth.Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

var worker = &auth.Identity{UserID: "worker-1", Role: auth.RoleWorker}

func TestCancelReturnsUpdatedAppointment(t *testing.T) {
	cancelledAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	f := &fakeTransitioner{appt: model.Appointment{
		ID:                 "appt-1",
		Status:             model.StatusCancelled,
		ScheduledAt:        cancelledAt.Add(time.Hour),
		CancelledAt:        &cancelledAt,
		CancellationReason: "sick",
		Version:            2,
	}}

	rec := post(newHandler(f).Cancel, `{"appointment_id":" appt-1 ","reason":"sick"}`, worker)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "appt-1", f.got.AppointmentID)
	require.Equal(t, "CANCELLED", f.got.Status)
	require.Equal(t, *worker, f.got.Actor)

	var resp appointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "CANCELLED", resp.Status)
	require.Equal(t, "2026-03-02T08:00:00Z", resp.CancelledAt)
	require.Equal(t, "sick", resp.CancellationReason)
}

func TestTransitionValidatesBody(t *testing.T) {
	h := newHandler(&fakeTransitioner{})

	require.Equal(t, http.StatusBadRequest, post(h.Transition, `{`, worker).Code)
	require.Equal(t, http.StatusBadRequest, post(h.Transition, `{"appointment_id":"a"}`, worker).Code)
	require.Equal(t, http.StatusUnauthorized, post(h.Transition, `{"appointment_id":"a","status":"CONFIRMED"}`, nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Transition(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTransitionMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: already COMPLETED", transition.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("%w: bad", transition.ErrInvalidStatus), http.StatusBadRequest},
		{fmt.Errorf("%w: too long", transition.ErrInvalidReason), http.StatusBadRequest},
		{transition.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newHandler(&fakeTransitioner{err: tc.err})
		rec := post(h.Transition, `{"appointment_id":"a","status":"CONFIRMED"}`, worker)
		require.Equal(t, tc.want, rec.Code, "err %v", tc.err)
	}
}
