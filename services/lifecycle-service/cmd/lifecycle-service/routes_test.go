package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/md-rashed-zaman/carecycle/libs/auth"
	"github.com/md-rashed-zaman/carecycle/libs/runtime"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/handlers"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/transition"
)

const testSecret = "test-secret"

type stubTransitioner struct {
	calls int
}

func (s *stubTransitioner) Transition(_ context.Context, req transition.Request) (model.Appointment, error) {
	s.calls++
	return model.Appointment{
		ID:          req.AppointmentID,
		Status:      model.Status(req.Status),
		ScheduledAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Version:     2,
	}, nil
}

func testRouter(t *testing.T, svc *stubTransitioner) http.Handler {
	t.Helper()
	h := handlers.NewAppointmentHandler(svc, discardLogger())
	return newRouter(h, discardLogger(), routerConfig{
		JWTSecret: testSecret,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		ReadyChecks: []runtime.ReadyCheck{{Name: "noop", Check: func(context.Context) error { return nil }}},
	})
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func do(h http.Handler, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterRequiresToken(t *testing.T) {
	svc := &stubTransitioner{}
	rec := do(testRouter(t, svc), "/api/v1/appointments/cancel", "", `{"appointment_id":"a-1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestRouterTransitionIsStaffOnly(t *testing.T) {
	svc := &stubTransitioner{}
	h := testRouter(t, svc)
	body := `{"appointment_id":"a-1","status":"COMPLETED"}`

	rec := do(h, "/api/v1/appointments/transition", token(t, "client-1", auth.RoleClient), body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client, got %d", rec.Code)
	}

	rec = do(h, "/api/v1/appointments/transition", token(t, "worker-1", auth.RoleWorker), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for worker, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected one service call, got %d", svc.calls)
	}
}

func TestRouterCancelAllowsClients(t *testing.T) {
	svc := &stubTransitioner{}
	rec := do(testRouter(t, svc), "/api/v1/appointments/cancel", token(t, "client-1", auth.RoleClient), `{"appointment_id":"a-1","reason":"sick"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRouterServesProbesAndMetrics(t *testing.T) {
	h := testRouter(t, &stubTransitioner{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
