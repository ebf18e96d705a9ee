package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReadyzReportsFailingChecks(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("down") }},
	)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kafka: down") {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
}

func TestFreshnessCheck(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var last time.Time
	check := FreshnessCheck(func() time.Time { return last }, 45*time.Minute, func() time.Time { return now })

	if err := check(context.Background()); err == nil {
		t.Fatalf("expected error before first run")
	}
	last = now.Add(-10 * time.Minute)
	if err := check(context.Background()); err != nil {
		t.Fatalf("expected fresh, got %v", err)
	}
	last = now.Add(-time.Hour)
	if err := check(context.Background()); err == nil {
		t.Fatalf("expected stale error")
	}
}
