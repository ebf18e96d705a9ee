package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(sub, role string, ttl time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: role,
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(testClaims("worker-1", RoleWorker, time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	id, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if id.UserID != "worker-1" || id.Role != RoleWorker {
		t.Fatalf("identity mismatch: got %+v", id)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(testClaims("worker-1", RoleWorker, -time.Minute), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestMissingRoleRejected(t *testing.T) {
	token, err := SignHS256(testClaims("worker-1", "", time.Hour), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err == nil {
		t.Fatal("expected token without role to be rejected")
	}
}

func TestRequireAuthAndRole(t *testing.T) {
	secret := "test-secret"
	h := RequireAuth(RequireRole(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		if id.UserID != "admin-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), RoleAdmin, RoleWorker), secret)

	token, err := SignHS256(testClaims("admin-1", RoleAdmin, time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	clientToken, err := SignHS256(testClaims("client-1", RoleClient, time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	reqClient := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
	reqClient.Header.Set("Authorization", "Bearer "+clientToken)
	rwClient := httptest.NewRecorder()
	h.ServeHTTP(rwClient, reqClient)
	if rwClient.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rwClient.Code)
	}

	reqBad := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}
}
