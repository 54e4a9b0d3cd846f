package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		UserID: "u-1",
		Name:   "Asha",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	var gotClaims *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	do := func(t *testing.T, handler http.Handler, authHeader string) *httptest.ResponseRecorder {
		t.Helper()
		gotClaims = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	patientOnly := AuthMiddleware(testSecret, RolePatient)(next)

	t.Run("missing header", func(t *testing.T) {
		rec := do(t, patientOnly, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := do(t, patientOnly, "Bearer not-a-token")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := do(t, patientOnly, "Bearer "+signToken(t, []byte("other-secret"), RolePatient, time.Hour))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		rec := do(t, patientOnly, "Bearer "+signToken(t, testSecret, RolePatient, -time.Minute))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid patient token", func(t *testing.T) {
		rec := do(t, patientOnly, "Bearer "+signToken(t, testSecret, RolePatient, time.Hour))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotClaims == nil || gotClaims.Role != RolePatient || gotClaims.Name != "Asha" {
			t.Fatalf("expected claims in context, got %+v", gotClaims)
		}
	})

	staffOnly := AuthMiddleware(testSecret, RoleStaff)(next)

	t.Run("patient blocked from staff route", func(t *testing.T) {
		rec := do(t, staffOnly, "Bearer "+signToken(t, testSecret, RolePatient, time.Hour))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("staff passes patient route", func(t *testing.T) {
		rec := do(t, patientOnly, "Bearer "+signToken(t, testSecret, RoleStaff, time.Hour))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}
