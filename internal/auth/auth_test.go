package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     any
		wantErr bool
	}{
		{"valid signup", SignupRequest{Email: "inkoop@msp.nl", Password: "correct-horse"}, false},
		{"short password", SignupRequest{Email: "inkoop@msp.nl", Password: "kort"}, true},
		{"bad email", SignupRequest{Email: "inkoop", Password: "correct-horse"}, true},
		{"valid login", LoginRequest{Email: "inkoop@msp.nl", Password: "x"}, false},
		{"empty login", LoginRequest{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(tc.req); (err != nil) != tc.wantErr {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	userID := uuid.New()
	token, err := generateToken(userID)
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}

	got, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if got != userID {
		t.Fatalf("expected %s, got %s", userID, got)
	}

	secret, _ := jwtSecretFromEnv()
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString(secret)
	if _, err := ParseToken(expired); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID.String()}).SignedString(secret)
	if _, err := ParseToken(noExpiry); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken without exp, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	userID := uuid.New()
	token, err := generateToken(userID)
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
	}

	e := echo.New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/saved", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := Middleware(func(c echo.Context) error {
				id, err := GetUserIDFromContext(c)
				if err != nil || id != userID {
					t.Errorf("expected user %s in context, got %s (%v)", userID, id, err)
				}
				return c.NoContent(http.StatusOK)
			})
			if err := h(c); err != nil {
				t.Fatalf("handler: %v", err)
			}
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := normalizeEmail("  Inkoop@MSP.nl "); got != "inkoop@msp.nl" {
		t.Fatalf("unexpected %q", got)
	}
}
