package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "ana@example.org",
		Roles: []string{RoleInvestigator},
		AAL:   AAL2,
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	var seen echo.Context
	err := mw(func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	})(c)
	return seen, err
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong key", "Bearer " + createTestToken(t, validClaims(), []byte("other-key"))},
		{"expired", "Bearer " + createTestToken(t, expired, testSigningKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			if seen != nil {
				t.Error("handler should not run")
			}
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	seen, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := seen.Request().Context()
	if got := UserIDFromContext(ctx); got != "user-123" {
		t.Errorf("expected user-123, got %q", got)
	}
	if got := UserNameFromContext(ctx); got != "ana@example.org" {
		t.Errorf("expected email as name fallback, got %q", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleInvestigator {
		t.Errorf("unexpected roles %v", roles)
	}
	if got := AALFromContext(ctx); got != AAL2 {
		t.Errorf("expected aal2, got %q", got)
	}
}

func TestJWTMiddleware_DefaultsToAAL1(t *testing.T) {
	claims := validClaims()
	claims.AAL = ""
	token := createTestToken(t, claims, testSigningKey)
	seen, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatal(err)
	}
	if got := AALFromContext(seen.Request().Context()); got != AAL1 {
		t.Errorf("expected aal1, got %q", got)
	}
}

func TestJWTMiddleware_Issuer(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "https://other.example.org"
	token := createTestToken(t, claims, testSigningKey)
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "https://auth.example.org"}
	_, err := runMiddleware(t, JWTMiddleware(cfg), "Bearer "+token)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware(t *testing.T) {
	mw := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})

	seen, err := runMiddleware(t, mw, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := seen.Request().Context()
	if UserIDFromContext(ctx) != "dev-user" || AALFromContext(ctx) != AAL2 {
		t.Errorf("unexpected dev identity %q %q", UserIDFromContext(ctx), AALFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", roles)
	}

	_, err = runMiddleware(t, mw, "Bearer bad")
	assertStatus(t, err, http.StatusUnauthorized)

	token := createTestToken(t, validClaims(), testSigningKey)
	seen, err = runMiddleware(t, mw, "Bearer "+token)
	if err != nil {
		t.Fatal(err)
	}
	if got := UserIDFromContext(seen.Request().Context()); got != "user-123" {
		t.Errorf("expected token identity, got %q", got)
	}
}
