package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHasRole(t *testing.T) {
	tests := []struct {
		name     string
		has      []string
		required []string
		want     bool
	}{
		{"exact", []string{RoleInvestigator}, []string{RoleInvestigator}, true},
		{"one of", []string{RoleCRO}, StaffRoles, true},
		{"admin bypass", []string{RoleAdmin}, []string{RoleInvestigator}, true},
		{"participant denied", []string{RoleParticipant}, StaffRoles, false},
		{"no roles", nil, StaffRoles, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.WithValue(context.Background(), UserRolesKey, tt.has)
			if got := HasRole(ctx, tt.required...); got != tt.want {
				t.Errorf("HasRole(%v, %v) = %v, want %v", tt.has, tt.required, got, tt.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		code  int
	}{
		{"investigator allowed", []string{RoleInvestigator}, http.StatusOK},
		{"admin allowed", []string{RoleAdmin}, http.StatusOK},
		{"participant forbidden", []string{RoleParticipant}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, tt.roles))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireRole(RoleInvestigator, RoleCRO)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})(c)
			if tt.code == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Code != http.StatusOK {
					t.Errorf("expected 200, got %d", rec.Code)
				}
				return
			}
			assertStatus(t, err, tt.code)
		})
	}
}
