package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testCfg = Config{Secret: "test-secret", Issuer: "cinportal"}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token, err := SignToken(testCfg, "agent-1", []string{"staff"}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotSubject string
	handler := func(c echo.Context) error {
		gotSubject, _ = c.Get(ContextSubject).(string)
		return c.String(http.StatusOK, "ok")
	}

	if err := JWTMiddleware(testCfg)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSubject != "agent-1" {
		t.Errorf("expected subject agent-1, got %s", gotSubject)
	}
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := JWTMiddleware(testCfg)(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	token, _ := SignToken(Config{Secret: "other", Issuer: "cinportal"}, "agent-1", nil, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := JWTMiddleware(testCfg)(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	token, _ := SignToken(testCfg, "agent-1", []string{"staff"}, -time.Minute)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := JWTMiddleware(testCfg)(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		have     []string
		require  []string
		wantCode int
	}{
		{"matching role", []string{"staff"}, []string{"staff"}, http.StatusOK},
		{"one of several", []string{"registrar"}, []string{"admin", "registrar"}, http.StatusOK},
		{"missing role", []string{"staff"}, []string{"admin"}, http.StatusForbidden},
		{"no roles", nil, []string{"admin"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.Set(ContextRoles, tt.have)

			err := RequireRole(tt.require...)(okHandler)(c)
			if tt.wantCode == http.StatusOK {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != tt.wantCode {
				t.Errorf("expected %d, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		roles, _ := c.Get(ContextRoles).([]string)
		if len(roles) == 0 {
			t.Error("expected dev roles to be set")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
