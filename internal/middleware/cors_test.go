package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, c *CORS, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/api/loans/types", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	c.Handler(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestCORSOriginMatching(t *testing.T) {
	c := NewCORS([]string{"https://app.example.com", "example.org"})

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.com", true},
		{"https://example.org", true},
		{"https://pay.example.org", true},
		{"https://evil-example.org", false},
		{"https://appxexample.com", false},
		{"https://app.example.com.attacker.io", false},
	}
	for _, tt := range tests {
		rec := corsRequest(t, c, http.MethodGet, tt.origin)
		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("origin %s: not allowed", tt.origin)
		}
		if !tt.allowed && got != "" {
			t.Errorf("origin %s: allowed as %q", tt.origin, got)
		}
	}
}

func TestCORSWildcardAllowsAny(t *testing.T) {
	c := NewCORS([]string{"*"})
	rec := corsRequest(t, c, http.MethodGet, "https://anywhere.test")
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://anywhere.test" {
		t.Error("wildcard did not allow origin")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	c := NewCORS([]string{"https://app.example.com"})
	rec := corsRequest(t, c, http.MethodOptions, "https://app.example.com")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight got %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing Access-Control-Allow-Methods")
	}
}
