package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, false, testLog())
	h := rl.Handler(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/loans/types", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, false, testLog())
	h := rl.Handler(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/loans/types", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		h.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	var body struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success || body.RetryAfter <= 0 {
		t.Errorf("got body %+v", body)
	}
}

func TestRateLimiterExposesRateLimitHeaders(t *testing.T) {
	rl := NewRateLimiter(1, 2, false, testLog())
	h := rl.Handler(okHandler())

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/loans/types", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	if got := first.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
	rem, err := strconv.Atoi(first.Header().Get("X-RateLimit-Remaining"))
	if err != nil || rem >= 2 {
		t.Errorf("X-RateLimit-Remaining = %q after one request", first.Header().Get("X-RateLimit-Remaining"))
	}

	do()
	throttled := do()
	if throttled.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", throttled.Code)
	}
	if got := throttled.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("missing X-RateLimit-Limit on 429, got %q", got)
	}
	if got := throttled.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q on 429, want 0", got)
	}
	reset, err := strconv.ParseInt(throttled.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		t.Fatalf("X-RateLimit-Reset not numeric: %q", throttled.Header().Get("X-RateLimit-Reset"))
	}
	if reset <= time.Now().Add(-time.Second).Unix() {
		t.Errorf("X-RateLimit-Reset %d is in the past", reset)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, false, testLog())
	h := rl.Handler(okHandler())

	for _, addr := range []string{"10.0.0.3:1", "10.0.0.4:1", "10.0.0.5:1"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/loans/types", nil)
		req.RemoteAddr = addr
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %s throttled on first request", addr)
		}
	}
}

func TestClientKeyHonorsForwardedForOnlyBehindProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	trusted := NewRateLimiter(1, 1, true, testLog())
	if got := trusted.clientKey(req); got != "203.0.113.7" {
		t.Errorf("trusted proxy: got %q", got)
	}

	direct := NewRateLimiter(1, 1, false, testLog())
	if got := direct.clientKey(req); got != "127.0.0.1" {
		t.Errorf("direct: got %q, want remote addr", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := trusted.clientKey(req); got != "127.0.0.1" {
		t.Errorf("no header: got %q", got)
	}
}

func TestRateLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, 1, false, testLog())
	h := rl.Handler(okHandler())

	// Varying the header must not mint a fresh bucket per request.
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/loans/types", nil)
		req.RemoteAddr = "10.0.0.6:5000"
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: got %d, want %d", i, rec.Code, want)
		}
	}
}
