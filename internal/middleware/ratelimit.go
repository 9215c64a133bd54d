// Package middleware provides the HTTP middleware for the loan service.
package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.Mutex
	rate       rate.Limit
	burst      int
	trustProxy bool
	log        *logrus.Entry
}

// NewRateLimiter creates a limiter allowing requestsPerSecond sustained with
// the given burst per client. X-Forwarded-For is honored only when
// trustProxy is set; otherwise clients could mint a fresh bucket per request
// by varying the header.
func NewRateLimiter(requestsPerSecond float64, burst int, trustProxy bool, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		trustProxy: trustProxy,
		log:        log,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Handler enforces the limit. Every response carries X-RateLimit-* headers;
// breaches get 429 with Retry-After and a retryAfter hint in the body.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.clientKey(r)
		l := rl.limiter(key)

		allowed := l.Allow()

		remaining := int(l.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.resetAt(l), 10))

		if !allowed {
			retryAfter := 1
			if rl.rate > 0 {
				retryAfter = int(time.Duration(float64(time.Second)/float64(rl.rate)).Seconds() + 1)
			}

			rl.log.WithFields(logrus.Fields{
				"client": key,
				"path":   r.URL.Path,
			}).Warn("rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"success":    false,
				"error":      "Too many requests",
				"retryAfter": retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// resetAt estimates the unix time at which the client's bucket is full again.
func (rl *RateLimiter) resetAt(l *rate.Limiter) int64 {
	now := time.Now()
	if rl.rate <= 0 {
		return now.Unix()
	}
	missing := float64(rl.burst) - l.Tokens()
	if missing <= 0 {
		return now.Unix()
	}
	refill := time.Duration(math.Ceil(missing/float64(rl.rate))) * time.Second
	return now.Add(refill).Unix()
}

// StartCleanup periodically drops the limiter map so idle clients do not
// accumulate forever. Live clients simply get a fresh bucket.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.mu.Lock()
				if len(rl.limiters) > 10000 {
					rl.limiters = make(map[string]*rate.Limiter)
				}
				rl.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// clientKey identifies the client for throttling. The first X-Forwarded-For
// hop is used only behind a trusted proxy; otherwise the connection's remote
// address wins.
func (rl *RateLimiter) clientKey(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			for i := 0; i < len(fwd); i++ {
				if fwd[i] == ',' {
					return fwd[:i]
				}
			}
			return fwd
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
