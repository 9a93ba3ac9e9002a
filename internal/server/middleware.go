package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"mrp/internal/auth"
	"mrp/internal/response"
)

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if user := auth.Username(r.Context()); user != "" {
				entry = entry.WithField("user", user)
			}
			switch {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request")
			}
		})
	}
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth resolves the caller with a and stores the identity in the
// request context. Browsers cannot set headers on websocket upgrades, so
// ?token= is accepted there.
func RequireAuth(a auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" && r.Header.Get("Upgrade") == "websocket" {
				if token := r.URL.Query().Get("token"); token != "" {
					r.Header.Set("Authorization", "Bearer "+token)
				}
			}
			id, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mrp"`)
				response.Err(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers without role with a 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				response.Err(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if id.Role != role {
				response.Err(w, role+" role required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter tracks request times per key in a sliding window.
type RateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{requests: make(map[string][]time.Time), now: time.Now}
}

// Allow records a request for key and reports whether it fits in limit per
// window, with the remaining budget and the time the oldest request expires.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-window)
	if now.Sub(rl.lastSweep) >= window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}
	kept := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	reset := now.Add(window)
	if len(kept) > 0 {
		reset = kept[0].Add(window)
	}
	if len(kept) >= limit {
		if len(kept) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = kept
		}
		return false, 0, reset
	}
	rl.requests[key] = append(kept, now)
	return true, limit - len(kept) - 1, reset
}

// sweep forgets keys whose newest request is at or before cutoff.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, times := range rl.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.requests, key)
		}
	}
}

// RateLimit limits each caller to limit requests per window. Callers are
// keyed by username, falling back to the remote address.
func RateLimit(rl *RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := auth.Username(r.Context())
			if key == "" {
				key = r.RemoteAddr
				if idx := strings.LastIndex(key, ":"); idx != -1 {
					key = key[:idx]
				}
			}

			ok, remaining, reset := rl.Allow(key, limit, window)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
			if !ok {
				retry := int(reset.Sub(rl.now()).Seconds()) + 1
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
				response.Err(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
