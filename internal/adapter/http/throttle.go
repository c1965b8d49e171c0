package http

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Throttle scopes.
const (
	ScopeAPI  = "api"
	ScopeSync = "sync"
)

// Decision is a rate limiter verdict for one request.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Throttle decides whether a client may make another request in scope.
// Rate limiting itself lives outside this service.
type Throttle interface {
	Allow(ctx context.Context, scope, clientKey string) (Decision, error)
}

func (s *Server) throttled(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.throttle == nil {
			next(w, r)
			return
		}

		d, err := s.throttle.Allow(r.Context(), scope, ClientIP(r))
		if err != nil {
			// Fail open.
			s.logger.Warn("throttle unavailable", "scope", scope, "error", err)
			next(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
		if !d.ResetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
		}
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(s.retryAfterSeconds(d.ResetAt)))
			sharedobs.WriteJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests. Please try again later."})
			return
		}
		next(w, r)
	}
}

func (s *Server) retryAfterSeconds(resetAt time.Time) int {
	if resetAt.IsZero() {
		return 60
	}
	secs := int(math.Ceil(resetAt.Sub(s.clock.Now()).Seconds()))
	return max(secs, 1)
}

// ClientIP identifies the caller, preferring proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "127.0.0.1"
}
