package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
	"github.com/Mindburn-Labs/custody/pkg/observability"
)

// PrincipalHeader carries the caller identity established by the upstream auth layer.
const PrincipalHeader = "X-Principal-ID"

// RequirePrincipal rejects requests without a principal and stores the
// principal and request origin on the context for auditing.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := strings.TrimSpace(r.Header.Get(PrincipalHeader))
		if principal == "" {
			WriteUnauthorized(w, "Missing "+PrincipalHeader+" header")
			return
		}
		ctx := contracts.WithPrincipal(r.Context(), principal)
		ctx = contracts.WithRequestInfo(ctx, contracts.RequestInfo{
			RemoteAddr: clientIP(r),
			UserAgent:  r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return ip
}

// PrincipalRateLimiter manages one token bucket per principal, falling back
// to the client IP for anonymous requests.
type PrincipalRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	clock     func() time.Time
}

// visitor tracks the rate limiter and last seen time for a key.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPrincipalRateLimiter allows rps requests per second with the given burst per principal.
func NewPrincipalRateLimiter(rps float64, burst int) *PrincipalRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &PrincipalRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     3 * time.Minute,
		clock:    time.Now,
	}
}

// WithClock overrides the time source used for eviction.
func (rl *PrincipalRateLimiter) WithClock(clock func() time.Time) *PrincipalRateLimiter {
	rl.clock = clock
	return rl
}

func (rl *PrincipalRateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	if now.Sub(rl.lastSweep) > time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idle {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Tracked returns how many keys currently hold a bucket.
func (rl *PrincipalRateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Middleware returns a Handler that enforces rate limits.
func (rl *PrincipalRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		if p := strings.TrimSpace(r.Header.Get(PrincipalHeader)); p != "" {
			key = "principal:" + p
		}
		if !rl.getVisitor(key).Allow() {
			WriteTooManyRequests(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Instrument logs every request and records it as a telemetry operation.
// A nil provider only logs.
func Instrument(logger *slog.Logger, telemetry *observability.Provider, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx, done := telemetry.TrackOperation(r.Context(), "http.request",
			observability.AttrOperation.String(r.Method+" "+r.URL.Path))

		next.ServeHTTP(rec, r.WithContext(ctx))

		var err error
		if rec.status >= http.StatusInternalServerError {
			err = &ProblemDetail{Title: http.StatusText(rec.status), Status: rec.status}
		}
		done(err)
		logger.InfoContext(ctx, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
