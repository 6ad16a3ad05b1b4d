package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/eventpredict/internal/api/response"
	"github.com/kiranshivaraju/eventpredict/internal/cache"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = 60 * time.Second
	idleLimiterTTL           = 10 * time.Minute
)

// RateLimit limits requests per client address. With a cache it counts
// fixed one-minute windows in Redis so every replica shares the budget;
// without one it falls back to an in-process token bucket per client.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int

	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	lastPrune time.Time
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimit creates a new RateLimit middleware. c may be nil.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{
		cache:          c,
		requestsPerMin: requestsPerMin,
		limiters:       make(map[string]*clientLimiter),
		now:            time.Now,
	}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)

		var allowed bool
		var remaining int
		if rl.cache != nil {
			count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(client), rateWindow)
			if err != nil {
				// Fail open when Redis is unavailable.
				slog.Warn("rate limit counter", "client", client, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			allowed = count <= int64(rl.requestsPerMin)
			remaining = rl.requestsPerMin - int(count)
		} else {
			lim := rl.localLimiter(client)
			allowed = lim.Allow()
			remaining = int(lim.Tokens())
		}
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", rl.now().Add(rateWindow).Unix()))

		if !allowed {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) localLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > idleLimiterTTL {
		for k, cl := range rl.limiters {
			if now.Sub(cl.lastSeen) > idleLimiterTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastPrune = now
	}

	cl, ok := rl.limiters[client]
	if !ok {
		every := rateWindow / time.Duration(rl.requestsPerMin)
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Every(every), rl.requestsPerMin)}
		rl.limiters[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// clientKey is the request's remote host. chi's RealIP middleware runs first
// and has already resolved forwarding headers into RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
