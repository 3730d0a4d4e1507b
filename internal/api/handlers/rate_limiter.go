package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/databaseguru/backend/internal/domain/providers"
)

const (
	defaultQueryRateLimit  = 30
	defaultQueryRateWindow = time.Minute
)

// RateLimiter counts requests per key in fixed windows. It uses the shared cache when one is
// configured so that several instances see the same counts, and process memory otherwise.
// Caches that implement providers.Counter are counted atomically.
type RateLimiter struct {
	cache  providers.CacheProvider
	limit  int
	window time.Duration
	local  *localRateLimiter
}

// NewRateLimiter creates a new rate limiter. A non-positive limit or window uses the defaults.
func NewRateLimiter(cache providers.CacheProvider, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultQueryRateLimit
	}
	if window <= 0 {
		window = defaultQueryRateWindow
	}
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		local:  newLocalRateLimiter(),
	}
}

// Allow reports whether another request for key fits in the current window and, if not,
// how long the caller should wait.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.cache == nil {
		return l.local.allow(key, l.limit, l.window)
	}

	if counter, ok := l.cache.(providers.Counter); ok {
		count, ttl, err := counter.Increment(ctx, key, l.window)
		if err != nil {
			return l.local.allow(key, l.limit, l.window)
		}
		if count > int64(l.limit) {
			return false, ttl
		}
		return true, ttl
	}

	state := rateLimitState{}
	if data, err := l.cache.Get(ctx, key); err == nil {
		_ = json.Unmarshal(data, &state)
	}

	if state.Count >= l.limit {
		return false, l.window
	}

	state.Count++
	data, _ := json.Marshal(state)
	if err := l.cache.Set(ctx, key, data, int(l.window.Seconds())); err != nil {
		return l.local.allow(key, l.limit, l.window)
	}
	return true, l.window
}

type rateLimitState struct {
	Count int `json:"count"`
}

type localRateLimiter struct {
	mu     sync.Mutex
	states map[string]*localRateState
}

type localRateState struct {
	count   int
	resetAt time.Time
}

func newLocalRateLimiter() *localRateLimiter {
	return &localRateLimiter{
		states: make(map[string]*localRateState),
	}
}

func (l *localRateLimiter) allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[key]
	if !ok || now.After(state.resetAt) {
		state = &localRateState{count: 0, resetAt: now.Add(window)}
		l.states[key] = state
	}

	if state.count >= limit {
		retryAfter := time.Until(state.resetAt)
		if retryAfter < 0 {
			retryAfter = window
		}
		return false, retryAfter
	}

	state.count++
	return true, window
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
