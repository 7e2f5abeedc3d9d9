package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter keeps a token bucket per client IP. State is owned by the
// server instance, not the package, so separate servers never share buckets.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
	limit    rate.Limit
	burst    int
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPRateLimiter allows requests total per window for each IP, with the
// full allowance available as burst.
func newIPRateLimiter(requests int, window time.Duration) *ipRateLimiter {
	if requests <= 0 {
		requests = 100
	}
	return &ipRateLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
	}
}

// Allow reports whether the IP may make another request now.
func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) > 10000 {
			l.pruneLocked()
		}
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// pruneLocked drops entries idle for over an hour. Caller holds the lock.
func (l *ipRateLimiter) pruneLocked() {
	cutoff := time.Now().Add(-time.Hour)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// clientIP extracts the caller address, preferring X-Forwarded-For when the
// service sits behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
