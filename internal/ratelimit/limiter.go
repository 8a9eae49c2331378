// ABOUTME: Per-client-IP token bucket rate limiting for the MCP HTTP endpoint
// ABOUTME: Idle visitors are swept in the background so the map stays bounded

package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sweepInterval = time.Minute
	idleTTL       = 3 * time.Minute
)

// Config configures a Limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	// OnReject is called with the client IP for every rejected request.
	OnReject func(ip string)
	Logger   *slog.Logger
}

// Limiter manages one rate.Limiter per client IP.
type Limiter struct {
	limit    rate.Limit
	burst    int
	onReject func(string)
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor

	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter and starts its sweeper. Call Close to stop it.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		onReject: cfg.OnReject,
		logger:   logger,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request from ip may proceed now.
func (l *Limiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429. CORS preflight is never limited.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !l.Allow(ip) {
			l.logger.Debug("rate limited", "ip", ip, "path", r.URL.Path)
			if l.onReject != nil {
				l.onReject(ip)
			}
			writeTooManyRequests(w, l.retryAfter())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the whole-second wait for one token to refill.
func (l *Limiter) retryAfter() int {
	if l.limit <= 0 {
		return 1
	}
	secs := int(1/float64(l.limit) + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func writeTooManyRequests(w http.ResponseWriter, retryAfter int) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Content-Type", "application/json")
	h.Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate_limited","error_description":"Too many requests"}` + "\n"))
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return ip
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// Len returns the number of tracked client IPs.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Close stops the background sweeper. Safe to call more than once.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}
