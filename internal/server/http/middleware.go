package httpapi

import (
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/and161185/taskhub/internal/token"
)

// HTTPRecorder receives one call per served request.
type HTTPRecorder interface {
	RecordHTTP(route string, status int, d time.Duration)
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.status = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.status = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Recover turns handler panics into 500 responses.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)
					writeMessage(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logging logs request metadata (never bodies) and feeds rec.
func Logging(log *zap.Logger, rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			dur := time.Since(start)

			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			if rec != nil {
				rec.RecordHTTP(route, sr.status, dur)
			}

			lvl := zapcore.InfoLevel
			switch {
			case sr.status >= 500:
				lvl = zapcore.ErrorLevel
			case sr.status >= 400:
				lvl = zapcore.WarnLevel
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", sr.status),
				zap.Duration("dur", dur),
				zap.String("remote", r.RemoteAddr),
			}
			log.Check(lvl, "http").Write(fields...)
		})
	}
}

// CORS allows a single origin, or any origin with "*".
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Max-Age", "86400")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(tok string) (*token.Claims, error)
}

// Authenticate requires a valid bearer token and stores the caller's ID in
// the request context. Every failure yields the same 401.
func Authenticate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			claims, err := v.Verify(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			id, err := claims.UserID()
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

type clientLimiter struct {
	lim        *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	clients map[string]*clientLimiter
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter allows perMinute requests per client IP with an equal burst.
// Idle entries are evicted after ttl.
func NewRateLimiter(perMinute int, ttl time.Duration) *RateLimiter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	rl := &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		ttl:     ttl,
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the background eviction loop.
func (rl *RateLimiter) Stop() { rl.once.Do(func() { close(rl.stop) }) }

// Middleware rejects requests over the limit with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(ClientIP(r)).Allow() {
			retry := int(math.Ceil(1.0 / float64(rl.limit)))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeMessage(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Clients reports the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastAccess = time.Now()
	return c.lim
}

func (rl *RateLimiter) cleanupLoop() {
	t := time.NewTicker(rl.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rl.evict(time.Now())
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastAccess) > rl.ttl {
			delete(rl.clients, ip)
		}
	}
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are not
// trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
