package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adrianva1983/whatsApp-bot/internal/metrics"
)

const (
	keyPrefix = "wabot:"

	// Violations within violationWindow that trigger an automatic block.
	violationThreshold = 10
	violationWindow    = time.Hour
	blockDuration      = 24 * time.Hour
)

// RateLimit limits one route. Routes are matched by method and path prefix.
type RateLimit struct {
	Name     string
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
}

func (l RateLimit) matches(r *http.Request) bool {
	return r.Method == l.Method && strings.HasPrefix(r.URL.Path, l.Prefix)
}

// DefaultLimits are the per-IP limits of the control surface. The mutating
// routes are tighter than the reads.
var DefaultLimits = []RateLimit{
	{Name: "send-test", Method: http.MethodPost, Prefix: "/send-test", Requests: 20, Window: time.Minute},
	{Name: "logout", Method: http.MethodPost, Prefix: "/logout", Requests: 5, Window: time.Minute},
	{Name: "messages-read", Method: http.MethodGet, Prefix: "/messages/", Requests: 120, Window: time.Minute},
	{Name: "messages-clear", Method: http.MethodDelete, Prefix: "/messages/", Requests: 30, Window: time.Minute},
	{Name: "qr-events", Method: http.MethodGet, Prefix: "/qr-events", Requests: 30, Window: time.Minute},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	Limits           []RateLimit
}

// RateLimiter counts requests per client IP and route in fixed windows
// stored in Redis.
type RateLimiter struct {
	client           *redis.Client
	limits           []RateLimit
	logger           zerolog.Logger
	whitelist        ipSet
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter. DefaultLimits apply unless the
// config names its own.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:           client,
		limits:           cfg.Limits,
		logger:           logger,
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}
	if len(rl.limits) == 0 {
		rl.limits = DefaultLimits
	}

	rl.whitelist = parseIPSet(cfg.Whitelist, logger, "whitelist")
	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelist.ips)).
			Int("cidrs", len(rl.whitelist.nets)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	return rl.whitelist.contains(ipStr)
}

// findLimit returns the first limit matching the request.
func (rl *RateLimiter) findLimit(r *http.Request) (RateLimit, bool) {
	for _, l := range rl.limits {
		if l.matches(r) {
			return l, true
		}
	}
	return RateLimit{}, false
}

// RealIP returns the host part of r.RemoteAddr. Forwarding headers are
// honoured only through TrustedRealIP.
func RealIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// windowKey names the counter of one client, route and window.
func windowKey(l RateLimit, ip string, now time.Time) (string, time.Time) {
	bucket := now.Unix() / int64(l.Window.Seconds())
	resetAt := time.Unix((bucket+1)*int64(l.Window.Seconds()), 0)
	return keyPrefix + "ratelimit:" + l.Name + ":" + ip + ":" + strconv.FormatInt(bucket, 10), resetAt
}

// take counts one request and reports whether it is within the limit.
// Redis failures let the request through.
func (rl *RateLimiter) take(ctx context.Context, l RateLimit, ip string) (allowed bool, remaining int, resetAt time.Time) {
	key, resetAt := windowKey(l, ip, time.Now())

	var incr *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.Window*2)
		return nil
	})
	if err != nil {
		rl.logger.Error().Err(err).Str("limit", l.Name).Msg("rate limit check failed")
		return true, l.Requests, resetAt
	}

	count := int(incr.Val())
	return count <= l.Requests, max(l.Requests-count, 0), resetAt
}

// Middleware returns the rate limiting middleware. Without a Redis client
// every request passes.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.client == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.isBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit, ok := rl.findLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := rl.take(r.Context(), limit, ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			metrics.RateLimitHits.WithLabelValues(limit.Name).Inc()
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("limit", limit.Name).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// trackViolation blocks clients that keep hitting the limits.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := keyPrefix + "violations:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	rl.client.ExpireNX(ctx, key, violationWindow)

	if count < violationThreshold {
		return
	}
	rl.client.Set(ctx, keyPrefix+"blocked:"+ip, "repeated rate limit violations", blockDuration)
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count).
		Msg("IP auto-blocked for repeated violations")
}

func (rl *RateLimiter) isBlocked(ctx context.Context, ip string) bool {
	if !rl.autoBlockEnabled {
		return false
	}
	n, _ := rl.client.Exists(ctx, keyPrefix+"blocked:"+ip).Result()
	return n > 0
}
