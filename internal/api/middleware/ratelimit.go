package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/metrics"
)

// RateLimit defines limits for one route prefix.
type RateLimit struct {
	Route    string // "METHOD /prefix"
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// DefaultLimits cover the sync endpoint and the read-only projections.
var DefaultLimits = []RateLimit{
	{Route: "GET /gun", Requests: 30, Window: time.Minute, KeyFunc: ipKey},
	{Route: "GET /messages/", Requests: 120, Window: time.Minute, KeyFunc: ipKey},
	{Route: "GET /who/", Requests: 100, Window: time.Minute, KeyFunc: ipKey},
	{Route: "GET /channels", Requests: 60, Window: time.Minute, KeyFunc: ipKey},
	{Route: "GET /stats", Requests: 60, Window: time.Minute, KeyFunc: ipKey},
	{Route: "GET /graph/", Requests: 60, Window: time.Minute, KeyFunc: bearerOrIPKey},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Block an IP for a day after repeated violations
	Limits           []RateLimit
}

// RateLimiter counts requests per key in fixed Redis windows.
type RateLimiter struct {
	client    *redis.Client
	limits    []RateLimit
	blocker   *IPBlocker
	logger    zerolog.Logger
	whitelist []*net.IPNet
	autoBlock bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits
	}
	rl := &RateLimiter{
		client:    client,
		limits:    limits,
		blocker:   NewIPBlocker(client),
		logger:    logger,
		autoBlock: cfg.AutoBlockEnabled,
	}

	for _, entry := range cfg.Whitelist {
		if !strings.Contains(entry, "/") {
			if strings.Contains(entry, ":") {
				entry += "/128"
			} else {
				entry += "/32"
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid whitelist entry")
			continue
		}
		rl.whitelist = append(rl.whitelist, ipNet)
	}
	if len(rl.whitelist) > 0 {
		logger.Info().Int("entries", len(rl.whitelist)).Msg("rate limit whitelist configured")
	}
	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// bearerOrIPKey buckets token holders by token suffix and everyone else by IP.
func bearerOrIPKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		if len(token) > 16 {
			token = token[len(token)-16:]
		}
		return "ratelimit:bearer:" + token
	}
	return ipKey(r)
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Allow counts one request against key and reports whether it fits in the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	bucket := now.Unix() / int64(window.Seconds())
	resetAt := time.Unix((bucket+1)*int64(window.Seconds()), 0)
	windowKey := fmt.Sprintf("%s:%d", key, bucket)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.ExpireAt(ctx, windowKey, resetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open when Redis is unavailable.
		rl.logger.Debug().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit, resetAt
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.Allow(r.Context(), key, limit.Requests, limit.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			metrics.RateLimitHits.WithLabelValues(limit.Route).Inc()
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit returns the longest matching route limit.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path

	var best *RateLimit
	for i := range rl.limits {
		l := &rl.limits[i]
		if strings.HasPrefix(key, l.Route) && (best == nil || len(l.Route) > len(best.Route)) {
			best = l
		}
	}
	return best
}

// trackViolation counts violations per IP and blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	count, _ := rl.client.Incr(ctx, key).Result()
	rl.client.Expire(ctx, key, time.Hour)

	if count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	exists, _ := b.client.Exists(ctx, blockKey(ip)).Result()
	return exists > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	b.client.Del(ctx, blockKey(ip))
}
