package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/zawadi-market/guard_api/dto"
	"github.com/zawadi-market/guard_api/shared"
)

type rateLimitAlgorithm string

const (
	algorithmSlidingWindow rateLimitAlgorithm = "sliding_window"
	algorithmFixedWindow   rateLimitAlgorithm = "fixed_window"
)

// RateLimitConfig represents rate limiting configuration for one route class
type RateLimitConfig struct {
	Kind        string
	Algorithm   rateLimitAlgorithm
	MaxRequests int
	WindowSize  time.Duration
	Description string
	IsActive    bool
}

// RateLimitService is the cheap fast-path gate in front of every route. Two
// limiters share the quota store: a sliding-window limiter for general
// traffic (avoids the two-bursts-at-window-edge problem) and a cheaper
// fixed-window limiter for low-frequency booking-style actions, where a
// boundary burst is tolerable.
type RateLimitService struct {
	appContext.DefaultService

	configs map[string]*RateLimitConfig
	mutex   sync.RWMutex

	kv  KVStore
	now func() time.Time
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.now = time.Now
	svc.initDefaultConfigs()
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	if svc.kv == nil {
		svc.kv = svc.Service(REDIS_SVC).(*RedisService)
	}
	return nil
}

// ==================== CONFIGURATION MANAGEMENT ====================

func (svc *RateLimitService) initDefaultConfigs() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*RateLimitConfig{
		shared.LimiterDefault: {
			Kind:        shared.LimiterDefault,
			Algorithm:   algorithmSlidingWindow,
			MaxRequests: 5,
			WindowSize:  60 * time.Second,
			Description: "General per-IP rate limit",
			IsActive:    true,
		},
		shared.LimiterBooking: {
			Kind:        shared.LimiterBooking,
			Algorithm:   algorithmFixedWindow,
			MaxRequests: 2,
			WindowSize:  300 * time.Second,
			Description: "Booking endpoint rate limit",
			IsActive:    true,
		},
	}
}

func (svc *RateLimitService) GetConfigs() map[string]*RateLimitConfig {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()

	configs := make(map[string]*RateLimitConfig, len(svc.configs))
	for k, v := range svc.configs {
		cfg := *v
		configs[k] = &cfg
	}
	return configs
}

// ConfigList returns the limiter configurations in a stable order, for the
// admin API.
func (svc *RateLimitService) ConfigList() []dto.RateLimitConfigInfo {
	configs := svc.GetConfigs()

	kinds := make([]string, 0, len(configs))
	for kind := range configs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	out := make([]dto.RateLimitConfigInfo, 0, len(configs))
	for _, kind := range kinds {
		cfg := configs[kind]
		out = append(out, dto.RateLimitConfigInfo{
			Kind:          cfg.Kind,
			Algorithm:     string(cfg.Algorithm),
			MaxRequests:   cfg.MaxRequests,
			WindowSeconds: int(cfg.WindowSize / time.Second),
			Description:   cfg.Description,
			IsActive:      cfg.IsActive,
		})
	}
	return out
}

// ==================== CORE RATE LIMITING LOGIC ====================

func (svc *RateLimitService) IsAllowed(ctx context.Context, identifier, kind string) (bool, *dto.RateLimitInfo, error) {
	svc.mutex.RLock()
	config, exists := svc.configs[kind]
	svc.mutex.RUnlock()

	if !exists || !config.IsActive {
		// If no config exists or inactive, allow the request
		return true, &dto.RateLimitInfo{
			Allowed:   true,
			Remaining: -1,
		}, nil
	}

	switch config.Algorithm {
	case algorithmFixedWindow:
		return svc.fixedWindowAllow(ctx, identifier, config)
	default:
		return svc.slidingWindowAllow(ctx, identifier, config)
	}
}

// fixedWindowAllow counts requests in the current time bucket only. Cheap:
// one increment, one conditional expire.
func (svc *RateLimitService) fixedWindowAllow(ctx context.Context, identifier string, config *RateLimitConfig) (bool, *dto.RateLimitInfo, error) {
	windowSecs := int64(config.WindowSize / time.Second)
	bucket := svc.now().Unix() / windowSecs

	key := fmt.Sprintf("%s%s:%s:%d", shared.KeyPrefixRateLimit, config.Kind, identifier, bucket)
	count, err := svc.kv.Incr(ctx, key)
	if err != nil {
		return false, nil, err
	}
	if count == 1 {
		if err := svc.kv.Expire(ctx, key, config.WindowSize); err != nil {
			log.WithError(err).WithField("key", key).Warn("Failed to set rate limit window expiry")
		}
	}

	resetTime := time.Unix((bucket+1)*windowSecs, 0)
	remaining := config.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return count <= int64(config.MaxRequests), &dto.RateLimitInfo{
		Allowed:   count <= int64(config.MaxRequests),
		Remaining: remaining,
		ResetTime: &resetTime,
	}, nil
}

// slidingWindowAllow keeps a counter per window bucket and weighs the
// previous bucket by the fraction of it still inside the sliding window.
// The estimate smooths out the burst a fixed window would admit at the
// bucket boundary.
func (svc *RateLimitService) slidingWindowAllow(ctx context.Context, identifier string, config *RateLimitConfig) (bool, *dto.RateLimitInfo, error) {
	windowSecs := int64(config.WindowSize / time.Second)
	now := svc.now().Unix()
	bucket := now / windowSecs

	currKey := fmt.Sprintf("%s%s:%s:%d", shared.KeyPrefixRateLimit, config.Kind, identifier, bucket)
	prevKey := fmt.Sprintf("%s%s:%s:%d", shared.KeyPrefixRateLimit, config.Kind, identifier, bucket-1)

	count, err := svc.kv.Incr(ctx, currKey)
	if err != nil {
		return false, nil, err
	}
	if count == 1 {
		// Buckets live for two windows so the previous bucket is still
		// readable while it contributes to the estimate.
		if err := svc.kv.Expire(ctx, currKey, 2*config.WindowSize); err != nil {
			log.WithError(err).WithField("key", currKey).Warn("Failed to set rate limit window expiry")
		}
	}

	var prevCount int64
	if raw, err := svc.kv.Get(ctx, prevKey); err == nil && raw != "" {
		prevCount, _ = strconv.ParseInt(raw, 10, 64)
	}

	elapsed := float64(now%windowSecs) / float64(windowSecs)
	estimate := float64(prevCount)*(1-elapsed) + float64(count)

	allowed := estimate <= float64(config.MaxRequests)
	remaining := config.MaxRequests - int(estimate)
	if remaining < 0 {
		remaining = 0
	}

	resetTime := time.Unix((bucket+1)*windowSecs, 0)
	return allowed, &dto.RateLimitInfo{
		Allowed:   allowed,
		Remaining: remaining,
		ResetTime: &resetTime,
	}, nil
}

// ==================== MIDDLEWARE FUNCTIONS ====================

// Limit creates a rate limiting middleware for the given limiter kind
func (svc *RateLimitService) Limit(kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if IsTrustedWebhook(c) {
			// Server-to-server payment callbacks; volume is the provider's
			// business and the signature is verified by the handler.
			return c.Next()
		}

		identifier := getClientIP(c)

		allowed, info, err := svc.IsAllowed(c.UserContext(), identifier, kind)
		if err != nil {
			log.Printf("Rate limit check error for %s (%s): %v", kind, identifier, err)
			// Continue with request on error to avoid blocking users due to system issues
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !allowed {
			rateLimitRejectionsTotal.WithLabelValues(kind).Inc()
			return svc.handleRateLimitExceeded(c, kind, info)
		}

		return c.Next()
	}
}

// ==================== HELPER FUNCTIONS ====================

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, info *dto.RateLimitInfo) {
	if info == nil {
		return
	}

	if info.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}

	if info.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))

		retryAfter := int(time.Until(*info.ResetTime).Seconds())
		if !info.Allowed && retryAfter > 0 {
			c.Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}
}

func (svc *RateLimitService) handleRateLimitExceeded(c *fiber.Ctx, kind string, info *dto.RateLimitInfo) error {
	message := svc.getRateLimitMessage(kind)

	response := map[string]interface{}{
		"error":   "Rate limit exceeded",
		"message": message,
	}

	if info.ResetTime != nil {
		response["reset_at"] = info.ResetTime.Unix()
	}

	return shared.ResponseJSON(c, http.StatusTooManyRequests, message, response)
}

func (svc *RateLimitService) getRateLimitMessage(kind string) string {
	messages := map[string]string{
		shared.LimiterDefault: "Too many requests. Please slow down.",
		shared.LimiterBooking: "Too many booking attempts. Please try again later.",
	}

	if message, exists := messages[kind]; exists {
		return message
	}

	return "Too many requests. Please try again later."
}

// ==================== UTILITY FUNCTIONS ====================

// IsTrustedWebhook recognizes an authenticated payment-provider callback:
// provider path plus provider signature header. These bypass rate limiting
// entirely; forged signatures are handled by the validity gate instead.
func IsTrustedWebhook(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), shared.PaypalWebhookPath) &&
		c.Get(shared.PaypalSignatureHeader) != ""
}

func getClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	// Check for real IP header
	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Check Cloudflare header
	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	// Fall back to remote address
	remote := c.Context().RemoteAddr().String()
	ip, _, err := net.SplitHostPort(remote)
	if err != nil {
		ip = remote
	}
	if ip == "" {
		// Advisory identity only; "unknown" clients share one bucket
		return "unknown"
	}

	return ip
}
