package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// WebSocket connection attempts (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration

	// Mutations per owner, token bucket
	WritesPerSecond float64
	WriteBurst      int
}

// NewRateLimitConfig builds the limits from configured values
func NewRateLimitConfig(globalAPIMax int, writesPerSecond float64, development bool) *RateLimitConfig {
	config := &RateLimitConfig{
		GlobalAPIMax:        globalAPIMax,
		GlobalAPIExpiration: 1 * time.Minute,
		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
		WritesPerSecond:     writesPerSecond,
		WriteBurst:          int(writesPerSecond * 2),
	}
	if config.GlobalAPIMax <= 0 {
		config.GlobalAPIMax = 300
	}
	if config.WritesPerSecond <= 0 {
		config.WritesPerSecond = 20
		config.WriteBurst = 40
	}
	if config.WriteBurst < 1 {
		config.WriteBurst = 1
	}

	if development {
		config.GlobalAPIMax = 1000
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return config
}

// GlobalAPIRateLimiter limits all API requests per IP
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// WebSocketRateLimiter limits WebSocket connection attempts per IP
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many connection attempts. Please wait before reconnecting.",
				"retry_after": int(config.WebSocketExpiration.Seconds()),
			})
		},
	})
}

// OwnerWriteLimiter keeps one token bucket per owner so a single owner cannot
// flood its actor's inbox. Idle buckets expire.
type OwnerWriteLimiter struct {
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

// NewOwnerWriteLimiter creates a per-owner write limiter
func NewOwnerWriteLimiter(config *RateLimitConfig) *OwnerWriteLimiter {
	return &OwnerWriteLimiter{
		limiters: cache.New(10*time.Minute, 5*time.Minute),
		limit:    rate.Limit(config.WritesPerSecond),
		burst:    config.WriteBurst,
	}
}

// Allow reports whether ownerID may write now
func (l *OwnerWriteLimiter) Allow(ownerID string) bool {
	return l.limiterFor(ownerID).Allow()
}

func (l *OwnerWriteLimiter) limiterFor(ownerID string) *rate.Limiter {
	if existing, ok := l.limiters.Get(ownerID); ok {
		l.limiters.SetDefault(ownerID, existing)
		return existing.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	// Add fails if another request created the bucket first
	if err := l.limiters.Add(ownerID, limiter, cache.DefaultExpiration); err != nil {
		if existing, ok := l.limiters.Get(ownerID); ok {
			return existing.(*rate.Limiter)
		}
	}
	return limiter
}

// Middleware rejects mutating requests over the owner's budget with 429.
// Reads pass through.
func (l *OwnerWriteLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		auth, ok := GetAuthContext(c)
		if !ok {
			return c.Next()
		}
		if !l.Allow(auth.UserID) {
			log.Printf("⚠️  [RATE-LIMIT] Write limit reached for owner: %s on %s", auth.UserID, c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many writes. Please wait before trying again.",
				"retry_after": 1,
			})
		}
		return c.Next()
	}
}
