package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
	mu         sync.Mutex
}

// RateLimiter is a per-client token bucket. Clients are identified by the
// X-Client-ID header when present, else by IP.
type RateLimiter struct {
	buckets      map[string]*bucket
	mu           sync.Mutex
	maxTokens    int
	refillRate   time.Duration
	tokensPerReq int
	logger       *zap.Logger
	now          func() time.Time
	stop         chan struct{}
	stopOnce     sync.Once
}

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rl := &RateLimiter{
		buckets:      make(map[string]*bucket),
		maxTokens:    cfg.MaxRequestsPerMinute,
		refillRate:   cfg.WindowDuration / time.Duration(cfg.MaxRequestsPerMinute),
		tokensPerReq: 1,
		logger:       cfg.Logger,
		now:          time.Now,
		stop:         make(chan struct{}),
	}

	go rl.cleanup(cfg.IdleTTL)

	return rl
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if clientID := c.Get("X-Client-ID"); clientID != "" {
			key = clientID
		}
		// fasthttp reuses the request buffers that back key.
		key = utils.CopyString(key)

		if !rl.allow(key) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.refillRate.Seconds())+1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = now
	if tokensToAdd := int(now.Sub(b.lastRefill) / rl.refillRate); tokensToAdd > 0 {
		b.tokens = min(rl.maxTokens, b.tokens+tokensToAdd)
		b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * rl.refillRate)
	}

	if b.tokens >= rl.tokensPerReq {
		b.tokens -= rl.tokensPerReq
		return true
	}

	return false
}

func (rl *RateLimiter) cleanup(idle time.Duration) {
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(idle)
		}
	}
}

func (rl *RateLimiter) evictIdle(idle time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
