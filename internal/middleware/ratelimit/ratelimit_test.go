package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestRateLimitPerClient(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()
	app := newApp(rl)

	do := func(client string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client-ID", client)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if code := do("a"); code != fiber.StatusOK {
			t.Fatalf("request %d = %d", i, code)
		}
	}
	if code := do("a"); code != fiber.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}
	if code := do("b"); code != fiber.StatusOK {
		t.Errorf("other client = %d, want 200", code)
	}
}

func TestRateLimitKeepsDistinctClientKeys(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()
	app := newApp(rl)

	for _, client := range []string{"alice", "bobby", "alice", "bobby"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client-ID", client)
		if _, err := app.Test(req); err != nil {
			t.Fatal(err)
		}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(rl.buckets))
	}
	for _, client := range []string{"alice", "bobby"} {
		if _, ok := rl.buckets[client]; !ok {
			t.Errorf("no bucket for %q", client)
		}
	}
}

func TestRefillAndEviction(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 60, IdleTTL: time.Hour})
	defer rl.Stop()

	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 60; i++ {
		if !rl.allow("k") {
			t.Fatalf("request %d denied", i)
		}
	}
	if rl.allow("k") {
		t.Fatal("bucket should be empty")
	}

	now = now.Add(2500 * time.Millisecond)
	if !rl.allow("k") || !rl.allow("k") || rl.allow("k") {
		t.Error("2.5s at 1 token/s should refill exactly 2 tokens")
	}

	now = now.Add(2 * time.Hour)
	rl.evictIdle(time.Hour)
	if len(rl.buckets) != 0 {
		t.Errorf("idle bucket not evicted: %d left", len(rl.buckets))
	}
}
