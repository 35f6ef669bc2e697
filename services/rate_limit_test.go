package services

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zawadi-market/guard_api/shared"
)

func newTestRateLimitService(kv KVStore) *RateLimitService {
	svc := &RateLimitService{kv: kv, now: time.Now}
	svc.initDefaultConfigs()
	return svc
}

func TestSlidingWindow_Threshold(t *testing.T) {
	_, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)
	ctx := context.Background()

	clock := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return clock }

	for i := 1; i <= 5; i++ {
		allowed, info, err := svc.IsAllowed(ctx, "203.0.113.1", shared.LimiterDefault)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i)
		assert.Equal(t, 5-i, info.Remaining)
	}

	allowed, info, err := svc.IsAllowed(ctx, "203.0.113.1", shared.LimiterDefault)
	require.NoError(t, err)
	assert.False(t, allowed, "sixth request inside the window must be rejected")
	assert.Equal(t, 0, info.Remaining)
	require.NotNil(t, info.ResetTime)
}

func TestSlidingWindow_Rollover(t *testing.T) {
	mr, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)
	ctx := context.Background()

	clock := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return clock }

	for i := 0; i < 6; i++ {
		svc.IsAllowed(ctx, "203.0.113.2", shared.LimiterDefault)
	}

	// Two full windows later both buckets have expired and the identity
	// starts from a clean slate.
	clock = clock.Add(2 * time.Minute)
	mr.FastForward(2 * time.Minute)

	allowed, _, err := svc.IsAllowed(ctx, "203.0.113.2", shared.LimiterDefault)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSlidingWindow_WeighsPreviousBucket(t *testing.T) {
	_, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)
	ctx := context.Background()

	// Fill the first bucket past the limit
	clock := time.Unix(1_700_000_040, 0)
	svc.now = func() time.Time { return clock }
	for i := 0; i < 6; i++ {
		svc.IsAllowed(ctx, "203.0.113.3", shared.LimiterDefault)
	}

	// Right after the boundary the previous bucket still counts almost
	// fully, so the burst cannot simply wrap around the window edge.
	clock = time.Unix(1_700_000_100, 0)
	allowed, _, err := svc.IsAllowed(ctx, "203.0.113.3", shared.LimiterDefault)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Deep into the next window the old burst has mostly decayed out.
	clock = time.Unix(1_700_000_148, 0)
	allowed, _, err = svc.IsAllowed(ctx, "203.0.113.3", shared.LimiterDefault)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFixedWindow_BookingLimiter(t *testing.T) {
	_, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)
	ctx := context.Background()

	clock := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return clock }

	for i := 1; i <= 2; i++ {
		allowed, _, err := svc.IsAllowed(ctx, "203.0.113.4", shared.LimiterBooking)
		require.NoError(t, err)
		assert.True(t, allowed, "booking %d should pass", i)
	}

	allowed, _, err := svc.IsAllowed(ctx, "203.0.113.4", shared.LimiterBooking)
	require.NoError(t, err)
	assert.False(t, allowed, "third booking in the window must be rejected")

	// Next 5-minute bucket, counter starts over
	clock = clock.Add(5 * time.Minute)
	allowed, _, err = svc.IsAllowed(ctx, "203.0.113.4", shared.LimiterBooking)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestConfigList_StableOrder(t *testing.T) {
	_, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)

	configs := svc.ConfigList()
	require.Len(t, configs, 2)

	assert.Equal(t, shared.LimiterBooking, configs[0].Kind)
	assert.Equal(t, "fixed_window", configs[0].Algorithm)
	assert.Equal(t, 2, configs[0].MaxRequests)
	assert.Equal(t, 300, configs[0].WindowSeconds)
	assert.True(t, configs[0].IsActive)

	assert.Equal(t, shared.LimiterDefault, configs[1].Kind)
	assert.Equal(t, "sliding_window", configs[1].Algorithm)
	assert.Equal(t, 5, configs[1].MaxRequests)
	assert.Equal(t, 60, configs[1].WindowSeconds)
	assert.True(t, configs[1].IsActive)
}

func TestIsAllowed_UnknownKindPasses(t *testing.T) {
	_, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)

	allowed, info, err := svc.IsAllowed(context.Background(), "203.0.113.5", "nonexistent")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, -1, info.Remaining)
}

func TestLimitMiddleware_RejectsOverLimit(t *testing.T) {
	_, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)

	app := fiber.New()
	app.Use(svc.Limit(shared.LimiterDefault))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	for i := 1; i <= 5; i++ {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.10")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i)
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	}

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.10")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	// A different identity is unaffected
	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.11")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLimitMiddleware_WebhookBypass(t *testing.T) {
	_, kv := setupMiniredis(t)
	svc := newTestRateLimitService(kv)

	app := fiber.New()
	app.Use(svc.Limit(shared.LimiterDefault))
	app.Post(shared.PaypalWebhookPath, func(c *fiber.Ctx) error { return c.SendString("ok") })

	// Signed provider callbacks are exempt from rate limiting no matter the volume
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest("POST", shared.PaypalWebhookPath, nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.20")
		req.Header.Set(shared.PaypalSignatureHeader, "sig-value")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	// Without the signature header the same path is limited like any other
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("POST", shared.PaypalWebhookPath, nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.20")
		resp, err := app.Test(req)
		require.NoError(t, err)
		if i < 5 {
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		} else {
			assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
		}
	}
}

func TestLimitMiddleware_FailsOpenOnStoreError(t *testing.T) {
	svc := newTestRateLimitService(failingStore{})

	app := fiber.New()
	app.Use(svc.Limit(shared.LimiterDefault))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.30")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
