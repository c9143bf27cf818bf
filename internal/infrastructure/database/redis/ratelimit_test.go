package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:            true,
		SessionDailyLimit:  50,
		SessionHourlyLimit: 10,
		IPPerMinuteLimit:   20,
		IPBlockDuration:    10 * time.Minute,
		Timezone:           "Asia/Seoul",
	}
}

// fixedNow pins the limiter clock: 2026-08-24 15:30 KST, 06:30 UTC.
var fixedNow = time.Date(2026, 8, 24, 6, 30, 0, 0, time.UTC)

func newTestLimiter(t *testing.T) (*RateLimiter, redismock.ClientMock) {
	t.Helper()
	c, mock := newMockClient(t)
	rl, err := NewRateLimiter(c, limiterConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	rl.now = func() time.Time { return fixedNow }
	return rl, mock
}

const (
	blockKey      = "shortcut:ratelimit:block:1.2.3.4"
	minuteKey     = "shortcut:ratelimit:ip:1.2.3.4:202608240630"
	hourKey       = "shortcut:ratelimit:session:sess-1:h:2026082415"
	dayKey        = "shortcut:ratelimit:session:sess-1:d:20260824"
	testSessionID = "sess-1"
	testIP        = "1.2.3.4"
)

func TestAllow_UnderAllLimits(t *testing.T) {
	rl, mock := newTestLimiter(t)

	mock.ExpectTTL(blockKey).SetVal(-2 * time.Nanosecond)
	mock.ExpectIncr(minuteKey).SetVal(3)
	mock.ExpectIncr(hourKey).SetVal(2)
	mock.ExpectIncr(dayKey).SetVal(5)

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.True(t, d.Allowed)
	assert.Equal(t, 45, d.Remaining)
	assert.Equal(t, 50, d.Limit)
}

func TestAllow_FirstHitSetsWindowTTLs(t *testing.T) {
	rl, mock := newTestLimiter(t)

	mock.ExpectTTL(blockKey).SetVal(-2 * time.Nanosecond)
	mock.ExpectIncr(minuteKey).SetVal(1)
	mock.ExpectExpire(minuteKey, 2*time.Minute).SetVal(true)
	mock.ExpectIncr(hourKey).SetVal(1)
	mock.ExpectExpire(hourKey, time.Hour+5*time.Minute).SetVal(true)
	mock.ExpectIncr(dayKey).SetVal(1)
	mock.ExpectExpire(dayKey, 25*time.Hour).SetVal(true)

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.True(t, d.Allowed)
	assert.Equal(t, 49, d.Remaining)
}

func TestAllow_BlockedIPRejectedImmediately(t *testing.T) {
	rl, mock := newTestLimiter(t)

	mock.ExpectTTL(blockKey).SetVal(7 * time.Minute)

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonIPBlocked, d.Reason)
	assert.Equal(t, 7*time.Minute, d.RetryAfter)
}

func TestAllow_IPFloodingTriggersBlock(t *testing.T) {
	rl, mock := newTestLimiter(t)

	mock.ExpectTTL(blockKey).SetVal(-2 * time.Nanosecond)
	mock.ExpectIncr(minuteKey).SetVal(21)
	mock.ExpectSet(blockKey, "1", 10*time.Minute).SetVal("OK")

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonIPMinute, d.Reason)
	assert.Equal(t, 10*time.Minute, d.RetryAfter)
}

func TestAllow_SessionHourlyExceeded(t *testing.T) {
	rl, mock := newTestLimiter(t)

	mock.ExpectTTL(blockKey).SetVal(-2 * time.Nanosecond)
	mock.ExpectIncr(minuteKey).SetVal(2)
	mock.ExpectIncr(hourKey).SetVal(11)

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSessionHourly, d.Reason)
	// 15:30 KST -> next hour at 16:00 KST.
	assert.Equal(t, 30*time.Minute, d.RetryAfter)
}

func TestAllow_SessionDailyExceeded(t *testing.T) {
	rl, mock := newTestLimiter(t)

	mock.ExpectTTL(blockKey).SetVal(-2 * time.Nanosecond)
	mock.ExpectIncr(minuteKey).SetVal(2)
	mock.ExpectIncr(hourKey).SetVal(2)
	mock.ExpectIncr(dayKey).SetVal(51)

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSessionDaily, d.Reason)
	// 15:30 KST -> local midnight in 8h30m.
	assert.Equal(t, 8*time.Hour+30*time.Minute, d.RetryAfter)
}

func TestAllow_RedisFailureFailsOpen(t *testing.T) {
	rl, mock := newTestLimiter(t)

	mock.ExpectTTL(blockKey).SetErr(errors.New("connection refused"))

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.True(t, d.Allowed, "quota enforcement must never deny on infrastructure failure")
}

func TestAllow_DisabledLimiterSkipsRedis(t *testing.T) {
	c, _ := newMockClient(t)
	cfg := limiterConfig()
	cfg.Enabled = false
	rl, err := NewRateLimiter(c, cfg, logging.NewNopLogger())
	require.NoError(t, err)

	d := rl.Allow(context.Background(), testSessionID, testIP)
	assert.True(t, d.Allowed)
}

func TestNewRateLimiter_InvalidTimezone(t *testing.T) {
	c, _ := newMockClient(t)
	cfg := limiterConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err := NewRateLimiter(c, cfg, logging.NewNopLogger())
	assert.Error(t, err)
}
