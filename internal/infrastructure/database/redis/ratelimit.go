package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// Deny reasons carried on Decision and into the Retry-After response.
const (
	ReasonIPBlocked     = "ip_blocked"
	ReasonIPMinute      = "ip_minute"
	ReasonSessionHourly = "session_hourly"
	ReasonSessionDaily  = "session_daily"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Reason     string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func allowed(remaining, limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: remaining}
}

// RateLimiter enforces fixed-window request quotas per analysis session and
// per client IP.  Window keys are anchored to the configured timezone so the
// daily quota resets at local midnight, not UTC.  Every Redis failure fails
// open: quota enforcement is never worth a denied analysis.
type RateLimiter struct {
	client *Client
	cfg    config.RateLimitConfig
	loc    *time.Location
	log    logging.Logger

	now func() time.Time
}

func NewRateLimiter(client *Client, cfg config.RateLimitConfig, log logging.Logger) (*RateLimiter, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, fmt.Sprintf("invalid rate limit timezone %q", tz))
	}
	return &RateLimiter{
		client: client,
		cfg:    cfg,
		loc:    loc,
		log:    log.Named("ratelimit"),
		now:    time.Now,
	}, nil
}

// Allow checks the IP and session quotas for one analysis request.  Checks
// run strictest-first: an actively blocked IP is rejected before any counter
// moves, and a session that exhausts its hourly quota does not consume from
// the daily one.
func (rl *RateLimiter) Allow(ctx context.Context, sessionID, ip string) Decision {
	if !rl.cfg.Enabled {
		return allowed(rl.cfg.SessionDailyLimit, rl.cfg.SessionDailyLimit)
	}
	now := rl.now().In(rl.loc)

	if d, ok := rl.checkIPBlock(ctx, ip); !ok {
		return d
	}
	if d, ok := rl.checkIPMinute(ctx, ip, now); !ok {
		return d
	}
	if d, ok := rl.checkSessionHourly(ctx, sessionID, now); !ok {
		return d
	}
	return rl.checkSessionDaily(ctx, sessionID, now)
}

func (rl *RateLimiter) checkIPBlock(ctx context.Context, ip string) (Decision, bool) {
	ttl, err := rl.client.Raw().TTL(ctx, rl.blockKey(ip)).Result()
	if err != nil {
		return rl.failOpen(err), true
	}
	if ttl > 0 {
		return Decision{
			Allowed:    false,
			Reason:     ReasonIPBlocked,
			Limit:      rl.cfg.IPPerMinuteLimit,
			RetryAfter: ttl,
		}, false
	}
	return Decision{}, true
}

func (rl *RateLimiter) checkIPMinute(ctx context.Context, ip string, now time.Time) (Decision, bool) {
	key := rl.client.Key("ratelimit", "ip", ip, now.UTC().Format("200601021504"))
	count, err := rl.incrWindow(ctx, key, 2*time.Minute)
	if err != nil {
		return rl.failOpen(err), true
	}
	if int(count) > rl.cfg.IPPerMinuteLimit {
		if err := rl.client.Raw().Set(ctx, rl.blockKey(ip), "1", rl.cfg.IPBlockDuration).Err(); err != nil {
			return rl.failOpen(err), true
		}
		rl.log.Warn("client ip blocked for flooding",
			logging.String("reason", ReasonIPMinute),
			logging.Duration("block_duration", rl.cfg.IPBlockDuration),
		)
		return Decision{
			Allowed:    false,
			Reason:     ReasonIPMinute,
			Limit:      rl.cfg.IPPerMinuteLimit,
			RetryAfter: rl.cfg.IPBlockDuration,
		}, false
	}
	return Decision{}, true
}

func (rl *RateLimiter) checkSessionHourly(ctx context.Context, sessionID string, now time.Time) (Decision, bool) {
	key := rl.client.Key("ratelimit", "session", sessionID, "h", now.Format("2006010215"))
	count, err := rl.incrWindow(ctx, key, time.Hour+5*time.Minute)
	if err != nil {
		return rl.failOpen(err), true
	}
	if int(count) > rl.cfg.SessionHourlyLimit {
		nextHour := now.Truncate(time.Hour).Add(time.Hour)
		return Decision{
			Allowed:    false,
			Reason:     ReasonSessionHourly,
			Limit:      rl.cfg.SessionHourlyLimit,
			RetryAfter: nextHour.Sub(now),
		}, false
	}
	return Decision{}, true
}

func (rl *RateLimiter) checkSessionDaily(ctx context.Context, sessionID string, now time.Time) Decision {
	key := rl.client.Key("ratelimit", "session", sessionID, "d", now.Format("20060102"))
	count, err := rl.incrWindow(ctx, key, 25*time.Hour)
	if err != nil {
		return rl.failOpen(err)
	}
	if int(count) > rl.cfg.SessionDailyLimit {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, rl.loc).AddDate(0, 0, 1)
		return Decision{
			Allowed:    false,
			Reason:     ReasonSessionDaily,
			Limit:      rl.cfg.SessionDailyLimit,
			RetryAfter: midnight.Sub(now),
		}
	}
	remaining := rl.cfg.SessionDailyLimit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return allowed(remaining, rl.cfg.SessionDailyLimit)
}

// incrWindow bumps a fixed-window counter, attaching the TTL on first use.
// The TTL outlives the window slightly so a clock-skewed reader never sees a
// counter with no expiry.
func (rl *RateLimiter) incrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := rl.client.Raw().Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := rl.client.Raw().Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (rl *RateLimiter) blockKey(ip string) string {
	return rl.client.Key("ratelimit", "block", ip)
}

func (rl *RateLimiter) failOpen(err error) Decision {
	rl.log.Warn("rate limiter unavailable, failing open", logging.Err(err))
	return allowed(rl.cfg.SessionDailyLimit, rl.cfg.SessionDailyLimit)
}

// String implements fmt.Stringer for log friendliness.
func (d Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("allowed (%d/%d remaining)", d.Remaining, d.Limit)
	}
	return fmt.Sprintf("denied (%s, retry after %s)", d.Reason, d.RetryAfter)
}
