// Package limiter throttles OTP re-issuance per email address using Redis.
package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResendLimiter allows at most max code requests per email within the
// window. A nil limiter (no Redis configured) allows everything; cache
// errors fail open so an unavailable Redis never blocks signups.
type ResendLimiter struct {
	cache  *redis.Client
	max    int
	window time.Duration
}

func NewResendLimiter(cache *redis.Client, max int, window time.Duration) *ResendLimiter {
	if max <= 0 {
		max = 3
	}
	return &ResendLimiter{cache: cache, max: max, window: window}
}

// Allow reports whether another code may be issued for the given email.
func (l *ResendLimiter) Allow(ctx context.Context, email string) bool {
	if l == nil || l.cache == nil {
		return true
	}

	key := "rl:otp:" + email
	cnt, err := l.cache.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if cnt == 1 {
		l.cache.Expire(ctx, key, l.window)
	}
	return cnt <= int64(l.max)
}
