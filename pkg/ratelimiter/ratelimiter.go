package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"anoa.com/kudosfeed/pkg/apperror"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitError tells the caller how long to wait before retrying.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) Unwrap() error {
	return apperror.ErrRateLimitExceeded
}

func key(userID uuid.UUID, action string) string {
	return fmt.Sprintf("rate_limit:user:%s:%s", userID.String(), action)
}

// CheckAndSetRateLimit takes the cooldown lock for action. It reports false when
// the lock is already held. A nil client disables limiting.
func CheckAndSetRateLimit(ctx context.Context, rdb *redis.Client, userID uuid.UUID, action string, limit time.Duration) (bool, error) {
	if rdb == nil || limit <= 0 {
		return true, nil
	}

	wasSet, err := rdb.SetNX(ctx, key(userID, action), "locked", limit).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit in redis: %w", err)
	}

	return wasSet, nil
}

func GetRateLimitTTL(ctx context.Context, rdb *redis.Client, userID uuid.UUID, action string) (time.Duration, error) {
	if rdb == nil {
		return 0, nil
	}
	return rdb.TTL(ctx, key(userID, action)).Result()
}

func ClearRateLimit(ctx context.Context, rdb *redis.Client, userID uuid.UUID, action string) error {
	if rdb == nil {
		return nil
	}
	_, err := rdb.Del(ctx, key(userID, action)).Result()
	return err
}

// Acquire takes every cooldown in order and returns a release func that clears
// them again. If any cooldown is held, the ones already taken are released and a
// *RateLimitError is returned.
func Acquire(ctx context.Context, rdb *redis.Client, userID uuid.UUID, limits []Limit) (func(), error) {
	var taken []string
	release := func() {
		for _, action := range taken {
			_ = ClearRateLimit(context.WithoutCancel(ctx), rdb, userID, action)
		}
	}

	for _, l := range limits {
		allowed, err := CheckAndSetRateLimit(ctx, rdb, userID, l.Action, l.Cooldown)
		if err != nil {
			release()
			return nil, err
		}
		if !allowed {
			release()
			ttl, _ := GetRateLimitTTL(ctx, rdb, userID, l.Action)
			return nil, &RateLimitError{
				Message:    fmt.Sprintf("you are doing that too fast. Please wait %.0f seconds", ttl.Seconds()),
				RetryAfter: ttl,
			}
		}
		taken = append(taken, l.Action)
	}

	return release, nil
}

// Limit is a named cooldown.
type Limit struct {
	Action   string
	Cooldown time.Duration
}
