package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTooManyAttempts indicates the credential has exceeded its login attempt
// budget for the current window.
var ErrTooManyAttempts = errors.New("too many login attempts; try again later")

// Throttle rate-limits login attempts per credential using a redis counter
// with a rolling window.
type Throttle struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewThrottle builds a throttle allowing limit attempts per window.
func NewThrottle(client *redis.Client, limit int, window time.Duration) *Throttle {
	return &Throttle{client: client, limit: limit, window: window}
}

// Allow records an attempt for the credential and reports whether it is
// still within budget. The window starts at the first attempt.
func (t *Throttle) Allow(ctx context.Context, credential string) error {
	key := t.key(credential)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("throttle incr: %w", err)
	}
	if count == 1 {
		if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
			return fmt.Errorf("throttle expire: %w", err)
		}
	}
	if count > int64(t.limit) {
		return ErrTooManyAttempts
	}
	return nil
}

// Reset clears the attempt counter after a successful login.
func (t *Throttle) Reset(ctx context.Context, credential string) error {
	return t.client.Del(ctx, t.key(credential)).Err()
}

// Credentials are opaque provider tokens, so the counter is keyed by a
// digest rather than the raw value.
func (t *Throttle) key(credential string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(credential))))
	return "login_attempts:" + hex.EncodeToString(sum[:])
}
