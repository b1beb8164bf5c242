package auth

import (
	"context"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Throttle counts failed sign-ins per key and blocks the key once the limit
// is used up within the window. A nil *Throttle never blocks.
type Throttle struct {
	limiter *limiter.Limiter
}

// NewThrottle allows maxFailures failed attempts per key within window.
func NewThrottle(maxFailures int64, window time.Duration) *Throttle {
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "login",
		CleanUpInterval: window,
	})
	return &Throttle{
		limiter: limiter.New(store, limiter.Rate{Period: window, Limit: maxFailures}),
	}
}

// Blocked reports whether key has no attempts left, and if so how long until
// the window resets.
func (t *Throttle) Blocked(ctx context.Context, key string) (bool, time.Duration, error) {
	if t == nil {
		return false, 0, nil
	}
	lctx, err := t.limiter.Peek(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if lctx.Remaining > 0 {
		return false, 0, nil
	}
	return true, max(time.Until(time.Unix(lctx.Reset, 0)), time.Second), nil
}

// Fail records a failed attempt for key.
func (t *Throttle) Fail(ctx context.Context, key string) error {
	if t == nil {
		return nil
	}
	_, err := t.limiter.Increment(ctx, key, 1)
	return err
}

// Reset clears the failures recorded for key.
func (t *Throttle) Reset(ctx context.Context, key string) error {
	if t == nil {
		return nil
	}
	_, err := t.limiter.Reset(ctx, key)
	return err
}

// throttleKey identifies a sign-in attempt by client address and account.
func throttleKey(clientIP, email string) string {
	return clientIP + "|" + strings.ToLower(strings.TrimSpace(email))
}
