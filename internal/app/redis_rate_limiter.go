package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// confirmAttemptScript counts one attempt and reports how long the current
// window has left. The first attempt in a window arms its expiry.
var confirmAttemptScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// OTPAttemptLimiter bounds how fast a single user can attempt one-time-code
// confirmations, so a code cannot be brute-forced inside its lifetime. It is
// nil-safe: without Redis it never limits, and guessing stays bounded by code
// expiry and single use.
type OTPAttemptLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewOTPAttemptLimiter(client redis.UniversalClient, prefix string) *OTPAttemptLimiter {
	if prefix == "" {
		prefix = "meridian:rate_limit"
	}
	return &OTPAttemptLimiter{client: client, prefix: prefix}
}

// ConsumeAttempt records one confirmation attempt for the user and returns
// the attempt count inside the current window together with the seconds left
// until the window resets. The caller decides what count is too many.
func (l *OTPAttemptLimiter) ConsumeAttempt(ctx context.Context, userID uuid.UUID, window time.Duration) (count, retryAfterSeconds int, err error) {
	if l == nil || l.client == nil || window <= 0 {
		return 0, 0, nil
	}
	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:otp_confirm:%s", l.prefix, userID)
	raw, err := confirmAttemptScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected limiter reply shape: %T", raw)
	}
	attempts, ok1 := values[0].(int64)
	ttlMs, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("unexpected limiter reply types: %T, %T", values[0], values[1])
	}

	retryAfter := int((ttlMs + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(attempts), retryAfter, nil
}
