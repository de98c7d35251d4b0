package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// The limiter must fail open: without Redis, confirmation attempts are not
// blocked (guessing is still bounded by code expiry and single use).
func TestOTPAttemptLimiterFailsOpen(t *testing.T) {
	userID := uuid.New()

	cases := []struct {
		name    string
		limiter *OTPAttemptLimiter
		window  time.Duration
	}{
		{name: "nil limiter", limiter: nil, window: time.Minute},
		{name: "no redis client", limiter: NewOTPAttemptLimiter(nil, ""), window: time.Minute},
		{name: "zero window", limiter: NewOTPAttemptLimiter(nil, "meridian:rate_limit"), window: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			count, retryAfter, err := tc.limiter.ConsumeAttempt(context.Background(), userID, tc.window)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if count != 0 || retryAfter != 0 {
				t.Fatalf("expected zero count and retry, got %d/%d", count, retryAfter)
			}
		})
	}
}

func TestNewOTPAttemptLimiterDefaultsPrefix(t *testing.T) {
	limiter := NewOTPAttemptLimiter(nil, "")
	if limiter.prefix != "meridian:rate_limit" {
		t.Fatalf("expected default prefix, got %q", limiter.prefix)
	}
}
