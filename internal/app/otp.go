/**
 * @description
 * One-time code issuance: a cryptographically random 6-digit code persisted
 * with its bound intent and handed to the notification side of the platform
 * over RabbitMQ. The code never appears in an API response or an info log.
 */

package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/meridianbank/funds-service/internal/domain"
	"github.com/meridianbank/funds-service/pkg/rabbitmq"
)

const otpCodeDigits = 6

// generateOTPCode draws a 6-digit code from crypto/rand, zero-padded.
func generateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", otpCodeDigits, n), nil
}

// issueOneTimeCode fills in the code, id and expiry on the given record,
// persists it (superseding any earlier unused code for the same purpose) and
// requests email delivery. If delivery cannot even be enqueued, the initiation
// fails: a code the customer will never see is useless.
func (s *Service) issueOneTimeCode(ctx context.Context, user *domain.User, otp *domain.OneTimeCode) error {
	code, err := generateOTPCode()
	if err != nil {
		return err
	}
	otp.ID = uuid.New()
	otp.Code = code
	otp.ExpiresAt = time.Now().Add(s.cfg.OTPTTL)

	if err := s.repo.CreateOneTimeCode(ctx, otp); err != nil {
		return fmt.Errorf("failed to store one-time code: %w", err)
	}

	event := rabbitmq.OTPEmailEvent{
		UserID:    user.ID,
		Email:     user.Email,
		Code:      code,
		Purpose:   otp.Purpose,
		ExpiresAt: otp.ExpiresAt,
		Timestamp: time.Now(),
	}
	if err := s.eventProducer.PublishOTPEmailEvent(ctx, event); err != nil {
		log.Printf("level=error component=funds_service msg=\"otp email event publish failed\" user_id=%s purpose=%s err=%v", user.ID, otp.Purpose, err)
		return fmt.Errorf("failed to request code delivery: %w", err)
	}
	log.Printf("level=info component=funds_service op=issue_otp user_id=%s purpose=%s expires_at=%s", user.ID, otp.Purpose, otp.ExpiresAt.Format(time.RFC3339))
	return nil
}
