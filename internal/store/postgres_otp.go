/**
 * @description
 * One-time code persistence. Issuance supersedes earlier unused codes for the
 * same (user, purpose) pair; consumption is a row-locked read-check-mark step
 * that only ever runs inside a confirm transaction, so a code can never be
 * spent without the surrounding balance mutation committing with it.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/domain"
)

// CreateOneTimeCode stores a freshly issued code together with its initiation
// intent. Any unused code for the same (user, purpose) is invalidated first,
// so at most one code per pair can ever be relied upon.
func (r *PostgresRepository) CreateOneTimeCode(ctx context.Context, otp *domain.OneTimeCode) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE otp_codes SET is_used = TRUE WHERE user_id = $1 AND purpose = $2 AND is_used = FALSE`,
		otp.UserID, otp.Purpose)
	if err != nil {
		return err
	}

	var bankCode *string
	if otp.BankCode != "" {
		bankCode = &otp.BankCode
	}
	query := `
		INSERT INTO otp_codes (id, user_id, code, purpose, amount, to_account_number, fee_payer, bank_code, debt_reminder_id, expires_at, is_used)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, FALSE)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		otp.ID, otp.UserID, otp.Code, otp.Purpose,
		otp.Amount.String(), otp.ToAccountNumber, otp.FeePayer, bankCode, otp.DebtReminderID,
		otp.ExpiresAt,
	).Scan(&otp.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// otpIntent is what a confirmation claims; it must equal the intent persisted
// at initiation for the code to be consumable.
type otpIntent struct {
	UserID          uuid.UUID
	Code            string
	Purpose         string
	Amount          decimal.Decimal
	ToAccountNumber string
	FeePayer        string
	BankCode        string
	DebtReminderID  *uuid.UUID
}

// intentMatches reports whether the intent persisted at initiation equals
// what a confirmation claims. User, code and purpose are matched by the row
// lookup itself; this covers the business parameters bound to the code.
func intentMatches(stored, want otpIntent) bool {
	if !stored.Amount.Equal(want.Amount) {
		return false
	}
	if stored.ToAccountNumber != want.ToAccountNumber ||
		stored.FeePayer != want.FeePayer ||
		stored.BankCode != want.BankCode {
		return false
	}
	if (stored.DebtReminderID == nil) != (want.DebtReminderID == nil) {
		return false
	}
	return stored.DebtReminderID == nil || *stored.DebtReminderID == *want.DebtReminderID
}

// consumeOneTimeCode locks the matching unused, unexpired code row, checks the
// bound intent and marks the code used, all within the caller's transaction.
// Not-found, expired and already-used all collapse to ErrInvalidOrExpiredOTP
// so responses cannot be used as an enumeration oracle; only a parameter
// mismatch is reported distinctly.
func consumeOneTimeCode(ctx context.Context, tx pgx.Tx, want otpIntent) error {
	var (
		id         uuid.UUID
		amountStr  string
		toAccount  string
		feePayer   string
		bankCode   string
		reminderID *uuid.UUID
	)
	query := `
		SELECT id, amount::text, to_account_number, fee_payer, COALESCE(bank_code, ''), debt_reminder_id
		FROM otp_codes
		WHERE user_id = $1 AND code = $2 AND purpose = $3 AND is_used = FALSE AND expires_at > NOW()
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, want.UserID, want.Code, want.Purpose).Scan(
		&id, &amountStr, &toAccount, &feePayer, &bankCode, &reminderID,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrInvalidOrExpiredOTP
		}
		return err
	}

	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	stored := otpIntent{
		Amount:          amount,
		ToAccountNumber: toAccount,
		FeePayer:        feePayer,
		BankCode:        bankCode,
		DebtReminderID:  reminderID,
	}
	if !intentMatches(stored, want) {
		return ErrOTPIntentMismatch
	}

	_, err = tx.Exec(ctx, `UPDATE otp_codes SET is_used = TRUE WHERE id = $1`, id)
	return err
}
