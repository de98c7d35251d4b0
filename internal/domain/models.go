/**
 * @description
 * This file defines the core domain models for the funds-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout
 * the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and interbank wire
 *   payloads ensures clear separation of concerns and type safety.
 * - All monetary amounts are `decimal.Decimal` fixed-point values. Float
 *   arithmetic is never used for balance math.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OTP purposes. A one-time code is only valid for the purpose it was issued for.
const (
	OTPPurposeTransfer         = "transfer"
	OTPPurposeDebtPayment      = "debt_payment"
	OTPPurposeExternalTransfer = "external_transfer"
	OTPPurposeForgotPassword   = "forgot_pass"
)

// Fee payer values for a transfer.
const (
	FeePayerSender   = "sender"
	FeePayerReceiver = "receiver"
)

// Transaction types and statuses for the internal ledger.
const (
	TransactionTypeTransfer = "transfer"
	TransactionTypeDebtPay  = "debt_pay"

	TransactionStatusSuccess = "success"
	TransactionStatusFailed  = "failed"
)

// Interbank transaction directions and statuses.
const (
	InterbankDirectionIncoming = "incoming"
	InterbankDirectionOutgoing = "outgoing"

	InterbankStatusPending = "pending"
	InterbankStatusSuccess = "success"
	InterbankStatusFailed  = "failed"
)

// Debt reminder statuses.
const (
	DebtStatusPending   = "pending"
	DebtStatusPaid      = "paid"
	DebtStatusCancelled = "cancelled"
)

// User is the read-only projection of a customer that the funds-service needs.
// User records are owned by the auth side of the platform.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

// Account is a customer's ledger account. The balance is mutated exclusively
// through the repository's locking transactions.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OneTimeCode binds a single-use, time-boxed secret to a (user, purpose) pair.
// The initiation parameters (amount, destination, fee payer, bank code) are
// persisted alongside the code so that the confirmation step can reject any
// deviation from what was initiated.
type OneTimeCode struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Code            string          `json:"-"`
	Purpose         string          `json:"purpose"`
	Amount          decimal.Decimal `json:"amount"`
	ToAccountNumber string          `json:"to_account_number"`
	FeePayer        string          `json:"fee_payer"`
	BankCode        string          `json:"bank_code,omitempty"`
	DebtReminderID  *uuid.UUID      `json:"debt_reminder_id,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	IsUsed          bool            `json:"is_used"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Transaction is an immutable ledger entry for a completed internal money
// movement. Rows are written only inside the same database transaction as the
// balance mutation they record.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	FromAccountID *uuid.UUID      `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID      `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	FeePayer      string          `json:"fee_payer"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InterbankTransaction records one leg of a cross-institution settlement. It is
// the only entity that persists intermediate distributed-operation state:
// outgoing rows are created `pending` before the remote call and transitioned
// to a terminal state once the remote leg resolves.
type InterbankTransaction struct {
	ID                    uuid.UUID       `json:"id"`
	Direction             string          `json:"direction"`
	InternalAccountID     uuid.UUID       `json:"internal_account_id"`
	ExternalAccountNumber string          `json:"external_account_number"`
	BankCode              string          `json:"bank_code"`
	Amount                decimal.Decimal `json:"amount"`
	Fee                   decimal.Decimal `json:"fee"`
	Status                string          `json:"status"`
	Description           string          `json:"description"`
	RequestHash           *string         `json:"-"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// LinkedBank is a cooperating external institution. Rows are configured
// out-of-band and treated as read-mostly reference data.
type LinkedBank struct {
	ID              uuid.UUID `json:"id"`
	BankCode        string    `json:"bank_code"`
	BankName        string    `json:"bank_name"`
	PublicKeyPEM    string    `json:"-"`
	SharedSecret    string    `json:"-"`
	CallbackURL     string    `json:"callback_url"`
	AccountInfoPath string    `json:"account_info_path"`
	DepositPath     string    `json:"deposit_path"`
	IsActive        bool      `json:"is_active"`
}

// DebtReminder is a payment request from a creditor to a debtor. It is
// resolved by the debtor's payment confirmation or cancelled by either party
// while still pending.
type DebtReminder struct {
	ID          uuid.UUID       `json:"id"`
	FromUserID  uuid.UUID       `json:"from_user_id"`
	ToUserID    uuid.UUID       `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DebtReminderView is a reminder joined with the display names of both parties.
type DebtReminderView struct {
	DebtReminder
	FromUserName string `json:"from_user_name"`
	ToUserName   string `json:"to_user_name"`
}

// InitiateTransferRequest is the DTO for starting an internal peer transfer.
type InitiateTransferRequest struct {
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	FeePayer        string          `json:"fee_payer"`
	Description     string          `json:"description"`
}

// ConfirmTransferRequest is the DTO for confirming an internal peer transfer.
// The destination, amount and fee payer are resubmitted by the client and must
// match the initiation parameters bound to the OTP.
type ConfirmTransferRequest struct {
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	FeePayer        string          `json:"fee_payer"`
	OTPCode         string          `json:"otp_code"`
	Description     string          `json:"description"`
}

// InitiateExternalTransferRequest is the DTO for starting an outbound
// interbank transfer.
type InitiateExternalTransferRequest struct {
	BankCode        string          `json:"bank_code"`
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
}

// ConfirmExternalTransferRequest is the DTO for confirming an outbound
// interbank transfer.
type ConfirmExternalTransferRequest struct {
	BankCode        string          `json:"bank_code"`
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	OTPCode         string          `json:"otp_code"`
	Description     string          `json:"description"`
}

// CreateDebtReminderRequest is the DTO for creating a debt reminder.
type CreateDebtReminderRequest struct {
	ToUserID    uuid.UUID       `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// ConfirmDebtPaymentRequest carries the OTP for settling a debt reminder.
type ConfirmDebtPaymentRequest struct {
	OTPCode string `json:"otp_code"`
}
