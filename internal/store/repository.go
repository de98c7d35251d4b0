/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the funds-service. By defining an
 * interface, we decouple the business logic from the PostgreSQL implementation
 * and make the engines testable with stub repositories.
 *
 * The confirm-style methods are deliberately coarse: each one executes a whole
 * atomic unit (OTP consumption, balance mutations, ledger row) inside a single
 * database transaction, so a failure at any step leaves no partial writes.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: IDs and money.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User and account lookups
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// FindAccountHolder resolves an account together with its owner, for
	// inbound account queries and recipient pre-checks.
	FindAccountHolder(ctx context.Context, accountNumber string) (*domain.Account, *domain.User, error)

	// One-time codes. Creation supersedes any unused code for the same
	// (user, purpose) pair; consumption happens inside the confirm methods.
	CreateOneTimeCode(ctx context.Context, otp *domain.OneTimeCode) error

	// Internal transfers
	ConfirmTransfer(ctx context.Context, p ConfirmTransferParams) (*domain.Transaction, error)
	FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)

	// Debt reminders
	CreateDebtReminder(ctx context.Context, reminder *domain.DebtReminder) error
	FindDebtReminderByID(ctx context.Context, reminderID uuid.UUID) (*domain.DebtReminder, error)
	ListDebtRemindersByUser(ctx context.Context, userID uuid.UUID) ([]domain.DebtReminderView, error)
	CancelDebtReminder(ctx context.Context, reminderID, byUserID uuid.UUID) error
	ConfirmDebtPayment(ctx context.Context, p ConfirmDebtPaymentParams) (*domain.Transaction, error)

	// Interbank settlement
	FindLinkedBank(ctx context.Context, bankCode string) (*domain.LinkedBank, error)
	// CommitOutboundTransfer is the boundary of local atomicity for an
	// outbound settlement: it debits the sender, inserts the pending row and
	// consumes the OTP in one transaction, before any network call is made.
	CommitOutboundTransfer(ctx context.Context, p CommitOutboundTransferParams) (*domain.InterbankTransaction, error)
	// MarkOutboundTransferSettled transitions a pending outgoing row to a
	// terminal status. Rows that already resolved are left untouched.
	MarkOutboundTransferSettled(ctx context.Context, settlementID uuid.UUID, status string) error
	// RefundOutboundTransfer marks a pending outgoing row failed and credits
	// the debited total back to the sender in one transaction.
	RefundOutboundTransfer(ctx context.Context, settlementID uuid.UUID) error
	CreditInboundDeposit(ctx context.Context, p CreditInboundDepositParams) (decimal.Decimal, *domain.InterbankTransaction, error)
	FindStalePendingOutbound(ctx context.Context, olderThan time.Time, limit int) ([]domain.InterbankTransaction, error)
}

// ConfirmTransferParams carries everything needed to settle an internal peer
// transfer in one transaction. The destination, amount and fee payer must
// match the intent bound to the OTP at initiation time.
type ConfirmTransferParams struct {
	UserID          uuid.UUID
	OTPCode         string
	ToAccountNumber string
	Amount          decimal.Decimal
	FeePayer        string
	Fee             decimal.Decimal
	Description     string
}

// ConfirmDebtPaymentParams settles a debt reminder. The amount is taken from
// the reminder itself; the debtor always pays the fee.
type ConfirmDebtPaymentParams struct {
	UserID     uuid.UUID
	ReminderID uuid.UUID
	OTPCode    string
	Fee        decimal.Decimal
}

// CommitOutboundTransferParams commits the local leg of an outbound interbank
// transfer: sender debit of amount+fee, pending settlement row, OTP consumed.
type CommitOutboundTransferParams struct {
	UserID          uuid.UUID
	OTPCode         string
	BankCode        string
	ToAccountNumber string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	Description     string
}

// CreditInboundDepositParams credits a local account on behalf of a linked
// bank. RequestHash is the inbound request's HMAC and is stored uniquely to
// suppress replays within the freshness window.
type CreditInboundDepositParams struct {
	AccountNumber     string
	FromAccountNumber string
	BankCode          string
	Amount            decimal.Decimal
	Description       string
	RequestHash       string
}
