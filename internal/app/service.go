/**
 * @description
 * This file contains the core business logic for the funds-service. The
 * `Service` struct orchestrates internal transfers and debt reminders,
 * coordinating between the database repository, the rate limiter and the
 * message broker. Interbank settlement logic lives in interbank.go.
 *
 * Initiation validates and issues a one-time code; no balance changes until
 * the confirmation step, which executes as one repository transaction.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: IDs and money.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/bankclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/domain"
	"github.com/meridianbank/funds-service/internal/store"
	"github.com/meridianbank/funds-service/pkg/bankclient"
	"github.com/meridianbank/funds-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidFeePayer     = errors.New("fee payer must be sender or receiver")
	ErrRateLimited         = errors.New("too many confirmation attempts")
	ErrDestinationNotFound = errors.New("destination account not found")
	ErrBankInactive        = errors.New("linked bank is not active")
	ErrRemoteSettlement    = errors.New("remote bank settlement failed")
)

// Config carries the tunables the service needs from the environment.
type Config struct {
	BankCode            string
	TransferFee         decimal.Decimal
	OTPTTL              time.Duration
	OTPConfirmLimit     int
	OTPConfirmWindow    time.Duration
	ReconcilePendingAge time.Duration
	ReconcileBatchSize  int
}

// Service provides the core business logic for funds movement.
type Service struct {
	repo          store.Repository
	bankClient    *bankclient.Client
	eventProducer rabbitmq.Publisher
	rateLimiter   *OTPAttemptLimiter
	cfg           Config
}

// NewService creates a new funds service instance.
func NewService(repo store.Repository, bankClient *bankclient.Client, producer rabbitmq.Publisher, limiter *OTPAttemptLimiter, cfg Config) *Service {
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = 50
	}
	return &Service{
		repo:          repo,
		bankClient:    bankClient,
		eventProducer: producer,
		rateLimiter:   limiter,
		cfg:           cfg,
	}
}

// GetAccount returns the caller's ledger account.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByUserID(ctx, userID)
}

// LookupAccountHolder resolves an internal account number to its holder's
// display name, for recipient confirmation screens.
func (s *Service) LookupAccountHolder(ctx context.Context, accountNumber string) (*domain.Account, *domain.User, error) {
	return s.repo.FindAccountHolder(ctx, accountNumber)
}

// ListTransactions returns the caller's ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindTransactionsByAccountID(ctx, account.ID)
}

// TransferInitiation is what an initiation returns to the client: enough to
// render a confirmation screen, never the code itself.
type TransferInitiation struct {
	RecipientName string          `json:"recipient_name"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	FeePayer      string          `json:"fee_payer"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// InitiateTransfer validates an internal transfer and issues a one-time code
// bound to its parameters. No balances change here.
func (s *Service) InitiateTransfer(ctx context.Context, userID uuid.UUID, req domain.InitiateTransferRequest) (*TransferInitiation, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.FeePayer != domain.FeePayerSender && req.FeePayer != domain.FeePayerReceiver {
		return nil, ErrInvalidFeePayer
	}

	sender, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	senderAccount, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	recipientAccount, recipient, err := s.repo.FindAccountHolder(ctx, req.ToAccountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrDestinationNotFound
		}
		return nil, err
	}
	if recipientAccount.ID == senderAccount.ID {
		return nil, store.ErrSelfTransfer
	}

	total, _ := domain.SplitFee(req.Amount, s.cfg.TransferFee, req.FeePayer)
	if senderAccount.Balance.LessThan(total) {
		return nil, store.ErrInsufficientFunds
	}

	otp := &domain.OneTimeCode{
		UserID:          userID,
		Purpose:         domain.OTPPurposeTransfer,
		Amount:          req.Amount,
		ToAccountNumber: req.ToAccountNumber,
		FeePayer:        req.FeePayer,
	}
	if err := s.issueOneTimeCode(ctx, sender, otp); err != nil {
		return nil, err
	}

	log.Printf("level=info component=funds_service op=initiate_transfer user_id=%s to=%s amount=%s", userID, req.ToAccountNumber, req.Amount)
	return &TransferInitiation{
		RecipientName: recipient.FullName,
		Amount:        req.Amount,
		Fee:           s.cfg.TransferFee,
		FeePayer:      req.FeePayer,
		ExpiresAt:     otp.ExpiresAt,
	}, nil
}

// ConfirmTransfer settles an initiated internal transfer. The resubmitted
// parameters must match the intent bound to the code; the whole settlement is
// one repository transaction.
func (s *Service) ConfirmTransfer(ctx context.Context, userID uuid.UUID, req domain.ConfirmTransferRequest) (*domain.Transaction, error) {
	if err := s.checkConfirmRateLimit(ctx, userID); err != nil {
		return nil, err
	}
	record, err := s.repo.ConfirmTransfer(ctx, store.ConfirmTransferParams{
		UserID:          userID,
		OTPCode:         req.OTPCode,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
		FeePayer:        req.FeePayer,
		Fee:             s.cfg.TransferFee,
		Description:     req.Description,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=funds_service op=confirm_transfer user_id=%s transaction_id=%s amount=%s", userID, record.ID, record.Amount)
	return record, nil
}

// CreateDebtReminder records a payment request against another customer.
func (s *Service) CreateDebtReminder(ctx context.Context, userID uuid.UUID, req domain.CreateDebtReminderRequest) (*domain.DebtReminder, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.ToUserID == userID {
		return nil, store.ErrSelfTransfer
	}
	if _, err := s.repo.FindUserByID(ctx, req.ToUserID); err != nil {
		return nil, err
	}
	reminder := &domain.DebtReminder{
		ID:          uuid.New(),
		FromUserID:  userID,
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		Description: req.Description,
		Status:      domain.DebtStatusPending,
	}
	if err := s.repo.CreateDebtReminder(ctx, reminder); err != nil {
		return nil, err
	}
	log.Printf("level=info component=funds_service op=create_debt_reminder from=%s to=%s amount=%s", userID, req.ToUserID, req.Amount)
	return reminder, nil
}

// ListDebtReminders returns every reminder the caller participates in.
func (s *Service) ListDebtReminders(ctx context.Context, userID uuid.UUID) ([]domain.DebtReminderView, error) {
	return s.repo.ListDebtRemindersByUser(ctx, userID)
}

// CancelDebtReminder cancels a pending reminder on behalf of either participant.
func (s *Service) CancelDebtReminder(ctx context.Context, userID, reminderID uuid.UUID) error {
	if err := s.repo.CancelDebtReminder(ctx, reminderID, userID); err != nil {
		return err
	}
	log.Printf("level=info component=funds_service op=cancel_debt_reminder reminder_id=%s by=%s", reminderID, userID)
	return nil
}

// InitiateDebtPayment issues a one-time code for settling a pending reminder.
// Only the debtor may initiate, and their balance must cover amount plus fee.
func (s *Service) InitiateDebtPayment(ctx context.Context, userID, reminderID uuid.UUID) (*TransferInitiation, error) {
	reminder, err := s.repo.FindDebtReminderByID(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	if reminder.ToUserID != userID {
		return nil, store.ErrDebtForbidden
	}
	if reminder.Status != domain.DebtStatusPending {
		return nil, store.ErrDebtNotPending
	}

	debtor, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	debtorAccount, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	creditor, err := s.repo.FindUserByID(ctx, reminder.FromUserID)
	if err != nil {
		return nil, err
	}
	if debtorAccount.Balance.LessThan(reminder.Amount.Add(s.cfg.TransferFee)) {
		return nil, store.ErrInsufficientFunds
	}

	id := reminderID
	otp := &domain.OneTimeCode{
		UserID:         userID,
		Purpose:        domain.OTPPurposeDebtPayment,
		Amount:         reminder.Amount,
		DebtReminderID: &id,
	}
	if err := s.issueOneTimeCode(ctx, debtor, otp); err != nil {
		return nil, err
	}

	log.Printf("level=info component=funds_service op=initiate_debt_payment reminder_id=%s debtor=%s amount=%s", reminderID, userID, reminder.Amount)
	return &TransferInitiation{
		RecipientName: creditor.FullName,
		Amount:        reminder.Amount,
		Fee:           s.cfg.TransferFee,
		FeePayer:      domain.FeePayerSender,
		ExpiresAt:     otp.ExpiresAt,
	}, nil
}

// ConfirmDebtPayment settles a pending reminder with the debtor's code.
func (s *Service) ConfirmDebtPayment(ctx context.Context, userID, reminderID uuid.UUID, req domain.ConfirmDebtPaymentRequest) (*domain.Transaction, error) {
	if err := s.checkConfirmRateLimit(ctx, userID); err != nil {
		return nil, err
	}
	record, err := s.repo.ConfirmDebtPayment(ctx, store.ConfirmDebtPaymentParams{
		UserID:     userID,
		ReminderID: reminderID,
		OTPCode:    req.OTPCode,
		Fee:        s.cfg.TransferFee,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=funds_service op=confirm_debt_payment reminder_id=%s transaction_id=%s", reminderID, record.ID)
	return record, nil
}

// checkConfirmRateLimit bounds how fast a user can attempt confirmations. A
// limiter outage does not block the operation; guessing is still bounded by
// code expiry and single use.
func (s *Service) checkConfirmRateLimit(ctx context.Context, userID uuid.UUID) error {
	count, retryAfter, err := s.rateLimiter.ConsumeAttempt(ctx, userID, s.cfg.OTPConfirmWindow)
	if err != nil {
		log.Printf("level=warn component=funds_service msg=\"rate limiter unavailable\" user_id=%s err=%v", userID, err)
		return nil
	}
	if s.cfg.OTPConfirmLimit > 0 && count > s.cfg.OTPConfirmLimit {
		return fmt.Errorf("%w: retry in %ds", ErrRateLimited, retryAfter)
	}
	return nil
}
