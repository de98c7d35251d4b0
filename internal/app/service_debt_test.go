package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/domain"
	"github.com/meridianbank/funds-service/internal/store"
)

type debtRepoStub struct {
	store.Repository

	users    map[uuid.UUID]*domain.User
	accounts map[uuid.UUID]*domain.Account
	reminder *domain.DebtReminder

	createdReminder *domain.DebtReminder
	createdOTP      *domain.OneTimeCode
}

func (s *debtRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if user, ok := s.users[userID]; ok {
		return user, nil
	}
	return nil, store.ErrUserNotFound
}

func (s *debtRepoStub) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	if account, ok := s.accounts[userID]; ok {
		return account, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *debtRepoStub) FindDebtReminderByID(ctx context.Context, reminderID uuid.UUID) (*domain.DebtReminder, error) {
	if s.reminder != nil && s.reminder.ID == reminderID {
		return s.reminder, nil
	}
	return nil, store.ErrDebtNotFound
}

func (s *debtRepoStub) CreateDebtReminder(ctx context.Context, reminder *domain.DebtReminder) error {
	s.createdReminder = reminder
	return nil
}

func (s *debtRepoStub) CreateOneTimeCode(ctx context.Context, otp *domain.OneTimeCode) error {
	s.createdOTP = otp
	return nil
}

func newDebtFixture() (*debtRepoStub, *Service, uuid.UUID, uuid.UUID) {
	creditorID := uuid.New()
	debtorID := uuid.New()
	repo := &debtRepoStub{
		users: map[uuid.UUID]*domain.User{
			creditorID: {ID: creditorID, Email: "ada@example.com", FullName: "Ada Obi"},
			debtorID:   {ID: debtorID, Email: "bola@example.com", FullName: "Bola Ade"},
		},
		accounts: map[uuid.UUID]*domain.Account{
			creditorID: {ID: uuid.New(), UserID: creditorID, AccountNumber: "1111111111", Balance: decimal.RequireFromString("5000")},
			debtorID:   {ID: uuid.New(), UserID: debtorID, AccountNumber: "2222222222", Balance: decimal.RequireFromString("50000")},
		},
		reminder: &domain.DebtReminder{
			ID:         uuid.New(),
			FromUserID: creditorID,
			ToUserID:   debtorID,
			Amount:     decimal.RequireFromString("30000"),
			Status:     domain.DebtStatusPending,
		},
	}
	service := NewService(repo, nil, &capturePublisher{}, nil, Config{
		TransferFee: decimal.RequireFromString("5000"),
		OTPTTL:      5 * time.Minute,
	})
	return repo, service, creditorID, debtorID
}

func TestCreateDebtReminderValidation(t *testing.T) {
	repo, service, creditorID, debtorID := newDebtFixture()

	t.Run("amount must be positive", func(t *testing.T) {
		_, err := service.CreateDebtReminder(context.Background(), creditorID, domain.CreateDebtReminderRequest{
			ToUserID: debtorID, Amount: decimal.Zero,
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("cannot remind yourself", func(t *testing.T) {
		_, err := service.CreateDebtReminder(context.Background(), creditorID, domain.CreateDebtReminderRequest{
			ToUserID: creditorID, Amount: decimal.RequireFromString("100"),
		})
		if !errors.Is(err, store.ErrSelfTransfer) {
			t.Fatalf("expected ErrSelfTransfer, got %v", err)
		}
	})

	t.Run("debtor must exist", func(t *testing.T) {
		_, err := service.CreateDebtReminder(context.Background(), creditorID, domain.CreateDebtReminderRequest{
			ToUserID: uuid.New(), Amount: decimal.RequireFromString("100"),
		})
		if !errors.Is(err, store.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("valid reminder starts pending", func(t *testing.T) {
		reminder, err := service.CreateDebtReminder(context.Background(), creditorID, domain.CreateDebtReminderRequest{
			ToUserID: debtorID, Amount: decimal.RequireFromString("100"), Description: "lunch",
		})
		if err != nil {
			t.Fatalf("expected reminder creation to succeed: %v", err)
		}
		if reminder.Status != domain.DebtStatusPending {
			t.Fatalf("expected pending status, got %q", reminder.Status)
		}
		if repo.createdReminder == nil {
			t.Fatal("expected reminder to be persisted")
		}
	})
}

func TestInitiateDebtPayment(t *testing.T) {
	t.Run("only the debtor may pay", func(t *testing.T) {
		repo, service, creditorID, _ := newDebtFixture()
		_, err := service.InitiateDebtPayment(context.Background(), creditorID, repo.reminder.ID)
		if !errors.Is(err, store.ErrDebtForbidden) {
			t.Fatalf("expected ErrDebtForbidden, got %v", err)
		}
	})

	t.Run("only pending reminders are payable", func(t *testing.T) {
		repo, service, _, debtorID := newDebtFixture()
		repo.reminder.Status = domain.DebtStatusCancelled
		_, err := service.InitiateDebtPayment(context.Background(), debtorID, repo.reminder.ID)
		if !errors.Is(err, store.ErrDebtNotPending) {
			t.Fatalf("expected ErrDebtNotPending, got %v", err)
		}
	})

	t.Run("balance must cover amount plus fee", func(t *testing.T) {
		repo, service, _, debtorID := newDebtFixture()
		repo.accounts[debtorID].Balance = decimal.RequireFromString("34000")
		_, err := service.InitiateDebtPayment(context.Background(), debtorID, repo.reminder.ID)
		if !errors.Is(err, store.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("code is bound to the reminder", func(t *testing.T) {
		repo, service, _, debtorID := newDebtFixture()
		initiation, err := service.InitiateDebtPayment(context.Background(), debtorID, repo.reminder.ID)
		if err != nil {
			t.Fatalf("expected initiation to succeed: %v", err)
		}
		if initiation.RecipientName != "Ada Obi" {
			t.Fatalf("expected creditor name, got %q", initiation.RecipientName)
		}
		otp := repo.createdOTP
		if otp == nil || otp.Purpose != domain.OTPPurposeDebtPayment {
			t.Fatalf("expected debt payment code, got %+v", otp)
		}
		if otp.DebtReminderID == nil || *otp.DebtReminderID != repo.reminder.ID {
			t.Fatal("expected code bound to the reminder")
		}
		if !otp.Amount.Equal(repo.reminder.Amount) {
			t.Fatalf("expected code bound to the reminder amount, got %s", otp.Amount)
		}
	})
}
