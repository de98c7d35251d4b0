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
	"github.com/meridianbank/funds-service/pkg/rabbitmq"
)

type capturePublisher struct {
	events []rabbitmq.OTPEmailEvent
	fail   bool
}

func (p *capturePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *capturePublisher) PublishOTPEmailEvent(ctx context.Context, event rabbitmq.OTPEmailEvent) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() {}

type transferRepoStub struct {
	store.Repository

	sender           *domain.User
	senderAccount    *domain.Account
	recipient        *domain.User
	recipientAccount *domain.Account

	createdOTP    *domain.OneTimeCode
	confirmParams *store.ConfirmTransferParams
}

func (s *transferRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if s.sender != nil && s.sender.ID == userID {
		return s.sender, nil
	}
	return nil, store.ErrUserNotFound
}

func (s *transferRepoStub) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	if s.senderAccount != nil && s.senderAccount.UserID == userID {
		return s.senderAccount, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *transferRepoStub) FindAccountHolder(ctx context.Context, accountNumber string) (*domain.Account, *domain.User, error) {
	if s.recipientAccount != nil && s.recipientAccount.AccountNumber == accountNumber {
		return s.recipientAccount, s.recipient, nil
	}
	if s.senderAccount != nil && s.senderAccount.AccountNumber == accountNumber {
		return s.senderAccount, s.sender, nil
	}
	return nil, nil, store.ErrAccountNotFound
}

func (s *transferRepoStub) CreateOneTimeCode(ctx context.Context, otp *domain.OneTimeCode) error {
	s.createdOTP = otp
	return nil
}

func (s *transferRepoStub) ConfirmTransfer(ctx context.Context, p store.ConfirmTransferParams) (*domain.Transaction, error) {
	s.confirmParams = &p
	return &domain.Transaction{
		ID:       uuid.New(),
		Amount:   p.Amount,
		Fee:      p.Fee,
		FeePayer: p.FeePayer,
		Type:     domain.TransactionTypeTransfer,
		Status:   domain.TransactionStatusSuccess,
	}, nil
}

func newTransferFixture() (*transferRepoStub, *capturePublisher, *Service) {
	senderID := uuid.New()
	recipientID := uuid.New()
	repo := &transferRepoStub{
		sender: &domain.User{ID: senderID, Email: "ada@example.com", FullName: "Ada Obi"},
		senderAccount: &domain.Account{
			ID: uuid.New(), UserID: senderID, AccountNumber: "1111111111",
			Balance: decimal.RequireFromString("100000"),
		},
		recipient: &domain.User{ID: recipientID, Email: "bola@example.com", FullName: "Bola Ade"},
		recipientAccount: &domain.Account{
			ID: uuid.New(), UserID: recipientID, AccountNumber: "2222222222",
			Balance: decimal.RequireFromString("5000"),
		},
	}
	publisher := &capturePublisher{}
	service := NewService(repo, nil, publisher, nil, Config{
		BankCode:    "MBNK",
		TransferFee: decimal.RequireFromString("5000"),
		OTPTTL:      5 * time.Minute,
	})
	return repo, publisher, service
}

func TestInitiateTransferValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.InitiateTransferRequest
		wantErr error
	}{
		{
			name: "zero amount rejected",
			req: domain.InitiateTransferRequest{
				ToAccountNumber: "2222222222", Amount: decimal.Zero, FeePayer: domain.FeePayerSender,
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "negative amount rejected",
			req: domain.InitiateTransferRequest{
				ToAccountNumber: "2222222222", Amount: decimal.RequireFromString("-10"), FeePayer: domain.FeePayerSender,
			},
			wantErr: ErrInvalidAmount,
		},
		{
			name: "unknown fee payer rejected",
			req: domain.InitiateTransferRequest{
				ToAccountNumber: "2222222222", Amount: decimal.RequireFromString("100"), FeePayer: "platform",
			},
			wantErr: ErrInvalidFeePayer,
		},
		{
			name: "unknown destination rejected",
			req: domain.InitiateTransferRequest{
				ToAccountNumber: "9999999999", Amount: decimal.RequireFromString("100"), FeePayer: domain.FeePayerSender,
			},
			wantErr: ErrDestinationNotFound,
		},
		{
			name: "self transfer rejected",
			req: domain.InitiateTransferRequest{
				ToAccountNumber: "1111111111", Amount: decimal.RequireFromString("100"), FeePayer: domain.FeePayerSender,
			},
			wantErr: store.ErrSelfTransfer,
		},
		{
			name: "balance must cover amount plus fee when sender pays",
			req: domain.InitiateTransferRequest{
				ToAccountNumber: "2222222222", Amount: decimal.RequireFromString("96000"), FeePayer: domain.FeePayerSender,
			},
			wantErr: store.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, publisher, service := newTransferFixture()
			_, err := service.InitiateTransfer(context.Background(), repo.sender.ID, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if repo.createdOTP != nil {
				t.Fatal("expected no code to be issued on a rejected initiation")
			}
			if len(publisher.events) != 0 {
				t.Fatal("expected no delivery event on a rejected initiation")
			}
		})
	}
}

func TestInitiateTransferReceiverPaysFullBalance(t *testing.T) {
	repo, _, service := newTransferFixture()
	// With the receiver paying the fee, the full balance is spendable.
	req := domain.InitiateTransferRequest{
		ToAccountNumber: "2222222222",
		Amount:          decimal.RequireFromString("100000"),
		FeePayer:        domain.FeePayerReceiver,
	}
	initiation, err := service.InitiateTransfer(context.Background(), repo.sender.ID, req)
	if err != nil {
		t.Fatalf("expected initiation to succeed: %v", err)
	}
	if initiation.RecipientName != "Bola Ade" {
		t.Fatalf("expected recipient name on the confirmation screen, got %q", initiation.RecipientName)
	}
}

func TestInitiateTransferIssuesBoundCode(t *testing.T) {
	repo, publisher, service := newTransferFixture()
	req := domain.InitiateTransferRequest{
		ToAccountNumber: "2222222222",
		Amount:          decimal.RequireFromString("20000"),
		FeePayer:        domain.FeePayerSender,
	}

	initiation, err := service.InitiateTransfer(context.Background(), repo.sender.ID, req)
	if err != nil {
		t.Fatalf("expected initiation to succeed: %v", err)
	}

	otp := repo.createdOTP
	if otp == nil {
		t.Fatal("expected a one-time code to be created")
	}
	if otp.Purpose != domain.OTPPurposeTransfer {
		t.Fatalf("expected transfer purpose, got %q", otp.Purpose)
	}
	if !otp.Amount.Equal(req.Amount) || otp.ToAccountNumber != req.ToAccountNumber || otp.FeePayer != req.FeePayer {
		t.Fatal("expected initiation parameters to be bound to the code")
	}
	if len(otp.Code) != otpCodeDigits {
		t.Fatalf("expected a %d-digit code, got %q", otpCodeDigits, otp.Code)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one delivery event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Code != otp.Code || event.Email != repo.sender.Email {
		t.Fatal("expected the delivery event to carry the issued code and the sender's email")
	}
	if !initiation.Fee.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("expected configured fee in initiation, got %s", initiation.Fee)
	}
}

func TestInitiateTransferFailsWhenDeliveryCannotBeEnqueued(t *testing.T) {
	repo, publisher, service := newTransferFixture()
	publisher.fail = true

	_, err := service.InitiateTransfer(context.Background(), repo.sender.ID, domain.InitiateTransferRequest{
		ToAccountNumber: "2222222222",
		Amount:          decimal.RequireFromString("100"),
		FeePayer:        domain.FeePayerSender,
	})
	if err == nil {
		t.Fatal("expected initiation to fail when the delivery event cannot be published")
	}
}

func TestConfirmTransferPassesConfiguredFee(t *testing.T) {
	repo, _, service := newTransferFixture()
	req := domain.ConfirmTransferRequest{
		ToAccountNumber: "2222222222",
		Amount:          decimal.RequireFromString("20000"),
		FeePayer:        domain.FeePayerSender,
		OTPCode:         "123456",
	}

	record, err := service.ConfirmTransfer(context.Background(), repo.sender.ID, req)
	if err != nil {
		t.Fatalf("expected confirmation to succeed: %v", err)
	}
	if repo.confirmParams == nil {
		t.Fatal("expected the repository confirm to be called")
	}
	if !repo.confirmParams.Fee.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("expected configured fee to be applied, got %s", repo.confirmParams.Fee)
	}
	if repo.confirmParams.OTPCode != "123456" {
		t.Fatalf("expected the submitted code to reach the repository, got %q", repo.confirmParams.OTPCode)
	}
	if record.Status != domain.TransactionStatusSuccess {
		t.Fatalf("expected success status, got %q", record.Status)
	}
}
