package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/app"
	"github.com/meridianbank/funds-service/internal/domain"
	"github.com/meridianbank/funds-service/internal/store"
	"github.com/meridianbank/funds-service/pkg/bankclient"
	"github.com/meridianbank/funds-service/pkg/banksign"
	"github.com/meridianbank/funds-service/pkg/rabbitmq"
)

type bankRepoStub struct {
	store.Repository

	bank    *domain.LinkedBank
	account *domain.Account
	holder  *domain.User

	credited bool
}

func (s *bankRepoStub) FindLinkedBank(ctx context.Context, bankCode string) (*domain.LinkedBank, error) {
	if s.bank != nil && s.bank.BankCode == bankCode {
		return s.bank, nil
	}
	return nil, store.ErrBankNotLinked
}

func (s *bankRepoStub) FindAccountHolder(ctx context.Context, accountNumber string) (*domain.Account, *domain.User, error) {
	if s.account != nil && s.account.AccountNumber == accountNumber {
		return s.account, s.holder, nil
	}
	return nil, nil, store.ErrAccountNotFound
}

func (s *bankRepoStub) CreditInboundDeposit(ctx context.Context, p store.CreditInboundDepositParams) (decimal.Decimal, *domain.InterbankTransaction, error) {
	if s.account == nil || s.account.AccountNumber != p.AccountNumber {
		return decimal.Zero, nil, store.ErrAccountNotFound
	}
	s.credited = true
	return s.account.Balance.Add(p.Amount), &domain.InterbankTransaction{
		ID:        uuid.New(),
		Direction: domain.InterbankDirectionIncoming,
		Status:    domain.InterbankStatusSuccess,
		Amount:    p.Amount,
	}, nil
}

type bankFixture struct {
	repo      *bankRepoStub
	router    http.Handler
	remoteKey *rsa.PrivateKey
	localKey  *rsa.PrivateKey
}

func newBankFixture(t *testing.T) *bankFixture {
	t.Helper()
	localKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	remoteKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	pubRaw, err := x509.MarshalPKIXPublicKey(&remoteKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubRaw})

	holderID := uuid.New()
	repo := &bankRepoStub{
		bank: &domain.LinkedBank{
			ID:           uuid.New(),
			BankCode:     "RBNK",
			PublicKeyPEM: string(pubPEM),
			SharedSecret: "shared-secret",
			IsActive:     true,
		},
		account: &domain.Account{
			ID: uuid.New(), UserID: holderID, AccountNumber: "1111111111",
			Balance: decimal.RequireFromString("100000"),
		},
		holder: &domain.User{ID: holderID, Email: "ada@example.com", FullName: "Ada Obi"},
	}

	service := app.NewService(repo, bankclient.NewClient("MBNK", localKey, 2*time.Second), &rabbitmq.EventProducerFallback{}, nil, app.Config{
		BankCode:    "MBNK",
		TransferFee: decimal.RequireFromString("5000"),
		OTPTTL:      5 * time.Minute,
	})
	return &bankFixture{
		repo:      repo,
		router:    FundsRoutes(NewFundsHandlers(service), "test-secret"),
		remoteKey: remoteKey,
		localKey:  localKey,
	}
}

func (f *bankFixture) accountInfoRequest(t *testing.T, ts int64, secret string) banksign.AccountInfoRequest {
	t.Helper()
	payload := banksign.AccountInfoPayload("1111111111", ts)
	sig, err := banksign.Sign(f.remoteKey, []byte(payload))
	if err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}
	return banksign.AccountInfoRequest{
		AccountNumber: "1111111111",
		Timestamp:     ts,
		BankCode:      "RBNK",
		Hash:          banksign.ComputeHMAC(payload, secret),
		Signature:     sig,
	}
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestBankAccountInfoEndpoint(t *testing.T) {
	t.Run("valid envelope returns signed holder data", func(t *testing.T) {
		fixture := newBankFixture(t)
		rec := postJSON(t, fixture.router, "/bank/account-info", fixture.accountInfoRequest(t, banksign.TimestampNow(), "shared-secret"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp banksign.AccountInfoResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Data.FullName != "Ada Obi" {
			t.Fatalf("expected holder name, got %q", resp.Data.FullName)
		}
		if err := banksign.VerifyResponseData(&fixture.localKey.PublicKey, resp.Data, resp.Signature); err != nil {
			t.Fatalf("expected response signed with our key: %v", err)
		}
	})

	t.Run("wrong shared secret is 403", func(t *testing.T) {
		fixture := newBankFixture(t)
		rec := postJSON(t, fixture.router, "/bank/account-info", fixture.accountInfoRequest(t, banksign.TimestampNow(), "wrong-secret"))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("stale timestamp is 400", func(t *testing.T) {
		fixture := newBankFixture(t)
		ts := time.Now().Add(-10 * time.Minute).UnixMilli()
		rec := postJSON(t, fixture.router, "/bank/account-info", fixture.accountInfoRequest(t, ts, "shared-secret"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown bank is 403", func(t *testing.T) {
		fixture := newBankFixture(t)
		req := fixture.accountInfoRequest(t, banksign.TimestampNow(), "shared-secret")
		req.BankCode = "XBNK"
		rec := postJSON(t, fixture.router, "/bank/account-info", req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})
}

func TestBankDepositEndpoint(t *testing.T) {
	fixture := newBankFixture(t)
	ts := banksign.TimestampNow()
	payload := banksign.DepositPayload("1111111111", "3333333333", "50000.00", ts)
	sig, err := banksign.Sign(fixture.remoteKey, []byte(payload))
	if err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}
	rec := postJSON(t, fixture.router, "/bank/deposit", banksign.DepositRequest{
		AccountNumber:     "1111111111",
		FromAccountNumber: "3333333333",
		Amount:            "50000.00",
		Timestamp:         ts,
		BankCode:          "RBNK",
		Hash:              banksign.ComputeHMAC(payload, "shared-secret"),
		Signature:         sig,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !fixture.repo.credited {
		t.Fatal("expected the account to be credited")
	}
	var resp banksign.DepositResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Status != "success" {
		t.Fatalf("expected success ack, got %q", resp.Data.Status)
	}
	if !resp.Data.NewBalance.Equal(decimal.RequireFromString("150000.00")) {
		t.Fatalf("expected new balance 150000.00, got %s", resp.Data.NewBalance)
	}
}

func TestBankDepositUnknownAccount(t *testing.T) {
	fixture := newBankFixture(t)
	ts := banksign.TimestampNow()
	payload := banksign.DepositPayload("9999999999", "3333333333", "50000.00", ts)
	sig, err := banksign.Sign(fixture.remoteKey, []byte(payload))
	if err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}
	rec := postJSON(t, fixture.router, "/bank/deposit", banksign.DepositRequest{
		AccountNumber:     "9999999999",
		FromAccountNumber: "3333333333",
		Amount:            "50000.00",
		Timestamp:         ts,
		BankCode:          "RBNK",
		Hash:              banksign.ComputeHMAC(payload, "shared-secret"),
		Signature:         sig,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if fixture.repo.credited {
		t.Fatal("expected no credit for an unknown account")
	}
	var resp banksign.DepositResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Status != "failed" {
		t.Fatalf("expected failed ack, got %q", resp.Data.Status)
	}
	if err := banksign.VerifyResponseData(&fixture.localKey.PublicKey, resp.Data, resp.Signature); err != nil {
		t.Fatalf("expected refusal signed with our key: %v", err)
	}
}

// TestBankDepositRefusalRoundTrip drives this service's own deposit endpoint
// through the outbound client, as a counterparty running the same code would.
// An unknown destination must come back as a verified decline so the sender
// can refund the debit.
func TestBankDepositRefusalRoundTrip(t *testing.T) {
	fixture := newBankFixture(t)
	server := httptest.NewServer(fixture.router)
	defer server.Close()

	client := bankclient.NewClient("RBNK", fixture.remoteKey, 2*time.Second)
	endpoint := bankclient.Endpoint{
		BankCode:     "MBNK",
		BaseURL:      server.URL,
		DepositPath:  "/bank/deposit",
		SharedSecret: "shared-secret",
		PublicKey:    &fixture.localKey.PublicKey,
	}
	_, err := client.Deposit(context.Background(), endpoint, "9999999999", "3333333333", "50000.00", "rent")
	if !errors.Is(err, bankclient.ErrRemoteDeclined) {
		t.Fatalf("expected ErrRemoteDeclined, got %v", err)
	}
}

func TestCustomerEndpointsRequireAuth(t *testing.T) {
	fixture := newBankFixture(t)
	req := httptest.NewRequest("GET", "/account", nil)
	rec := httptest.NewRecorder()
	fixture.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}
