/**
 * @description
 * Interbank settlement logic: the outbound two-step transfer to a linked bank
 * and the inbound endpoints a linked bank calls on us.
 *
 * Outbound ordering is the heart of the design. The local leg (sender debit,
 * pending settlement row, OTP consumption) commits BEFORE any network call.
 * The remote leg then resolves the pending row:
 *   - verified acknowledgment        -> success
 *   - verified refusal               -> failed, debit refunded
 *   - unverifiable response          -> failed, debit kept (outcome claimed
 *     by an unauthenticated party is not evidence the remote leg failed)
 *   - transport error / timeout      -> stays pending for the reconciliation
 *     sweep; money is never re-credited on an unknown outcome
 *
 * Inbound requests fail closed: freshness, HMAC and signature must all pass
 * before any lookup or credit happens.
 *
 * @dependencies
 * - internal/store, pkg/bankclient, pkg/banksign: Data access, transport, envelope.
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
	"github.com/meridianbank/funds-service/pkg/banksign"
)

// endpointFor turns a linked bank row into a call target, parsing its
// registered public key.
func endpointFor(bank *domain.LinkedBank) (bankclient.Endpoint, error) {
	publicKey, err := banksign.ParsePublicKey([]byte(bank.PublicKeyPEM))
	if err != nil {
		return bankclient.Endpoint{}, fmt.Errorf("bad public key for bank %s: %w", bank.BankCode, err)
	}
	return bankclient.Endpoint{
		BankCode:        bank.BankCode,
		BaseURL:         bank.CallbackURL,
		AccountInfoPath: bank.AccountInfoPath,
		DepositPath:     bank.DepositPath,
		SharedSecret:    bank.SharedSecret,
		PublicKey:       publicKey,
	}, nil
}

// InitiateExternalTransfer validates an outbound interbank transfer and
// issues a one-time code bound to its parameters. The destination account is
// pre-checked against the remote bank so an unreachable or unknown recipient
// fails here, before anything is debited.
func (s *Service) InitiateExternalTransfer(ctx context.Context, userID uuid.UUID, req domain.InitiateExternalTransferRequest) (*TransferInitiation, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	bank, err := s.repo.FindLinkedBank(ctx, req.BankCode)
	if err != nil {
		return nil, err
	}
	if !bank.IsActive {
		return nil, ErrBankInactive
	}
	endpoint, err := endpointFor(bank)
	if err != nil {
		return nil, err
	}

	sender, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	senderAccount, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if senderAccount.Balance.LessThan(req.Amount.Add(s.cfg.TransferFee)) {
		return nil, store.ErrInsufficientFunds
	}

	recipient, err := s.bankClient.QueryAccountInfo(ctx, endpoint, req.ToAccountNumber)
	if err != nil {
		if errors.Is(err, bankclient.ErrRemoteDeclined) {
			return nil, ErrDestinationNotFound
		}
		log.Printf("level=warn component=funds_service op=initiate_external_transfer bank=%s msg=\"account pre-check failed\" err=%v", req.BankCode, err)
		return nil, ErrRemoteSettlement
	}

	otp := &domain.OneTimeCode{
		UserID:          userID,
		Purpose:         domain.OTPPurposeExternalTransfer,
		Amount:          req.Amount,
		ToAccountNumber: req.ToAccountNumber,
		FeePayer:        domain.FeePayerSender,
		BankCode:        req.BankCode,
	}
	if err := s.issueOneTimeCode(ctx, sender, otp); err != nil {
		return nil, err
	}

	log.Printf("level=info component=funds_service op=initiate_external_transfer user_id=%s bank=%s to=%s amount=%s", userID, req.BankCode, req.ToAccountNumber, req.Amount)
	return &TransferInitiation{
		RecipientName: recipient.FullName,
		Amount:        req.Amount,
		Fee:           s.cfg.TransferFee,
		FeePayer:      domain.FeePayerSender,
		ExpiresAt:     otp.ExpiresAt,
	}, nil
}

// ConfirmExternalTransfer runs the outbound settlement. The local leg commits
// first; the remote deposit call then resolves the pending row per the branch
// table in the file header. The returned settlement reflects the status at
// return time, which may still be pending when the remote outcome is unknown.
func (s *Service) ConfirmExternalTransfer(ctx context.Context, userID uuid.UUID, req domain.ConfirmExternalTransferRequest) (*domain.InterbankTransaction, error) {
	if err := s.checkConfirmRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	bank, err := s.repo.FindLinkedBank(ctx, req.BankCode)
	if err != nil {
		return nil, err
	}
	if !bank.IsActive {
		return nil, ErrBankInactive
	}
	endpoint, err := endpointFor(bank)
	if err != nil {
		return nil, err
	}

	senderAccount, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	settlement, err := s.repo.CommitOutboundTransfer(ctx, store.CommitOutboundTransferParams{
		UserID:          userID,
		OTPCode:         req.OTPCode,
		BankCode:        req.BankCode,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
		Fee:             s.cfg.TransferFee,
		Description:     req.Description,
	})
	if err != nil {
		return nil, err
	}

	ack, err := s.bankClient.Deposit(ctx, endpoint, req.ToAccountNumber, senderAccount.AccountNumber, req.Amount.String(), req.Description)
	switch {
	case err == nil:
		if markErr := s.repo.MarkOutboundTransferSettled(ctx, settlement.ID, domain.InterbankStatusSuccess); markErr != nil {
			log.Printf("level=error component=funds_service op=confirm_external_transfer settlement_id=%s msg=\"failed to mark success\" err=%v", settlement.ID, markErr)
		}
		settlement.Status = domain.InterbankStatusSuccess
		log.Printf("level=info component=funds_service op=confirm_external_transfer settlement_id=%s status=success remote_balance=%s", settlement.ID, ack.NewBalance)
		return settlement, nil

	case errors.Is(err, bankclient.ErrRemoteDeclined):
		// Authentic refusal: compensate the local debit.
		if refundErr := s.repo.RefundOutboundTransfer(ctx, settlement.ID); refundErr != nil {
			log.Printf("level=error component=funds_service op=confirm_external_transfer settlement_id=%s msg=\"refund failed\" err=%v", settlement.ID, refundErr)
			return nil, refundErr
		}
		log.Printf("level=warn component=funds_service op=confirm_external_transfer settlement_id=%s status=failed msg=\"remote bank declined; sender refunded\"", settlement.ID)
		return nil, ErrRemoteSettlement

	case errors.Is(err, bankclient.ErrUnverifiedResponse):
		// A response that fails verification proves nothing about the remote
		// leg. The settlement is closed as failed but the debit stands until
		// an operator reconciles it with the counterparty.
		if markErr := s.repo.MarkOutboundTransferSettled(ctx, settlement.ID, domain.InterbankStatusFailed); markErr != nil {
			log.Printf("level=error component=funds_service op=confirm_external_transfer settlement_id=%s msg=\"failed to mark failed\" err=%v", settlement.ID, markErr)
		}
		log.Printf("level=error component=funds_service op=confirm_external_transfer settlement_id=%s status=failed msg=\"unverifiable response; manual reconciliation required\"", settlement.ID)
		return nil, ErrRemoteSettlement

	default:
		// Transport failure: outcome unknown. The row stays pending for the
		// reconciliation sweep.
		log.Printf("level=warn component=funds_service op=confirm_external_transfer settlement_id=%s status=pending msg=\"remote outcome unknown\" err=%v", settlement.ID, err)
		return settlement, nil
	}
}

// QueryLocalAccountInfo serves an inbound account query from a linked bank.
// The envelope is fully verified before any data is read, and the response
// data block is signed with our private key.
func (s *Service) QueryLocalAccountInfo(ctx context.Context, req banksign.AccountInfoRequest) (*banksign.AccountInfoResponse, error) {
	bank, err := s.repo.FindLinkedBank(ctx, req.BankCode)
	if err != nil {
		return nil, err
	}
	if !bank.IsActive {
		return nil, ErrBankInactive
	}
	publicKey, err := banksign.ParsePublicKey([]byte(bank.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("bad public key for bank %s: %w", bank.BankCode, err)
	}

	payload := banksign.AccountInfoPayload(req.AccountNumber, req.Timestamp)
	if err := banksign.VerifyEnvelope(payload, req.Timestamp, bank.SharedSecret, publicKey, req.Hash, req.Signature, time.Now()); err != nil {
		log.Printf("level=warn component=funds_service op=inbound_account_info bank=%s msg=\"envelope rejected\" err=%v", req.BankCode, err)
		return nil, err
	}

	account, holder, err := s.repo.FindAccountHolder(ctx, req.AccountNumber)
	if err != nil {
		return nil, err
	}

	data := banksign.AccountInfoData{
		AccountNumber: account.AccountNumber,
		FullName:      holder.FullName,
		Balance:       account.Balance,
	}
	signature, err := banksign.SignResponseData(s.bankClient.PrivateKey, data)
	if err != nil {
		return nil, err
	}
	return &banksign.AccountInfoResponse{Data: data, Signature: signature}, nil
}

// signedDepositRefusal builds a signed failed acknowledgment for a deposit
// that was authentically requested but could not be credited. Signing the
// refusal lets the counterparty trust it and compensate its sender.
func (s *Service) signedDepositRefusal(accountNumber string) *banksign.DepositResponse {
	data := banksign.DepositAckData{
		Status:        "failed",
		NewBalance:    decimal.Zero,
		AccountNumber: accountNumber,
		Timestamp:     banksign.TimestampNow(),
	}
	signature, err := banksign.SignResponseData(s.bankClient.PrivateKey, data)
	if err != nil {
		log.Printf("level=error component=funds_service op=inbound_deposit msg=\"failed to sign refusal\" err=%v", err)
		return nil
	}
	return &banksign.DepositResponse{Data: data, Signature: signature}
}

// ProcessInboundDeposit serves an inbound deposit from a linked bank: full
// envelope verification, then an atomic credit with replay suppression keyed
// on the request's HMAC, then a signed acknowledgment.
//
// Refusals after the envelope verified and before any credit happened (bad
// amount, unknown account) are returned as a signed failed acknowledgment
// alongside the error, so the counterparty can safely refund its sender.
// Envelope failures and duplicates stay unsigned: the former cannot be
// attributed, and a duplicate means money may already have moved.
func (s *Service) ProcessInboundDeposit(ctx context.Context, req banksign.DepositRequest) (*banksign.DepositResponse, error) {
	bank, err := s.repo.FindLinkedBank(ctx, req.BankCode)
	if err != nil {
		return nil, err
	}
	if !bank.IsActive {
		return nil, ErrBankInactive
	}
	publicKey, err := banksign.ParsePublicKey([]byte(bank.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("bad public key for bank %s: %w", bank.BankCode, err)
	}

	// The amount is hashed exactly as transmitted.
	payload := banksign.DepositPayload(req.AccountNumber, req.FromAccountNumber, req.Amount, req.Timestamp)
	if err := banksign.VerifyEnvelope(payload, req.Timestamp, bank.SharedSecret, publicKey, req.Hash, req.Signature, time.Now()); err != nil {
		log.Printf("level=warn component=funds_service op=inbound_deposit bank=%s msg=\"envelope rejected\" err=%v", req.BankCode, err)
		return nil, err
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return s.signedDepositRefusal(req.AccountNumber), ErrInvalidAmount
	}

	newBalance, settlement, err := s.repo.CreditInboundDeposit(ctx, store.CreditInboundDepositParams{
		AccountNumber:     req.AccountNumber,
		FromAccountNumber: req.FromAccountNumber,
		BankCode:          req.BankCode,
		Amount:            amount,
		Description:       req.Message,
		RequestHash:       req.Hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return s.signedDepositRefusal(req.AccountNumber), err
		}
		return nil, err
	}

	log.Printf("level=info component=funds_service op=inbound_deposit bank=%s settlement_id=%s amount=%s", req.BankCode, settlement.ID, amount)
	data := banksign.DepositAckData{
		Status:        "success",
		NewBalance:    newBalance,
		AccountNumber: req.AccountNumber,
		Timestamp:     banksign.TimestampNow(),
	}
	signature, err := banksign.SignResponseData(s.bankClient.PrivateKey, data)
	if err != nil {
		return nil, err
	}
	return &banksign.DepositResponse{Data: data, Signature: signature}, nil
}
