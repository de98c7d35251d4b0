/**
 * @description
 * PostgreSQL persistence for the interbank settlement ledger and the linked
 * bank registry.
 *
 * The outbound flow is split across three methods on purpose:
 * CommitOutboundTransfer is the local atomic leg (debit + pending row + OTP),
 * executed before any network I/O; MarkOutboundTransferSettled and
 * RefundOutboundTransfer resolve the pending row after the remote leg, each in
 * its own transaction.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/domain"
)

// FindLinkedBank retrieves a partner bank by its code.
func (r *PostgresRepository) FindLinkedBank(ctx context.Context, bankCode string) (*domain.LinkedBank, error) {
	var bank domain.LinkedBank
	query := `
		SELECT id, bank_code, bank_name, public_key_pem, shared_secret, callback_url,
		       account_info_path, deposit_path, is_active
		FROM linked_banks
		WHERE bank_code = $1
	`
	err := r.db.QueryRow(ctx, query, bankCode).Scan(
		&bank.ID, &bank.BankCode, &bank.BankName, &bank.PublicKeyPEM, &bank.SharedSecret,
		&bank.CallbackURL, &bank.AccountInfoPath, &bank.DepositPath, &bank.IsActive,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBankNotLinked
		}
		return nil, err
	}
	return &bank, nil
}

// CommitOutboundTransfer executes the local leg of an outbound interbank
// transfer in one transaction: consume the OTP (bound to bank code, amount
// and destination at initiation), debit the sender amount plus fee, and
// insert the settlement row as pending. The remote leg runs after commit.
func (r *PostgresRepository) CommitOutboundTransfer(ctx context.Context, p CommitOutboundTransferParams) (*domain.InterbankTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := consumeOneTimeCode(ctx, tx, otpIntent{
		UserID:          p.UserID,
		Code:            p.OTPCode,
		Purpose:         domain.OTPPurposeExternalTransfer,
		Amount:          p.Amount,
		ToAccountNumber: p.ToAccountNumber,
		FeePayer:        domain.FeePayerSender,
		BankCode:        p.BankCode,
	}); err != nil {
		return nil, err
	}

	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM accounts WHERE user_id = $1`, p.UserID).Scan(&accountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	balance, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	total := p.Amount.Add(p.Fee)
	if balance.LessThan(total) {
		return nil, ErrInsufficientFunds
	}
	if err := setBalance(ctx, tx, accountID, balance.Sub(total)); err != nil {
		return nil, err
	}

	settlement := &domain.InterbankTransaction{
		ID:                    uuid.New(),
		Direction:             domain.InterbankDirectionOutgoing,
		InternalAccountID:     accountID,
		ExternalAccountNumber: p.ToAccountNumber,
		BankCode:              p.BankCode,
		Amount:                p.Amount,
		Fee:                   p.Fee,
		Status:                domain.InterbankStatusPending,
		Description:           p.Description,
	}
	query := `
		INSERT INTO interbank_transactions (id, direction, internal_account_id, external_account_number, bank_code, amount, fee, status, description)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		settlement.ID, settlement.Direction, settlement.InternalAccountID,
		settlement.ExternalAccountNumber, settlement.BankCode,
		settlement.Amount.String(), settlement.Fee.String(),
		settlement.Status, settlement.Description,
	).Scan(&settlement.CreatedAt, &settlement.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return settlement, nil
}

// MarkOutboundTransferSettled transitions a pending outgoing settlement to a
// terminal status without touching balances. Already-resolved rows are not
// re-transitioned.
func (r *PostgresRepository) MarkOutboundTransferSettled(ctx context.Context, settlementID uuid.UUID, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE interbank_transactions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		status, settlementID, domain.InterbankStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotPending
	}
	return nil
}

// RefundOutboundTransfer compensates a failed outbound settlement: the row is
// marked failed and the full debited total (amount plus fee) is credited back
// to the sender, atomically.
func (r *PostgresRepository) RefundOutboundTransfer(ctx context.Context, settlementID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var accountID uuid.UUID
	var amountStr, feeStr, status string
	err = tx.QueryRow(ctx,
		`SELECT internal_account_id, amount::text, fee::text, status FROM interbank_transactions WHERE id = $1 FOR UPDATE`,
		settlementID,
	).Scan(&accountID, &amountStr, &feeStr, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrSettlementNotFound
		}
		return err
	}
	if status != domain.InterbankStatusPending {
		return ErrSettlementNotPending
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return err
	}
	fee, err := parseAmount(feeStr)
	if err != nil {
		return err
	}

	balance, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if err := setBalance(ctx, tx, accountID, balance.Add(amount.Add(fee))); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE interbank_transactions SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.InterbankStatusFailed, settlementID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreditInboundDeposit credits a local account on behalf of a linked bank and
// records the incoming settlement row in one transaction. The request hash is
// stored under a unique constraint; a second submission of the same signed
// request reports ErrDuplicateDeposit and leaves the balance untouched.
func (r *PostgresRepository) CreditInboundDeposit(ctx context.Context, p CreditInboundDepositParams) (decimal.Decimal, *domain.InterbankTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, nil, err
	}
	defer tx.Rollback(ctx)

	var accountID uuid.UUID
	var balanceStr string
	err = tx.QueryRow(ctx,
		`SELECT id, balance::text FROM accounts WHERE account_number = $1 FOR UPDATE`,
		p.AccountNumber,
	).Scan(&accountID, &balanceStr)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, nil, ErrAccountNotFound
		}
		return decimal.Zero, nil, err
	}
	balance, err := parseAmount(balanceStr)
	if err != nil {
		return decimal.Zero, nil, err
	}

	requestHash := p.RequestHash
	settlement := &domain.InterbankTransaction{
		ID:                    uuid.New(),
		Direction:             domain.InterbankDirectionIncoming,
		InternalAccountID:     accountID,
		ExternalAccountNumber: p.FromAccountNumber,
		BankCode:              p.BankCode,
		Amount:                p.Amount,
		Fee:                   decimal.Zero,
		Status:                domain.InterbankStatusSuccess,
		Description:           p.Description,
		RequestHash:           &requestHash,
	}
	query := `
		INSERT INTO interbank_transactions (id, direction, internal_account_id, external_account_number, bank_code, amount, fee, status, description, request_hash)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		settlement.ID, settlement.Direction, settlement.InternalAccountID,
		settlement.ExternalAccountNumber, settlement.BankCode,
		settlement.Amount.String(), settlement.Fee.String(),
		settlement.Status, settlement.Description, settlement.RequestHash,
	).Scan(&settlement.CreatedAt, &settlement.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return decimal.Zero, nil, ErrDuplicateDeposit
		}
		return decimal.Zero, nil, err
	}

	newBalance := balance.Add(p.Amount)
	if err := setBalance(ctx, tx, accountID, newBalance); err != nil {
		return decimal.Zero, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, nil, err
	}
	return newBalance, settlement, nil
}

// FindStalePendingOutbound lists outgoing settlements that have sat in the
// pending state past the given cutoff, oldest first, for the reconciliation
// sweep.
func (r *PostgresRepository) FindStalePendingOutbound(ctx context.Context, olderThan time.Time, limit int) ([]domain.InterbankTransaction, error) {
	query := `
		SELECT id, direction, internal_account_id, external_account_number, bank_code,
		       amount::text, fee::text, status, COALESCE(description, ''), created_at, updated_at
		FROM interbank_transactions
		WHERE direction = $1 AND status = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query,
		domain.InterbankDirectionOutgoing, domain.InterbankStatusPending, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settlements []domain.InterbankTransaction
	for rows.Next() {
		var settlement domain.InterbankTransaction
		var amountStr, feeStr string
		err := rows.Scan(
			&settlement.ID, &settlement.Direction, &settlement.InternalAccountID,
			&settlement.ExternalAccountNumber, &settlement.BankCode,
			&amountStr, &feeStr, &settlement.Status, &settlement.Description,
			&settlement.CreatedAt, &settlement.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if settlement.Amount, err = parseAmount(amountStr); err != nil {
			return nil, err
		}
		if settlement.Fee, err = parseAmount(feeStr); err != nil {
			return nil, err
		}
		settlements = append(settlements, settlement)
	}
	return settlements, rows.Err()
}
