/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for users, accounts and the internal transfer ledger. OTP, debt
 * and interbank operations live in sibling files of this package.
 *
 * Balance math is done on decimal values scanned from `numeric` columns as
 * text; amounts are passed back as text and cast in SQL, so no float ever
 * touches a balance.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Fixed-point money values.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrSelfTransfer         = errors.New("cannot transfer to own account")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidOrExpiredOTP  = errors.New("invalid or expired code")
	ErrOTPIntentMismatch    = errors.New("confirmation does not match initiated transfer")
	ErrDebtNotFound         = errors.New("debt reminder not found")
	ErrDebtForbidden        = errors.New("not a participant of this debt reminder")
	ErrDebtNotPending       = errors.New("debt reminder is not pending")
	ErrBankNotLinked        = errors.New("bank is not linked")
	ErrDuplicateDeposit     = errors.New("deposit request already processed")
	ErrSettlementNotFound   = errors.New("interbank settlement not found")
	ErrSettlementNotPending = errors.New("interbank settlement is not pending")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse numeric %q: %w", s, err)
	}
	return d, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, email, full_name FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.FullName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindAccountByUserID retrieves a user's ledger account from the database.
func (r *PostgresRepository) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string
	query := `SELECT id, user_id, account_number, balance::text, created_at, updated_at FROM accounts WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &balanceStr, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if account.Balance, err = parseAmount(balanceStr); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountByNumber retrieves an account by its externally addressable number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string
	query := `SELECT id, user_id, account_number, balance::text, created_at, updated_at FROM accounts WHERE account_number = $1`
	err := r.db.QueryRow(ctx, query, accountNumber).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &balanceStr, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if account.Balance, err = parseAmount(balanceStr); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountHolder resolves an account together with its owner in one query.
func (r *PostgresRepository) FindAccountHolder(ctx context.Context, accountNumber string) (*domain.Account, *domain.User, error) {
	var account domain.Account
	var user domain.User
	var balanceStr string
	query := `
		SELECT a.id, a.user_id, a.account_number, a.balance::text, a.created_at, a.updated_at,
		       u.id, u.email, u.full_name
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.account_number = $1
	`
	err := r.db.QueryRow(ctx, query, accountNumber).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &balanceStr, &account.CreatedAt, &account.UpdatedAt,
		&user.ID, &user.Email, &user.FullName,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, ErrAccountNotFound
		}
		return nil, nil, err
	}
	if account.Balance, err = parseAmount(balanceStr); err != nil {
		return nil, nil, err
	}
	return &account, &user, nil
}

// lockAccount locks an account row for update and returns its balance.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (decimal.Decimal, error) {
	var balanceStr string
	err := tx.QueryRow(ctx, `SELECT balance::text FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balanceStr)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return parseAmount(balanceStr)
}

// lockAccountPair locks two account rows in a stable order (ascending id) so
// that concurrent transfers touching the same accounts cannot deadlock.
func lockAccountPair(ctx context.Context, tx pgx.Tx, first, second uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	a, b := first, second
	if b.String() < a.String() {
		a, b = b, a
	}
	balances := make(map[uuid.UUID]decimal.Decimal, 2)
	for _, id := range []uuid.UUID{a, b} {
		balance, err := lockAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		balances[id] = balance
	}
	return balances, nil
}

func setBalance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, balance decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = $1::numeric, updated_at = NOW() WHERE id = $2`,
		balance.String(), accountID)
	return err
}

// ConfirmTransfer settles an internal peer transfer in one transaction:
// consume the OTP (its bound intent must match the resubmitted parameters),
// debit the sender, credit the receiver, write the ledger row.
func (r *PostgresRepository) ConfirmTransfer(ctx context.Context, p ConfirmTransferParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := consumeOneTimeCode(ctx, tx, otpIntent{
		UserID:          p.UserID,
		Code:            p.OTPCode,
		Purpose:         domain.OTPPurposeTransfer,
		Amount:          p.Amount,
		ToAccountNumber: p.ToAccountNumber,
		FeePayer:        p.FeePayer,
	}); err != nil {
		return nil, err
	}

	var fromID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM accounts WHERE user_id = $1`, p.UserID).Scan(&fromID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	var toID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM accounts WHERE account_number = $1`, p.ToAccountNumber).Scan(&toID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}

	balances, err := lockAccountPair(ctx, tx, fromID, toID)
	if err != nil {
		return nil, err
	}

	total, received := domain.SplitFee(p.Amount, p.Fee, p.FeePayer)
	if balances[fromID].LessThan(total) {
		return nil, ErrInsufficientFunds
	}

	if err := setBalance(ctx, tx, fromID, balances[fromID].Sub(total)); err != nil {
		return nil, err
	}
	if err := setBalance(ctx, tx, toID, balances[toID].Add(received)); err != nil {
		return nil, err
	}

	record := &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: &fromID,
		ToAccountID:   &toID,
		Amount:        p.Amount,
		Fee:           p.Fee,
		FeePayer:      p.FeePayer,
		Type:          domain.TransactionTypeTransfer,
		Status:        domain.TransactionStatusSuccess,
		Description:   p.Description,
	}
	if err := insertTransaction(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, record *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, from_account_id, to_account_id, amount, fee, fee_payer, type, status, description)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9)
		RETURNING created_at
	`
	return tx.QueryRow(ctx, query,
		record.ID, record.FromAccountID, record.ToAccountID,
		record.Amount.String(), record.Fee.String(), record.FeePayer,
		record.Type, record.Status, record.Description,
	).Scan(&record.CreatedAt)
}

// FindTransactionsByAccountID retrieves the ledger history for an account,
// newest first.
func (r *PostgresRepository) FindTransactionsByAccountID(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	query := `
		SELECT id, from_account_id, to_account_id, amount::text, fee::text, fee_payer, type, status,
		       COALESCE(description, '') AS description, created_at
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var record domain.Transaction
		var amountStr, feeStr string
		err := rows.Scan(
			&record.ID, &record.FromAccountID, &record.ToAccountID, &amountStr, &feeStr,
			&record.FeePayer, &record.Type, &record.Status, &record.Description, &record.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if record.Amount, err = parseAmount(amountStr); err != nil {
			return nil, err
		}
		if record.Fee, err = parseAmount(feeStr); err != nil {
			return nil, err
		}
		transactions = append(transactions, record)
	}
	return transactions, rows.Err()
}
