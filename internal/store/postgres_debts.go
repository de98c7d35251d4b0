/**
 * @description
 * PostgreSQL persistence for debt reminders. Payment settlement follows the
 * same atomic shape as internal transfers: OTP consumption, reminder state
 * transition, balance mutations and the ledger row all commit together.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridianbank/funds-service/internal/domain"
)

// CreateDebtReminder inserts a new pending reminder.
func (r *PostgresRepository) CreateDebtReminder(ctx context.Context, reminder *domain.DebtReminder) error {
	query := `
		INSERT INTO debt_reminders (id, from_user_id, to_user_id, amount, description, status)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		reminder.ID, reminder.FromUserID, reminder.ToUserID,
		reminder.Amount.String(), reminder.Description, reminder.Status,
	).Scan(&reminder.CreatedAt, &reminder.UpdatedAt)
}

// FindDebtReminderByID retrieves a single reminder.
func (r *PostgresRepository) FindDebtReminderByID(ctx context.Context, reminderID uuid.UUID) (*domain.DebtReminder, error) {
	var reminder domain.DebtReminder
	var amountStr string
	query := `
		SELECT id, from_user_id, to_user_id, amount::text, COALESCE(description, ''), status, created_at, updated_at
		FROM debt_reminders
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, reminderID).Scan(
		&reminder.ID, &reminder.FromUserID, &reminder.ToUserID, &amountStr,
		&reminder.Description, &reminder.Status, &reminder.CreatedAt, &reminder.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDebtNotFound
		}
		return nil, err
	}
	if reminder.Amount, err = parseAmount(amountStr); err != nil {
		return nil, err
	}
	return &reminder, nil
}

// ListDebtRemindersByUser returns every reminder the user participates in,
// either side, joined with both parties' display names, newest first.
func (r *PostgresRepository) ListDebtRemindersByUser(ctx context.Context, userID uuid.UUID) ([]domain.DebtReminderView, error) {
	query := `
		SELECT d.id, d.from_user_id, d.to_user_id, d.amount::text, COALESCE(d.description, ''), d.status,
		       d.created_at, d.updated_at, cu.full_name, du.full_name
		FROM debt_reminders d
		JOIN users cu ON cu.id = d.from_user_id
		JOIN users du ON du.id = d.to_user_id
		WHERE d.from_user_id = $1 OR d.to_user_id = $1
		ORDER BY d.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []domain.DebtReminderView
	for rows.Next() {
		var view domain.DebtReminderView
		var amountStr string
		err := rows.Scan(
			&view.ID, &view.FromUserID, &view.ToUserID, &amountStr, &view.Description, &view.Status,
			&view.CreatedAt, &view.UpdatedAt, &view.FromUserName, &view.ToUserName,
		)
		if err != nil {
			return nil, err
		}
		if view.Amount, err = parseAmount(amountStr); err != nil {
			return nil, err
		}
		reminders = append(reminders, view)
	}
	return reminders, rows.Err()
}

// CancelDebtReminder transitions a pending reminder to cancelled. Either
// participant may cancel; anyone else is rejected.
func (r *PostgresRepository) CancelDebtReminder(ctx context.Context, reminderID, byUserID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var fromUserID, toUserID uuid.UUID
	var status string
	err = tx.QueryRow(ctx,
		`SELECT from_user_id, to_user_id, status FROM debt_reminders WHERE id = $1 FOR UPDATE`,
		reminderID,
	).Scan(&fromUserID, &toUserID, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrDebtNotFound
		}
		return err
	}
	if byUserID != fromUserID && byUserID != toUserID {
		return ErrDebtForbidden
	}
	if status != domain.DebtStatusPending {
		return ErrDebtNotPending
	}

	_, err = tx.Exec(ctx,
		`UPDATE debt_reminders SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.DebtStatusCancelled, reminderID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConfirmDebtPayment settles a pending reminder in one transaction: the OTP
// bound to the reminder is consumed, the debtor is debited amount plus fee,
// the creditor is credited the full amount, the reminder is marked paid and a
// debt_pay ledger row is written. Only the debtor may pay.
func (r *PostgresRepository) ConfirmDebtPayment(ctx context.Context, p ConfirmDebtPaymentParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var fromUserID, toUserID uuid.UUID
	var amountStr, status string
	err = tx.QueryRow(ctx,
		`SELECT from_user_id, to_user_id, amount::text, status FROM debt_reminders WHERE id = $1 FOR UPDATE`,
		p.ReminderID,
	).Scan(&fromUserID, &toUserID, &amountStr, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDebtNotFound
		}
		return nil, err
	}
	if p.UserID != toUserID {
		return nil, ErrDebtForbidden
	}
	if status != domain.DebtStatusPending {
		return nil, ErrDebtNotPending
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}

	reminderID := p.ReminderID
	if err := consumeOneTimeCode(ctx, tx, otpIntent{
		UserID:         p.UserID,
		Code:           p.OTPCode,
		Purpose:        domain.OTPPurposeDebtPayment,
		Amount:         amount,
		DebtReminderID: &reminderID,
	}); err != nil {
		return nil, err
	}

	var debtorAccountID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM accounts WHERE user_id = $1`, toUserID).Scan(&debtorAccountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	var creditorAccountID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM accounts WHERE user_id = $1`, fromUserID).Scan(&creditorAccountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	balances, err := lockAccountPair(ctx, tx, debtorAccountID, creditorAccountID)
	if err != nil {
		return nil, err
	}

	// Debt settlement always charges the fee to the payer.
	total := amount.Add(p.Fee)
	if balances[debtorAccountID].LessThan(total) {
		return nil, ErrInsufficientFunds
	}
	if err := setBalance(ctx, tx, debtorAccountID, balances[debtorAccountID].Sub(total)); err != nil {
		return nil, err
	}
	if err := setBalance(ctx, tx, creditorAccountID, balances[creditorAccountID].Add(amount)); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE debt_reminders SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.DebtStatusPaid, p.ReminderID)
	if err != nil {
		return nil, err
	}

	record := &domain.Transaction{
		ID:            uuid.New(),
		FromAccountID: &debtorAccountID,
		ToAccountID:   &creditorAccountID,
		Amount:        amount,
		Fee:           p.Fee,
		FeePayer:      domain.FeePayerSender,
		Type:          domain.TransactionTypeDebtPay,
		Status:        domain.TransactionStatusSuccess,
		Description:   "debt reminder settlement",
	}
	if err := insertTransaction(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}
