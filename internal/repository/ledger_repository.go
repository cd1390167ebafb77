package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flexa/stylebot/internal/models"
)

// LedgerRepository owns the users.credit_balance column and the append-only
// credit_transactions table. Every balance mutation in the system goes through
// Debit/Credit here or through the in-transaction helpers below, so the sum of
// a user's transaction amounts always equals the stored balance.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Debit atomically removes amount credits from the user, increments the
// generation counter and appends a generation-kind ledger entry. Returns
// ErrInsufficientFunds without any writes when the balance is too low.
func (r *LedgerRepository) Debit(ctx context.Context, userID int64, amount int, referenceID, note string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := debitUserTx(ctx, tx, userID, amount, referenceID, note)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit debit tx: %w", err)
	}
	return balance, nil
}

// Credit atomically adds amount credits to the user and appends a ledger entry
// of the given kind. It always succeeds for an existing user.
func (r *LedgerRepository) Credit(ctx context.Context, userID int64, amount int, kind models.TransactionKind, referenceID, note string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("invalid transaction kind: %s", kind)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := creditUserTx(ctx, tx, userID, amount, kind, referenceID, note)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credit tx: %w", err)
	}
	return balance, nil
}

// Adjust applies a signed admin correction to the balance. A claw-back that
// would push the balance below zero returns ErrInsufficientFunds with no
// writes.
func (r *LedgerRepository) Adjust(ctx context.Context, userID int64, amount int, note string) (int, error) {
	if amount == 0 {
		return 0, fmt.Errorf("adjustment amount cannot be zero")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin adjust tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := lockBalanceTx(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	newBalance := balance + amount
	if newBalance < 0 {
		return 0, ErrInsufficientFunds
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET credit_balance = ? WHERE id = ?`, newBalance, userID); err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	if err := appendTransactionTx(ctx, tx, userID, amount, models.TransactionAdminAdjustment, "", newBalance, note); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit adjust tx: %w", err)
	}
	return newBalance, nil
}

func (r *LedgerRepository) Balance(ctx context.Context, userID int64) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx, `SELECT credit_balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

// History returns the user's most recent ledger entries, newest first.
func (r *LedgerRepository) History(ctx context.Context, userID int64, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
SELECT id, user_id, amount, transaction_type, COALESCE(reference_id, ''), balance_after, COALESCE(note, ''), created_at
FROM credit_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger history: %w", err)
	}
	defer rows.Close()

	var entries []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.ReferenceID, &t.BalanceAfter, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

// lockBalanceTx takes a row lock on the user and returns the current balance.
// The lock serializes all concurrent balance checks and mutations for one user
// until the surrounding transaction commits.
func lockBalanceTx(ctx context.Context, tx *sql.Tx, userID int64) (int, error) {
	var balance int
	err := tx.QueryRowContext(ctx, `SELECT credit_balance FROM users WHERE id = ? FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock user row: %w", err)
	}
	return balance, nil
}

// debitUserTx performs the check-decrement-append sequence inside an open
// transaction. Callers compose it with their own writes (generation creation)
// so the whole unit commits or rolls back together.
func debitUserTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, referenceID, note string) (int, error) {
	balance, err := lockBalanceTx(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if balance < amount {
		return 0, ErrInsufficientFunds
	}
	newBalance := balance - amount

	const update = `
UPDATE users SET credit_balance = ?, total_generations = total_generations + 1, last_active = NOW()
WHERE id = ?`
	if _, err := tx.ExecContext(ctx, update, newBalance, userID); err != nil {
		return 0, fmt.Errorf("decrement balance: %w", err)
	}
	if err := appendTransactionTx(ctx, tx, userID, -amount, models.TransactionGeneration, referenceID, newBalance, note); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// creditUserTx increments the balance and appends the matching ledger entry
// inside an open transaction.
func creditUserTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, kind models.TransactionKind, referenceID, note string) (int, error) {
	balance, err := lockBalanceTx(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	newBalance := balance + amount

	if _, err := tx.ExecContext(ctx, `UPDATE users SET credit_balance = ? WHERE id = ?`, newBalance, userID); err != nil {
		return 0, fmt.Errorf("increment balance: %w", err)
	}
	if err := appendTransactionTx(ctx, tx, userID, amount, kind, referenceID, newBalance, note); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func appendTransactionTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, kind models.TransactionKind, referenceID string, balanceAfter int, note string) error {
	const insert = `
INSERT INTO credit_transactions (id, user_id, amount, transaction_type, reference_id, balance_after, note)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, NULLIF(?, ''))`
	if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), userID, amount, kind, referenceID, balanceAfter, note); err != nil {
		return fmt.Errorf("append credit transaction: %w", err)
	}
	return nil
}
