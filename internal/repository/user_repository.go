package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flexa/stylebot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
id, COALESCE(username, ''), first_name, language, credit_balance, total_generations, is_active, is_banned, joined_at, last_active`

func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// Ensure returns the user, creating it on first contact. A newly created user
// receives the welcome bonus through the ledger, inside the same transaction,
// so the bonus entry is appended exactly once.
func (r *UserRepository) Ensure(ctx context.Context, id int64, username, firstName string, language models.Language, bonusCredits int) (*models.User, bool, error) {
	existing, err := r.Get(ctx, id)
	if err == nil {
		// Best effort; a stale last_active must not block the contact.
		_ = r.touchProfile(ctx, id, username)
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin create user tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `
INSERT INTO users (id, username, first_name, language, credit_balance)
VALUES (?, NULLIF(?, ''), ?, ?, ?)
ON DUPLICATE KEY UPDATE username = VALUES(username), last_active = NOW()`
	res, err := tx.ExecContext(ctx, insert, id, username, firstName, language, bonusCredits)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	// MySQL reports 1 affected row for an insert, 2 for a duplicate-key update.
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("user rows affected: %w", err)
	}
	created := affected == 1

	if created && bonusCredits > 0 {
		if err := appendTransactionTx(ctx, tx, id, bonusCredits, models.TransactionBonus, "", bonusCredits, "Welcome bonus"); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit create user tx: %w", err)
	}

	user, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (r *UserRepository) touchProfile(ctx context.Context, id int64, username string) error {
	const query = `UPDATE users SET username = NULLIF(?, ''), last_active = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, id); err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	return nil
}

func (r *UserRepository) SetLanguage(ctx context.Context, id int64, language models.Language) error {
	const query = `UPDATE users SET language = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, language, id); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (r *UserRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	const query = `UPDATE users SET is_banned = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, banned, id)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("banned rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Page returns one page of users, newest first, plus the total user count.
func (r *UserRepository) Page(ctx context.Context, page, pageSize int) ([]models.User, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY joined_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.Language, &u.CreditBalance,
		&u.TotalGenerations, &u.IsActive, &u.IsBanned, &u.JoinedAt, &u.LastActive); err != nil {
		return nil, err
	}
	return &u, nil
}
