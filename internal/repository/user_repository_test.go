package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexa/stylebot/internal/models"
)

func userRows(id int64, balance int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "username", "first_name", "language", "credit_balance",
		"total_generations", "is_active", "is_banned", "joined_at", "last_active",
	}).AddRow(id, "abel", "Abel", "en", balance, 0, true, false, now, now)
}

func TestUserRepository_Ensure(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesWithWelcomeBonus", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
			WithArgs(int64(7), "abel", "Abel", models.LanguageEN, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_transactions`)).
			WithArgs(sqlmock.AnyArg(), int64(7), 3, models.TransactionBonus, "", 3, "Welcome bonus").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
			WithArgs(int64(7)).
			WillReturnRows(userRows(7, 3))

		user, created, err := repo.Ensure(ctx, 7, "abel", "Abel", models.LanguageEN, 3)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 3, user.CreditBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConcurrentCreateGrantsBonusOnce", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		// Another Ensure won the insert race: MySQL reports 2 affected rows
		// for the duplicate-key update, so no bonus entry is appended here.
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
			WithArgs(int64(7), "abel", "Abel", models.LanguageEN, 3).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
			WithArgs(int64(7)).
			WillReturnRows(userRows(7, 3))

		_, created, err := repo.Ensure(ctx, 7, "abel", "Abel", models.LanguageEN, 3)
		require.NoError(t, err)
		assert.False(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExistingUserTouchesProfile", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
			WithArgs(int64(7)).
			WillReturnRows(userRows(7, 3))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET username = NULLIF(?, ''), last_active = NOW() WHERE id = ?`)).
			WithArgs("abel", int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		user, created, err := repo.Ensure(ctx, 7, "abel", "Abel", models.LanguageEN, 3)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(7), user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoBonusConfigured", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
			WithArgs(int64(7), "abel", "Abel", models.LanguageEN, 0).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
			WithArgs(int64(7)).
			WillReturnRows(userRows(7, 0))

		_, created, err := repo.Ensure(ctx, 7, "abel", "Abel", models.LanguageEN, 0)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_SetBanned(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_banned = ? WHERE id = ?`)).
			WithArgs(true, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetBanned(context.Background(), 7, true))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_banned = ? WHERE id = ?`)).
			WithArgs(true, int64(404)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.SetBanned(context.Background(), 404, true), ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
