package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/flexa/stylebot/internal/models"
)

// notEmpty matches any non-empty string argument.
type notEmpty struct{}

func (notEmpty) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func TestGenerationRepository_CreateCharged(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		// No pre-set ID, as in the live Start path: the repository assigns
		// the UUID, and the ledger entry must reference it.
		gen := &models.Generation{
			UserID:           7,
			StyleID:          "style-1",
			OriginalPhotoURL: "https://cdn.example/photo.jpg",
			CreditsSpent:     1,
		}

		mock.ExpectBegin()
		expectLockBalance(mock, 7, 5)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM generations`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		expectLockBalance(mock, 7, 5)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET credit_balance = ?, total_generations = total_generations + 1, last_active = NOW()`)).
			WithArgs(4, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_transactions`)).
			WithArgs(sqlmock.AnyArg(), int64(7), -1, models.TransactionGeneration, notEmpty{}, 4, "Photo generation").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO generations`)).
			WithArgs(notEmpty{}, int64(7), "style-1", "https://cdn.example/photo.jpg", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		balance, err := repo.CreateCharged(ctx, gen)
		assert.NoError(t, err)
		assert.Equal(t, 4, balance)
		assert.NotEmpty(t, gen.ID)
		assert.Equal(t, models.GenerationPending, gen.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ActiveGenerationExists", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		mock.ExpectBegin()
		expectLockBalance(mock, 7, 5)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM generations`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		_, err := repo.CreateCharged(ctx, &models.Generation{UserID: 7, StyleID: "style-1", CreditsSpent: 1})
		assert.ErrorIs(t, err, ErrActiveGenerationExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		mock.ExpectBegin()
		expectLockBalance(mock, 7, 0)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM generations`)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectRollback()

		_, err := repo.CreateCharged(ctx, &models.Generation{UserID: 7, StyleID: "style-1", CreditsSpent: 1})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NonPositiveCost", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewGenerationRepository(db)

		_, err := repo.CreateCharged(ctx, &models.Generation{UserID: 7, StyleID: "style-1"})
		assert.Error(t, err)
	})
}

func TestGenerationRepository_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		mock.ExpectExec(regexp.QuoteMeta(`SET status = 'completed'`)).
			WithArgs("https://cdn.example/out.png", "banana", int64(4200), "gen-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Complete(ctx, "gen-1", "https://cdn.example/out.png", "banana", 4200)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		mock.ExpectExec(regexp.QuoteMeta(`SET status = 'completed'`)).
			WithArgs("https://cdn.example/out.png", "banana", int64(4200), "gen-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM generations WHERE id = ?`)).
			WithArgs("gen-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := repo.Complete(ctx, "gen-1", "https://cdn.example/out.png", "banana", 4200)
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		mock.ExpectExec(regexp.QuoteMeta(`SET status = 'completed'`)).
			WithArgs("https://cdn.example/out.png", "banana", int64(4200), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM generations WHERE id = ?`)).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		err := repo.Complete(ctx, "missing", "https://cdn.example/out.png", "banana", 4200)
		assert.ErrorIs(t, err, ErrGenerationNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGenerationRepository_CancelManual(t *testing.T) {
	ctx := context.Background()

	t.Run("RefundsOnce", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, credits_spent, status FROM generations WHERE id = ? FOR UPDATE`)).
			WithArgs("gen-1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "credits_spent", "status"}).AddRow(7, 2, "manual_queue"))
		mock.ExpectExec(regexp.QuoteMeta(`SET status = 'failed'`)).
			WithArgs("operator declined", "gen-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectLockBalance(mock, 7, 1)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET credit_balance = ? WHERE id = ?`)).
			WithArgs(3, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO credit_transactions`)).
			WithArgs(sqlmock.AnyArg(), int64(7), 2, models.TransactionAdminAdjustment, "gen-1", 3, "Manual task cancelled: operator declined").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := repo.CancelManual(ctx, "gen-1", "operator declined")
		assert.NoError(t, err)
		assert.Equal(t, int64(7), res.UserID)
		assert.Equal(t, 2, res.Refunded)
		assert.Equal(t, 3, res.NewBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotInManualQueue", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewGenerationRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, credits_spent, status FROM generations WHERE id = ? FOR UPDATE`)).
			WithArgs("gen-1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "credits_spent", "status"}).AddRow(7, 2, "failed"))
		mock.ExpectRollback()

		_, err := repo.CancelManual(ctx, "gen-1", "too late")
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGenerationRepository_QueueStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGenerationRepository(db)

	// The sweep must reach processing rows as well, or a crash mid-transform
	// leaves the user's active slot blocked forever.
	mock.ExpectExec(regexp.QuoteMeta(`WHERE status IN ('pending','processing') AND created_at < (NOW() - INTERVAL ? SECOND)`)).
		WithArgs(int64(900)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	moved, err := repo.QueueStale(context.Background(), 15*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}
