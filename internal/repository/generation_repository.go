package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flexa/stylebot/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const generationColumns = `
id, user_id, COALESCE(style_id, ''), status, COALESCE(original_photo_url, ''), COALESCE(generated_photo_url, ''),
credits_spent, COALESCE(error_message, ''), COALESCE(api_provider, ''), COALESCE(processing_time_ms, 0), created_at, completed_at`

// CreateCharged creates a pending generation and debits its cost in one
// transaction. The user row lock taken by the debit serializes concurrent
// Start calls for the same user, so the active-slot check, the balance check
// and the insert all observe the same snapshot. Returns the balance after the
// debit.
func (r *GenerationRepository) CreateCharged(ctx context.Context, gen *models.Generation) (int, error) {
	if gen.CreditsSpent <= 0 {
		return 0, fmt.Errorf("credits_spent must be positive, got %d", gen.CreditsSpent)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin start tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := lockBalanceTx(ctx, tx, gen.UserID)
	if err != nil {
		return 0, err
	}

	var active int
	const countActive = `
SELECT COUNT(*) FROM generations
WHERE user_id = ? AND status IN ('pending','processing','manual_queue')`
	if err := tx.QueryRowContext(ctx, countActive, gen.UserID).Scan(&active); err != nil {
		return 0, fmt.Errorf("count active generations: %w", err)
	}
	if active > 0 {
		return 0, ErrActiveGenerationExists
	}
	if balance < gen.CreditsSpent {
		return 0, ErrInsufficientFunds
	}

	// The ID must exist before the debit so the ledger entry references it.
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	gen.Status = models.GenerationPending

	// Debit first, then insert the row: an interrupted creation can never
	// leave a generation without its reserved credits.
	newBalance, err := debitUserTx(ctx, tx, gen.UserID, gen.CreditsSpent, gen.ID, "Photo generation")
	if err != nil {
		return 0, err
	}

	const insert = `
INSERT INTO generations (id, user_id, style_id, status, original_photo_url, credits_spent)
VALUES (?, ?, NULLIF(?, ''), 'pending', NULLIF(?, ''), ?)`
	if _, err := tx.ExecContext(ctx, insert, gen.ID, gen.UserID, gen.StyleID, gen.OriginalPhotoURL, gen.CreditsSpent); err != nil {
		return 0, fmt.Errorf("insert generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit start tx: %w", err)
	}
	return newBalance, nil
}

// MarkProcessing moves a pending generation to processing.
func (r *GenerationRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE generations SET status = 'processing' WHERE id = ? AND status = 'pending'`
	return r.guardedUpdate(ctx, id, query, id)
}

// Complete attaches the AI result. Legal only from pending or processing.
func (r *GenerationRepository) Complete(ctx context.Context, id, resultURL, provider string, durationMS int64) error {
	const query = `
UPDATE generations
SET status = 'completed', generated_photo_url = ?, api_provider = ?, processing_time_ms = ?, completed_at = NOW()
WHERE id = ? AND status IN ('pending','processing')`
	return r.guardedUpdate(ctx, id, query, resultURL, provider, durationMS, id)
}

// Fail records a definitive failure. Legal only from pending or processing;
// credits are not refunded.
func (r *GenerationRepository) Fail(ctx context.Context, id, errMsg string) error {
	const query = `
UPDATE generations
SET status = 'failed', error_message = ?, completed_at = NOW()
WHERE id = ? AND status IN ('pending','processing')`
	return r.guardedUpdate(ctx, id, query, errMsg, id)
}

// QueueManual hands the generation to the human queue. Credits stay debited.
func (r *GenerationRepository) QueueManual(ctx context.Context, id, errMsg, provider string, durationMS int64) error {
	const query = `
UPDATE generations
SET status = 'manual_queue', error_message = ?, api_provider = NULLIF(?, ''), processing_time_ms = ?
WHERE id = ? AND status IN ('pending','processing')`
	return r.guardedUpdate(ctx, id, query, errMsg, provider, durationMS, id)
}

// ResolveManualComplete attaches an admin-uploaded result to a manual-queue
// generation. No ledger change: the credits were spent at creation.
func (r *GenerationRepository) ResolveManualComplete(ctx context.Context, id, resultURL string) error {
	const query = `
UPDATE generations
SET status = 'completed', generated_photo_url = ?, api_provider = 'manual', completed_at = NOW()
WHERE id = ? AND status = 'manual_queue'`
	return r.guardedUpdate(ctx, id, query, resultURL, id)
}

// CancelResult reports the outcome of a manual-queue cancellation.
type CancelResult struct {
	UserID     int64
	Refunded   int
	NewBalance int
}

// CancelManual fails a manual-queue generation and refunds its frozen cost as
// an admin adjustment. The status flip and the refund commit together, and the
// status guard makes the refund happen at most once per generation.
func (r *GenerationRepository) CancelManual(ctx context.Context, id, reason string) (*CancelResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback()

	var (
		userID int64
		spent  int
		status models.GenerationStatus
	)
	const lock = `SELECT user_id, credits_spent, status FROM generations WHERE id = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, lock, id).Scan(&userID, &spent, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock generation: %w", err)
	}
	if status != models.GenerationManualQueue {
		return nil, ErrConflict
	}

	const update = `
UPDATE generations
SET status = 'failed', error_message = ?, api_provider = 'manual', completed_at = NOW()
WHERE id = ? AND status = 'manual_queue'`
	res, err := tx.ExecContext(ctx, update, reason, id)
	if err != nil {
		return nil, fmt.Errorf("cancel generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cancel rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrConflict
	}

	newBalance, err := creditUserTx(ctx, tx, userID, spent, models.TransactionAdminAdjustment, id, "Manual task cancelled: "+reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}
	return &CancelResult{UserID: userID, Refunded: spent, NewBalance: newBalance}, nil
}

// QueueStale moves live generations older than the cutoff to the manual
// queue. Covers processing rows too: a crash mid-transform would otherwise
// strand the row and hold the user's active slot forever. Intended for an
// external scheduler; there is no background sweeper in this package.
func (r *GenerationRepository) QueueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `
UPDATE generations
SET status = 'manual_queue', error_message = 'stale generation'
WHERE status IN ('pending','processing') AND created_at < (NOW() - INTERVAL ? SECOND)`
	res, err := r.db.ExecContext(ctx, query, int64(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("queue stale pending: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale rows affected: %w", err)
	}
	return moved, nil
}

func (r *GenerationRepository) Get(ctx context.Context, id string) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGenerationNotFound
	}
	return gen, err
}

// ActiveForUser returns the user's generation currently occupying the single
// active slot, or nil when the slot is free.
func (r *GenerationRepository) ActiveForUser(ctx context.Context, userID int64) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + `
FROM generations WHERE user_id = ? AND status IN ('pending','processing','manual_queue')
ORDER BY created_at DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, userID)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return gen, err
}

// ManualQueuePage returns one page of the manual queue, oldest first, with the
// joined user and style fields admins need, plus the total queue length.
func (r *GenerationRepository) ManualQueuePage(ctx context.Context, page, pageSize int) ([]models.ManualTask, int, error) {
	if pageSize <= 0 {
		pageSize = 5
	}
	if page < 1 {
		page = 1
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations WHERE status = 'manual_queue'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count manual queue: %w", err)
	}

	const query = `
SELECT g.id, g.user_id, COALESCE(g.style_id, ''), g.status, COALESCE(g.original_photo_url, ''), COALESCE(g.generated_photo_url, ''),
       g.credits_spent, COALESCE(g.error_message, ''), COALESCE(g.api_provider, ''), COALESCE(g.processing_time_ms, 0), g.created_at, g.completed_at,
       COALESCE(u.first_name, ''), COALESCE(u.username, ''), COALESCE(u.language, 'en'),
       COALESCE(s.name_en, ''), COALESCE(s.prompt_template, '')
FROM generations g
LEFT JOIN users u ON g.user_id = u.id
LEFT JOIN styles s ON g.style_id = s.id
WHERE g.status = 'manual_queue'
ORDER BY g.created_at ASC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query manual queue: %w", err)
	}
	defer rows.Close()

	var tasks []models.ManualTask
	for rows.Next() {
		var t models.ManualTask
		var completedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.StyleID, &t.Status, &t.OriginalPhotoURL, &t.GeneratedPhotoURL,
			&t.CreditsSpent, &t.ErrorMessage, &t.APIProvider, &t.ProcessingTimeMS, &t.CreatedAt, &completedAt,
			&t.UserFirstName, &t.UserUsername, &t.UserLanguage, &t.StyleName, &t.PromptTemplate); err != nil {
			return nil, 0, fmt.Errorf("scan manual task: %w", err)
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// guardedUpdate runs a transition UPDATE whose WHERE clause encodes the legal
// source states. Zero affected rows means either a missing row or a lost race.
func (r *GenerationRepository) guardedUpdate(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("generation rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check generation exists: %w", err)
		}
		if exists == 0 {
			return ErrGenerationNotFound
		}
		return ErrConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*models.Generation, error) {
	var g models.Generation
	var completedAt sql.NullTime
	if err := row.Scan(&g.ID, &g.UserID, &g.StyleID, &g.Status, &g.OriginalPhotoURL, &g.GeneratedPhotoURL,
		&g.CreditsSpent, &g.ErrorMessage, &g.APIProvider, &g.ProcessingTimeMS, &g.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		g.CompletedAt = &completedAt.Time
	}
	return &g, nil
}
