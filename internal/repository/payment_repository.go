package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flexa/stylebot/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new pending payment. Amount and credit count come from the
// server-side package table, never from client input. The NOT EXISTS guard in
// the insert makes one-pending-per-user hold even when two submissions race
// past the HasPending pre-check.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.Status = models.PaymentPending

	var ocrJSON any
	if payment.OCRData != nil {
		raw, err := json.Marshal(payment.OCRData)
		if err != nil {
			return fmt.Errorf("marshal ocr data: %w", err)
		}
		ocrJSON = string(raw)
	}

	const query = `
INSERT INTO payments (id, user_id, package_type, amount_birr, credits_amount, screenshot_url, ocr_extracted_data, status)
SELECT ?, ?, ?, ?, ?, NULLIF(?, ''), ?, 'pending' FROM DUAL
WHERE NOT EXISTS (SELECT 1 FROM payments WHERE user_id = ? AND status = 'pending')`
	res, err := r.db.ExecContext(ctx, query, payment.ID, payment.UserID, payment.PackageType,
		payment.AmountBirr, payment.CreditsAmount, payment.ScreenshotURL, ocrJSON, payment.UserID)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPendingPaymentExists
	}
	return nil
}

// HasPending reports whether the user already has a payment awaiting review.
func (r *PaymentRepository) HasPending(ctx context.Context, userID int64) (bool, error) {
	var count int
	const query = `SELECT COUNT(*) FROM payments WHERE user_id = ? AND status = 'pending'`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("count pending payments: %w", err)
	}
	return count > 0, nil
}

// ApproveResult reports the ledger effect of an approval.
type ApproveResult struct {
	UserID     int64
	Credits    int
	NewBalance int
}

// Approve flips a pending payment to approved and credits the purchased amount
// in the same transaction. A concurrent approve or reject loses the row lock
// race and gets ErrConflict; the credit is applied exactly once.
func (r *PaymentRepository) Approve(ctx context.Context, paymentID string, adminID int64) (*ApproveResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve tx: %w", err)
	}
	defer tx.Rollback()

	var (
		userID  int64
		credits int
		status  models.PaymentStatus
	)
	const lock = `SELECT user_id, credits_amount, status FROM payments WHERE id = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, lock, paymentID).Scan(&userID, &credits, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock payment: %w", err)
	}
	if !status.CanTransition(models.PaymentApproved) {
		return nil, ErrConflict
	}

	const update = `
UPDATE payments SET status = 'approved', admin_id = ?, reviewed_at = NOW()
WHERE id = ? AND status = 'pending'`
	res, err := tx.ExecContext(ctx, update, adminID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("approve payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("approve rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrConflict
	}

	newBalance, err := creditUserTx(ctx, tx, userID, credits, models.TransactionPurchase, paymentID, "Credit package purchase")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve tx: %w", err)
	}
	return &ApproveResult{UserID: userID, Credits: credits, NewBalance: newBalance}, nil
}

// Reject flips a pending payment to rejected with the admin's reason. No
// ledger effect.
func (r *PaymentRepository) Reject(ctx context.Context, paymentID string, adminID int64, reason string) error {
	const query = `
UPDATE payments SET status = 'rejected', admin_id = ?, admin_note = ?, reviewed_at = NOW()
WHERE id = ? AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, adminID, reason, paymentID)
	if err != nil {
		return fmt.Errorf("reject payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE id = ?`, paymentID).Scan(&exists); err != nil {
			return fmt.Errorf("check payment exists: %w", err)
		}
		if exists == 0 {
			return ErrPaymentNotFound
		}
		return ErrConflict
	}
	return nil
}

const paymentColumns = `
id, user_id, package_type, amount_birr, credits_amount, COALESCE(screenshot_url, ''), ocr_extracted_data,
status, admin_id, COALESCE(admin_note, ''), submitted_at, reviewed_at`

func (r *PaymentRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	var p models.Payment
	var ocrRaw sql.NullString
	var adminID sql.NullInt64
	var reviewedAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.PackageType, &p.AmountBirr, &p.CreditsAmount, &p.ScreenshotURL, &ocrRaw,
		&p.Status, &adminID, &p.AdminNote, &p.SubmittedAt, &reviewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if adminID.Valid {
		p.AdminID = &adminID.Int64
	}
	if reviewedAt.Valid {
		p.ReviewedAt = &reviewedAt.Time
	}
	if ocrRaw.Valid && ocrRaw.String != "" {
		var ocr models.OCRData
		if err := json.Unmarshal([]byte(ocrRaw.String), &ocr); err == nil {
			p.OCRData = &ocr
		}
	}
	return &p, nil
}

// PendingPage returns one page of payments awaiting review, oldest first, with
// the submitting user joined in, plus the total pending count.
func (r *PaymentRepository) PendingPage(ctx context.Context, page, pageSize int) ([]models.PendingPayment, int, error) {
	if pageSize <= 0 {
		pageSize = 5
	}
	if page < 1 {
		page = 1
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE status = 'pending'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pending payments: %w", err)
	}

	const query = `
SELECT p.id, p.user_id, p.package_type, p.amount_birr, p.credits_amount, COALESCE(p.screenshot_url, ''), p.ocr_extracted_data,
       p.status, p.admin_id, COALESCE(p.admin_note, ''), p.submitted_at, p.reviewed_at,
       COALESCE(u.first_name, ''), COALESCE(u.username, ''), COALESCE(u.language, 'en')
FROM payments p
LEFT JOIN users u ON p.user_id = u.id
WHERE p.status = 'pending'
ORDER BY p.submitted_at ASC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query pending payments: %w", err)
	}
	defer rows.Close()

	var payments []models.PendingPayment
	for rows.Next() {
		var p models.PendingPayment
		var ocrRaw sql.NullString
		var adminID sql.NullInt64
		var reviewedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.UserID, &p.PackageType, &p.AmountBirr, &p.CreditsAmount, &p.ScreenshotURL, &ocrRaw,
			&p.Status, &adminID, &p.AdminNote, &p.SubmittedAt, &reviewedAt,
			&p.UserFirstName, &p.UserUsername, &p.UserLanguage); err != nil {
			return nil, 0, fmt.Errorf("scan pending payment: %w", err)
		}
		if adminID.Valid {
			p.AdminID = &adminID.Int64
		}
		if reviewedAt.Valid {
			p.ReviewedAt = &reviewedAt.Time
		}
		if ocrRaw.Valid && ocrRaw.String != "" {
			var ocr models.OCRData
			if err := json.Unmarshal([]byte(ocrRaw.String), &ocr); err == nil {
				p.OCRData = &ocr
			}
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}
