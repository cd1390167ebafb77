package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flexa/stylebot/internal/config"
	"github.com/flexa/stylebot/internal/models"
	"github.com/flexa/stylebot/internal/notify"
	"github.com/flexa/stylebot/internal/observability"
	"github.com/flexa/stylebot/internal/repository"
)

// PaymentStore is the persistence surface the payment workflow needs.
// Satisfied by *repository.PaymentRepository.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	HasPending(ctx context.Context, userID int64) (bool, error)
	Approve(ctx context.Context, paymentID string, adminID int64) (*repository.ApproveResult, error)
	Reject(ctx context.Context, paymentID string, adminID int64, reason string) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	PendingPage(ctx context.Context, page, pageSize int) ([]models.PendingPayment, int, error)
}

// ReceiptReader extracts advisory hints from a payment screenshot. Satisfied
// by *ocr.Client. A nil result means no hint.
type ReceiptReader interface {
	Extract(ctx context.Context, imageURL string) *models.OCRData
}

type PaymentService struct {
	cfg      config.Config
	log      *slog.Logger
	payments PaymentStore
	users    userGetter
	receipts ReceiptReader
	events   notify.Emitter
}

func NewPaymentService(cfg config.Config, log *slog.Logger, payments PaymentStore, users userGetter, receipts ReceiptReader, events notify.Emitter) *PaymentService {
	return &PaymentService{
		cfg:      cfg,
		log:      log,
		payments: payments,
		users:    users,
		receipts: receipts,
		events:   events,
	}
}

// Submit records a payment claim for review. One pending payment per user at
// a time; the OCR hint is best effort and never blocks submission.
func (s *PaymentService) Submit(ctx context.Context, userID int64, packageType, screenshotURL string) (*models.Payment, error) {
	pkg, ok := s.cfg.Package(packageType)
	if !ok {
		return nil, fmt.Errorf("unknown package type: %s", packageType)
	}

	pending, err := s.payments.HasPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, repository.ErrPendingPaymentExists
	}

	var hint *models.OCRData
	if s.receipts != nil {
		hint = s.receipts.Extract(ctx, screenshotURL)
	}

	payment := &models.Payment{
		UserID:        userID,
		PackageType:   pkg.Type,
		AmountBirr:    pkg.PriceBirr,
		CreditsAmount: pkg.Credits,
		ScreenshotURL: screenshotURL,
		OCRData:       hint,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	s.log.Info("payment submitted", "payment_id", payment.ID, "user_id", userID, "package", pkg.Type, "amount_birr", pkg.PriceBirr)

	if user, err := s.users.Get(ctx, userID); err == nil {
		s.events.Emit(notify.PaymentSubmitted{Payment: *payment, User: *user})
	}
	return payment, nil
}

// Approve credits the package to the user's balance and flips the payment to
// approved, atomically. Only one reviewer can win.
func (s *PaymentService) Approve(ctx context.Context, paymentID string, adminID int64) (*repository.ApproveResult, error) {
	res, err := s.payments.Approve(ctx, paymentID, adminID)
	if err != nil {
		return nil, err
	}
	observability.PaymentsReviewedTotal.WithLabelValues("approved").Inc()
	observability.LedgerTransactionsTotal.WithLabelValues(string(models.TransactionPurchase)).Inc()
	s.log.Info("payment approved", "payment_id", paymentID, "admin_id", adminID, "user_id", res.UserID, "credits", res.Credits)

	if user, err := s.users.Get(ctx, res.UserID); err == nil {
		s.events.Emit(notify.PaymentApproved{
			UserID:     user.ID,
			Language:   user.Language,
			Credits:    res.Credits,
			NewBalance: res.NewBalance,
		})
	}
	return res, nil
}

// Reject turns the payment down without touching the balance.
func (s *PaymentService) Reject(ctx context.Context, paymentID string, adminID int64, reason string) error {
	payment, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return err
	}
	if err := s.payments.Reject(ctx, paymentID, adminID, reason); err != nil {
		return err
	}
	observability.PaymentsReviewedTotal.WithLabelValues("rejected").Inc()
	s.log.Info("payment rejected", "payment_id", paymentID, "admin_id", adminID, "user_id", payment.UserID)

	if user, err := s.users.Get(ctx, payment.UserID); err == nil {
		s.events.Emit(notify.PaymentRejected{
			UserID:   user.ID,
			Language: user.Language,
			Reason:   reason,
		})
	}
	return nil
}

// Pending returns a page of payments awaiting review, oldest first.
func (s *PaymentService) Pending(ctx context.Context, page, pageSize int) ([]models.PendingPayment, int, error) {
	return s.payments.PendingPage(ctx, page, pageSize)
}

// Packages lists the purchasable credit packages.
func (s *PaymentService) Packages() []models.Package {
	return s.cfg.PackageList()
}
