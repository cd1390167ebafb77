package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flexa/stylebot/internal/models"
	"github.com/flexa/stylebot/internal/observability"
	"github.com/flexa/stylebot/internal/repository"
)

type LedgerService struct {
	log    *slog.Logger
	ledger *repository.LedgerRepository
}

func NewLedgerService(log *slog.Logger, ledger *repository.LedgerRepository) *LedgerService {
	return &LedgerService{log: log, ledger: ledger}
}

func (s *LedgerService) Balance(ctx context.Context, userID int64) (int, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *LedgerService) History(ctx context.Context, userID int64, limit int) ([]models.CreditTransaction, error) {
	return s.ledger.History(ctx, userID, limit)
}

// AdminAdjust moves credits on an operator's say-so. Positive amounts grant,
// negative amounts claw back. Returns the balance after the adjustment.
func (s *LedgerService) AdminAdjust(ctx context.Context, userID int64, amount int, adminID int64, note string) (int, error) {
	if amount == 0 {
		return 0, fmt.Errorf("adjustment amount cannot be zero")
	}
	if note == "" {
		note = "Manual balance adjustment"
	}
	newBalance, err := s.ledger.Adjust(ctx, userID, amount, note)
	if err != nil {
		return 0, err
	}
	observability.LedgerTransactionsTotal.WithLabelValues(string(models.TransactionAdminAdjustment)).Inc()
	s.log.Info("balance adjusted", "user_id", userID, "amount", amount, "admin_id", adminID, "balance", newBalance)
	return newBalance, nil
}
