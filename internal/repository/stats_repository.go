package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flexa/stylebot/internal/models"
)

// StatsRepository aggregates the counters shown on the admin dashboard.
type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) Stats(ctx context.Context) (*models.Stats, error) {
	const query = `
SELECT
    (SELECT COUNT(*) FROM users),
    (SELECT COUNT(*) FROM generations),
    (SELECT COUNT(*) FROM payments WHERE status = 'pending'),
    (SELECT COUNT(*) FROM generations WHERE status = 'manual_queue')`
	var s models.Stats
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.TotalUsers, &s.TotalGenerations, &s.PendingPayments, &s.ManualQueue); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &s, nil
}
