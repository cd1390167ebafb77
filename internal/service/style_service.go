package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flexa/stylebot/internal/models"
	"github.com/flexa/stylebot/internal/repository"
)

type StyleService struct {
	log    *slog.Logger
	styles *repository.StyleRepository
}

func NewStyleService(log *slog.Logger, styles *repository.StyleRepository) *StyleService {
	return &StyleService{log: log, styles: styles}
}

// Catalog returns the styles shown to users, active only, in display order.
func (s *StyleService) Catalog(ctx context.Context) ([]models.Style, error) {
	return s.styles.ActiveList(ctx)
}

// List returns every style including deactivated ones, for admin screens.
func (s *StyleService) List(ctx context.Context) ([]models.Style, error) {
	return s.styles.List(ctx)
}

func (s *StyleService) Get(ctx context.Context, id string) (*models.Style, error) {
	return s.styles.GetByID(ctx, id)
}

func (s *StyleService) Create(ctx context.Context, style *models.Style) (*models.Style, error) {
	if err := validateStyle(style); err != nil {
		return nil, err
	}
	created, err := s.styles.Create(ctx, style)
	if err != nil {
		return nil, err
	}
	s.log.Info("style created", "style_id", created.ID, "name", created.NameEN, "credit_cost", created.CreditCost)
	return created, nil
}

func (s *StyleService) Update(ctx context.Context, style *models.Style) (*models.Style, error) {
	if err := validateStyle(style); err != nil {
		return nil, err
	}
	updated, err := s.styles.Update(ctx, style)
	if err != nil {
		return nil, err
	}
	s.log.Info("style updated", "style_id", updated.ID, "name", updated.NameEN)
	return updated, nil
}

func (s *StyleService) Delete(ctx context.Context, id string) error {
	if err := s.styles.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("style deleted", "style_id", id)
	return nil
}

func validateStyle(style *models.Style) error {
	if strings.TrimSpace(style.NameEN) == "" {
		return fmt.Errorf("style name cannot be empty")
	}
	if strings.TrimSpace(style.PromptTemplate) == "" {
		return fmt.Errorf("prompt template cannot be empty")
	}
	if style.CreditCost < 1 {
		return fmt.Errorf("credit cost must be at least 1, got %d", style.CreditCost)
	}
	return nil
}
