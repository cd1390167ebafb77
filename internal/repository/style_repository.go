package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flexa/stylebot/internal/models"
)

type StyleRepository struct {
	db *sql.DB
}

func NewStyleRepository(db *sql.DB) *StyleRepository {
	return &StyleRepository{db: db}
}

const styleColumns = `
id, name_en, COALESCE(name_am, ''), COALESCE(description_en, ''), COALESCE(description_am, ''),
prompt_template, credit_cost, is_active, display_order, COALESCE(preview_image_url, ''), created_at`

func (r *StyleRepository) GetByID(ctx context.Context, id string) (*models.Style, error) {
	query := `SELECT ` + styleColumns + ` FROM styles WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	style, err := scanStyle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStyleNotFound
	}
	return style, err
}

// ActiveList returns styles selectable by users, in display order.
func (r *StyleRepository) ActiveList(ctx context.Context) ([]models.Style, error) {
	query := `SELECT ` + styleColumns + ` FROM styles WHERE is_active = 1 ORDER BY display_order ASC, name_en ASC`
	return r.list(ctx, query)
}

func (r *StyleRepository) List(ctx context.Context) ([]models.Style, error) {
	query := `SELECT ` + styleColumns + ` FROM styles ORDER BY display_order ASC, name_en ASC`
	return r.list(ctx, query)
}

func (r *StyleRepository) Create(ctx context.Context, style *models.Style) (*models.Style, error) {
	if style.ID == "" {
		style.ID = uuid.NewString()
	}
	const query = `
INSERT INTO styles (id, name_en, name_am, description_en, description_am, prompt_template, credit_cost, is_active, display_order, preview_image_url)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, style.ID, style.NameEN, style.NameAM, style.DescriptionEN, style.DescriptionAM,
		style.PromptTemplate, style.CreditCost, style.IsActive, style.DisplayOrder, style.PreviewImageURL); err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}
	return r.GetByID(ctx, style.ID)
}

func (r *StyleRepository) Update(ctx context.Context, style *models.Style) (*models.Style, error) {
	const query = `
UPDATE styles
SET name_en = ?, name_am = NULLIF(?, ''), description_en = NULLIF(?, ''), description_am = NULLIF(?, ''),
    prompt_template = ?, credit_cost = ?, is_active = ?, display_order = ?, preview_image_url = NULLIF(?, '')
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, style.NameEN, style.NameAM, style.DescriptionEN, style.DescriptionAM,
		style.PromptTemplate, style.CreditCost, style.IsActive, style.DisplayOrder, style.PreviewImageURL, style.ID); err != nil {
		return nil, fmt.Errorf("update style: %w", err)
	}
	return r.GetByID(ctx, style.ID)
}

func (r *StyleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM styles WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete style: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("style rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStyleNotFound
	}
	return nil
}

func (r *StyleRepository) list(ctx context.Context, query string) ([]models.Style, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}
	defer rows.Close()

	var styles []models.Style
	for rows.Next() {
		style, err := scanStyle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan style: %w", err)
		}
		styles = append(styles, *style)
	}
	return styles, rows.Err()
}

func scanStyle(row rowScanner) (*models.Style, error) {
	var s models.Style
	if err := row.Scan(&s.ID, &s.NameEN, &s.NameAM, &s.DescriptionEN, &s.DescriptionAM,
		&s.PromptTemplate, &s.CreditCost, &s.IsActive, &s.DisplayOrder, &s.PreviewImageURL, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
