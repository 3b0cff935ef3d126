package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/navigator-bot/internal/database"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

// LocationRepository handles location database operations.
type LocationRepository struct {
	db database.PGXDB
}

// NewLocationRepository creates a new LocationRepository.
func NewLocationRepository(db database.PGXDB) *LocationRepository {
	return &LocationRepository{db: db}
}

// GetAll retrieves all locations in display order.
func (r *LocationRepository) GetAll(ctx context.Context) ([]models.Location, error) {
	rows, err := r.db.Query(ctx, `
		SELECT value, label, label_en, sort_order FROM locations ORDER BY sort_order, value
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locs []models.Location
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.Value, &loc.Label, &loc.LabelEN, &loc.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locs = append(locs, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return locs, nil
}

// GetByValue retrieves a location by its identifier.
func (r *LocationRepository) GetByValue(ctx context.Context, value string) (*models.Location, error) {
	var loc models.Location
	err := r.db.QueryRow(ctx, `
		SELECT value, label, label_en, sort_order FROM locations WHERE value = $1
	`, value).Scan(&loc.Value, &loc.Label, &loc.LabelEN, &loc.SortOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("location %q: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return &loc, nil
}
