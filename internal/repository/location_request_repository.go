package repository

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/yelinaung/navigator-bot/internal/database"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

// LocationRequestRepository records location lookups for usage statistics.
type LocationRequestRepository struct {
	db database.PGXDB
}

// NewLocationRequestRepository creates a new LocationRequestRepository.
func NewLocationRequestRepository(db database.PGXDB) *LocationRequestRepository {
	return &LocationRequestRepository{db: db}
}

// Record stores one lookup of location by userID.
func (r *LocationRequestRepository) Record(ctx context.Context, userID int64, location string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO location_requests (user_id, location) VALUES ($1, $2)
	`, userID, location)
	if err != nil {
		return fmt.Errorf("failed to record location request: %w", err)
	}
	return nil
}

// CountByLocation returns lookups per location since the given time, busiest
// first. Locations without lookups are omitted.
func (r *LocationRequestRepository) CountByLocation(ctx context.Context, since time.Time) ([]models.LocationStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.value, l.label, COUNT(*) AS requests
		FROM location_requests lr
		JOIN locations l ON l.value = lr.location
		WHERE lr.created_at >= $1
		GROUP BY l.value, l.label, l.sort_order
		ORDER BY requests DESC, l.sort_order
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query location stats: %w", err)
	}
	defer rows.Close()

	var stats []models.LocationStat
	for rows.Next() {
		var s models.LocationStat
		if err := rows.Scan(&s.Location, &s.Label, &s.Requests); err != nil {
			return nil, fmt.Errorf("failed to scan location stat: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location stats: %w", err)
	}
	return stats, nil
}
