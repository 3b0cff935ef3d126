package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/navigator-bot/internal/database"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

const pointColumns = `id, location, title, description, photo_path, latitude, longitude, position, created_at`

// PointRepository handles point-of-interest database operations.
type PointRepository struct {
	db database.PGXDB
}

// NewPointRepository creates a new PointRepository.
func NewPointRepository(db database.PGXDB) *PointRepository {
	return &PointRepository{db: db}
}

func scanPoint(row pgx.Row) (models.Point, error) {
	var p models.Point
	err := row.Scan(&p.ID, &p.Location, &p.Title, &p.Description, &p.PhotoPath,
		&p.Latitude, &p.Longitude, &p.Position, &p.CreatedAt)
	return p, err
}

// GetPointsList returns the points of a location ordered by position.
// An unknown location yields an empty list, not an error.
func (r *PointRepository) GetPointsList(ctx context.Context, location string) ([]models.Point, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+pointColumns+` FROM points WHERE location = $1 ORDER BY position, id
	`, location)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	points := make([]models.Point, 0)
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}
	return points, nil
}

// GetByID retrieves a point by ID.
func (r *PointRepository) GetByID(ctx context.Context, id int) (*models.Point, error) {
	p, err := scanPoint(r.db.QueryRow(ctx, `
		SELECT `+pointColumns+` FROM points WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("point %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get point: %w", err)
	}
	return &p, nil
}

// Create adds a new point and returns it with its ID.
func (r *PointRepository) Create(ctx context.Context, p *models.Point) (*models.Point, error) {
	if len(p.Title) == 0 || len([]rune(p.Title)) > models.MaxPointTitleLength {
		return nil, fmt.Errorf("point title must be 1-%d characters", models.MaxPointTitleLength)
	}

	created, err := scanPoint(r.db.QueryRow(ctx, `
		INSERT INTO points (location, title, description, photo_path, latitude, longitude, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+pointColumns,
		p.Location, p.Title, p.Description, p.PhotoPath, p.Latitude, p.Longitude, p.Position))
	if err != nil {
		return nil, fmt.Errorf("failed to create point: %w", err)
	}
	return &created, nil
}
