package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/navigator-bot/internal/database"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

// StateRepository persists conversation states so dialogues survive restarts.
type StateRepository struct {
	db database.PGXDB
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(db database.PGXDB) *StateRepository {
	return &StateRepository{db: db}
}

// Load returns the stored state for userID, or nil when there is none.
func (r *StateRepository) Load(ctx context.Context, userID int64) (*models.ConversationState, error) {
	var s models.ConversationState
	err := r.db.QueryRow(ctx, `
		SELECT user_id, step, location, data, updated_at
		FROM conversation_states WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.Step, &s.Location, &s.Data, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	return &s, nil
}

// Save creates or replaces the state of s.UserID.
func (r *StateRepository) Save(ctx context.Context, s models.ConversationState) error {
	data := s.Data
	if data == nil {
		data = map[string]string{}
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_states (user_id, step, location, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			step = EXCLUDED.step,
			location = EXCLUDED.location,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, s.UserID, s.Step, s.Location, data, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	return nil
}

// Delete removes the state of userID. Deleting a missing state is not an error.
func (r *StateRepository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM conversation_states WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	return nil
}

// DeleteOlderThan removes states last updated before cutoff and returns how many were removed.
func (r *StateRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversation_states WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale conversation states: %w", err)
	}
	return tag.RowsAffected(), nil
}
