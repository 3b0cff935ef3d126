// Package state keeps per-user conversation state between updates.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/yelinaung/navigator-bot/internal/logger"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

// DefaultTTL is used when the manager is created with a non-positive TTL.
const DefaultTTL = 30 * time.Minute

// JanitorTimeout bounds a single expiry pass.
const JanitorTimeout = time.Minute

// lockStripes is the number of mutexes serializing per-user updates.
const lockStripes = 64

// Store persists states. It is implemented by repository.StateRepository.
type Store interface {
	Load(ctx context.Context, userID int64) (*models.ConversationState, error)
	Save(ctx context.Context, s models.ConversationState) error
	Delete(ctx context.Context, userID int64) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Manager holds conversation states in memory and writes them through to an
// optional Store. Returned states are copies.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu     sync.RWMutex
	states map[int64]models.ConversationState

	// userLocks serialize read-modify-write cycles of one user, including
	// store I/O. Users share a stripe by id.
	userLocks [lockStripes]sync.Mutex
}

// NewManager creates a Manager. store may be nil for memory-only operation.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		states: make(map[int64]models.ConversationState),
	}
}

func idleState(userID int64) models.ConversationState {
	return models.ConversationState{UserID: userID, Step: models.StepIdle}
}

func (m *Manager) lockUser(userID int64) func() {
	l := &m.userLocks[uint64(userID)%lockStripes]
	l.Lock()
	return l.Unlock
}

func (m *Manager) expired(s models.ConversationState, now time.Time) bool {
	return !s.UpdatedAt.IsZero() && now.Sub(s.UpdatedAt) > m.ttl
}

// Get returns the state of userID. Unknown or expired users are idle.
// Store failures are logged and treated as a miss.
func (m *Manager) Get(ctx context.Context, userID int64) models.ConversationState {
	defer m.lockUser(userID)()
	return m.get(ctx, userID)
}

func (m *Manager) get(ctx context.Context, userID int64) models.ConversationState {
	now := m.now()

	m.mu.RLock()
	s, ok := m.states[userID]
	m.mu.RUnlock()

	if ok {
		if m.expired(s, now) {
			m.forget(ctx, userID)
			return idleState(userID)
		}
		return s.Clone()
	}

	if m.store == nil {
		return idleState(userID)
	}

	stored, err := m.store.Load(ctx, userID)
	if err != nil {
		logger.Log.Warn().Err(err).
			Str("user_hash", logger.HashUserID(userID)).
			Msg("Failed to load conversation state")
		return idleState(userID)
	}
	if stored == nil || m.expired(*stored, now) {
		return idleState(userID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.states[userID]; ok {
		return cur.Clone()
	}
	m.states[userID] = stored.Clone()
	return stored.Clone()
}

// Set replaces the state of s.UserID and stamps UpdatedAt.
func (m *Manager) Set(ctx context.Context, s models.ConversationState) error {
	defer m.lockUser(s.UserID)()
	return m.set(ctx, s)
}

func (m *Manager) set(ctx context.Context, s models.ConversationState) error {
	s = s.Clone()
	s.UpdatedAt = m.now()
	if s.Step == "" {
		s.Step = models.StepIdle
	}

	m.mu.Lock()
	m.states[s.UserID] = s
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(ctx, s); err != nil {
			return fmt.Errorf("failed to persist state: %w", err)
		}
	}
	return nil
}

// Update applies fn to the current state of userID and stores the result.
// Concurrent updates of one user are applied one after another.
func (m *Manager) Update(ctx context.Context, userID int64, fn func(*models.ConversationState)) error {
	defer m.lockUser(userID)()

	s := m.get(ctx, userID)
	fn(&s)
	s.UserID = userID
	return m.set(ctx, s)
}

// SetStep moves userID to step, keeping location and data.
func (m *Manager) SetStep(ctx context.Context, userID int64, step string) error {
	return m.Update(ctx, userID, func(s *models.ConversationState) {
		s.Step = step
	})
}

// SetLocation records the location userID is browsing.
func (m *Manager) SetLocation(ctx context.Context, userID int64, location string) error {
	return m.Update(ctx, userID, func(s *models.ConversationState) {
		s.Step = models.StepBrowsing
		s.Location = location
	})
}

// SetData stores one key in the state's data map.
func (m *Manager) SetData(ctx context.Context, userID int64, key, value string) error {
	return m.Update(ctx, userID, func(s *models.ConversationState) {
		if s.Data == nil {
			s.Data = make(map[string]string)
		}
		s.Data[key] = value
	})
}

// Reset forgets everything about userID.
func (m *Manager) Reset(ctx context.Context, userID int64) error {
	defer m.lockUser(userID)()
	return m.reset(ctx, userID)
}

func (m *Manager) reset(ctx context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.states, userID)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete state: %w", err)
		}
	}
	return nil
}

// forget drops an expired state. The caller holds the user's lock.
func (m *Manager) forget(ctx context.Context, userID int64) {
	if err := m.reset(ctx, userID); err != nil {
		logger.Log.Warn().Err(err).
			Str("user_hash", logger.HashUserID(userID)).
			Msg("Failed to drop expired conversation state")
	}
}

// Len returns the number of states held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// Expire drops states idle for longer than the TTL, in memory and in the
// store, and returns how many in-memory states were dropped.
func (m *Manager) Expire(ctx context.Context, now time.Time) int {
	dropped := 0

	m.mu.Lock()
	for uid, s := range m.states {
		if m.expired(s, now) {
			delete(m.states, uid)
			dropped++
		}
	}
	m.mu.Unlock()

	if m.store != nil {
		n, err := m.store.DeleteOlderThan(ctx, now.Add(-m.ttl))
		if err != nil {
			logger.Log.Error().Err(err).Msg("Failed to expire stored conversation states")
		} else if n > 0 {
			logger.Log.Debug().Int64("count", n).Msg("Expired stored conversation states")
		}
	}

	return dropped
}

// RunJanitor expires stale states every interval until ctx is cancelled.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.ttl / 2
	}

	logger.Log.Info().
		Dur("interval", interval).
		Dur("ttl", m.ttl).
		Msg("State janitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("State janitor stopped")
			return
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, JanitorTimeout)
			if n := m.Expire(passCtx, m.now()); n > 0 {
				logger.Log.Debug().Int("count", n).Msg("Expired conversation states")
			}
			cancel()
		}
	}
}
