package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

type memoryStore struct {
	mu        sync.Mutex
	saveDelay time.Duration
	states    map[int64]models.ConversationState
	loadErr   error
	saveErr   error
	loads     int
	deleted   []int64
	cutoffs   []time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[int64]models.ConversationState)}
}

func (s *memoryStore) Load(_ context.Context, userID int64) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	st, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	c := st.Clone()
	return &c, nil
}

func (s *memoryStore) Save(_ context.Context, st models.ConversationState) error {
	time.Sleep(s.saveDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.states[st.UserID] = st.Clone()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	s.deleted = append(s.deleted, userID)
	return nil
}

func (s *memoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	var n int64
	for uid, st := range s.states {
		if st.UpdatedAt.Before(cutoff) {
			delete(s.states, uid)
			n++
		}
	}
	return n, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(store Store, ttl time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(store, ttl)
	m.now = clock.Now
	return m, clock
}

func TestManager_MemoryOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown user is idle", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(nil, time.Minute)
		s := m.Get(ctx, 1)
		require.Equal(t, models.StepIdle, s.Step)
		require.Equal(t, int64(1), s.UserID)
		require.Zero(t, m.Len())
	})

	t.Run("set then get", func(t *testing.T) {
		t.Parallel()
		m, clock := newTestManager(nil, time.Minute)
		require.NoError(t, m.SetLocation(ctx, 1, "street"))

		s := m.Get(ctx, 1)
		require.Equal(t, models.StepBrowsing, s.Step)
		require.Equal(t, "street", s.Location)
		require.Equal(t, clock.Now(), s.UpdatedAt)
	})

	t.Run("empty step defaults to idle", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(nil, time.Minute)
		require.NoError(t, m.Set(ctx, models.ConversationState{UserID: 3}))
		require.Equal(t, models.StepIdle, m.Get(ctx, 3).Step)
	})

	t.Run("set step keeps location", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(nil, time.Minute)
		require.NoError(t, m.SetLocation(ctx, 1, "dormitory"))
		require.NoError(t, m.SetStep(ctx, 1, models.StepAwaitingLocation))

		s := m.Get(ctx, 1)
		require.Equal(t, models.StepAwaitingLocation, s.Step)
		require.Equal(t, "dormitory", s.Location)
	})

	t.Run("returned state is a copy", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(nil, time.Minute)
		require.NoError(t, m.SetData(ctx, 1, "k", "v"))

		s := m.Get(ctx, 1)
		s.Data["k"] = "mutated"
		require.Equal(t, "v", m.Get(ctx, 1).Data["k"])
	})

	t.Run("reset forgets user", func(t *testing.T) {
		t.Parallel()
		m, _ := newTestManager(nil, time.Minute)
		require.NoError(t, m.SetLocation(ctx, 1, "street"))
		require.NoError(t, m.Reset(ctx, 1))
		require.Equal(t, models.StepIdle, m.Get(ctx, 1).Step)
		require.Zero(t, m.Len())
	})

	t.Run("expired state reads as idle", func(t *testing.T) {
		t.Parallel()
		m, clock := newTestManager(nil, time.Minute)
		require.NoError(t, m.SetLocation(ctx, 1, "street"))
		clock.Advance(2 * time.Minute)

		s := m.Get(ctx, 1)
		require.Equal(t, models.StepIdle, s.Step)
		require.Empty(t, s.Location)
		require.Zero(t, m.Len())
	})

	t.Run("non-positive ttl uses default", func(t *testing.T) {
		t.Parallel()
		m := NewManager(nil, 0)
		require.Equal(t, DefaultTTL, m.ttl)
	})
}

func TestManager_WithStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("writes through", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		m, _ := newTestManager(store, time.Minute)

		require.NoError(t, m.SetLocation(ctx, 7, "building_2"))
		require.Equal(t, "building_2", store.states[7].Location)
	})

	t.Run("loads from store on miss and caches", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		m, clock := newTestManager(store, time.Minute)
		store.states[7] = models.ConversationState{UserID: 7, Step: models.StepBrowsing, Location: "street", UpdatedAt: clock.Now()}

		require.Equal(t, "street", m.Get(ctx, 7).Location)
		require.Equal(t, "street", m.Get(ctx, 7).Location)
		require.Equal(t, 1, store.loads)
		require.Equal(t, 1, m.Len())
	})

	t.Run("ignores stale stored state", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		m, clock := newTestManager(store, time.Minute)
		store.states[7] = models.ConversationState{UserID: 7, Step: models.StepBrowsing, UpdatedAt: clock.Now().Add(-time.Hour)}

		require.Equal(t, models.StepIdle, m.Get(ctx, 7).Step)
	})

	t.Run("load failure is a miss", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		store.loadErr = errors.New("db down")
		m, _ := newTestManager(store, time.Minute)

		require.Equal(t, models.StepIdle, m.Get(ctx, 7).Step)
	})

	t.Run("save failure is returned but memory is updated", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		store.saveErr = errors.New("db down")
		m, _ := newTestManager(store, time.Minute)

		err := m.SetLocation(ctx, 7, "street")
		require.ErrorContains(t, err, "failed to persist state")
		require.Equal(t, "street", m.Get(ctx, 7).Location)
	})

	t.Run("reset deletes from store", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		m, _ := newTestManager(store, time.Minute)

		require.NoError(t, m.SetLocation(ctx, 7, "street"))
		require.NoError(t, m.Reset(ctx, 7))
		require.Equal(t, []int64{7}, store.deleted)
		require.Empty(t, store.states)
	})
}

func TestManager_Expire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newMemoryStore()
	m, clock := newTestManager(store, time.Minute)

	require.NoError(t, m.SetLocation(ctx, 1, "street"))
	clock.Advance(45 * time.Second)
	require.NoError(t, m.SetLocation(ctx, 2, "building_1"))
	clock.Advance(30 * time.Second)

	dropped := m.Expire(ctx, clock.Now())
	require.Equal(t, 1, dropped)
	require.Equal(t, 1, m.Len())
	require.Equal(t, "building_1", m.Get(ctx, 2).Location)

	require.Len(t, store.cutoffs, 1)
	require.Equal(t, clock.Now().Add(-time.Minute), store.cutoffs[0])
	require.NotContains(t, store.states, int64(1))
}

func TestManager_RunJanitor(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	m := NewManager(store, time.Millisecond)
	require.NoError(t, m.SetLocation(context.Background(), 1, "street"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewManager(newMemoryStore(), time.Minute)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_ = m.SetLocation(ctx, uid%5, "street")
			_ = m.Get(ctx, uid%5)
			_ = m.SetData(ctx, uid%5, "n", "1")
		}(int64(i))
	}
	wg.Wait()

	require.Equal(t, 5, m.Len())
}

func TestManager_ConcurrentUpdatesOfOneUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	const workers = 50

	t.Run("no data key is lost", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		store.saveDelay = 2 * time.Millisecond
		m := NewManager(store, time.Minute)

		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := m.SetData(ctx, 1, fmt.Sprintf("k%d", i), "v"); err != nil {
					t.Error(err)
				}
			}(i)
		}
		wg.Wait()

		require.Len(t, m.Get(ctx, 1).Data, workers)

		stored, err := store.Load(ctx, 1)
		require.NoError(t, err)
		require.Len(t, stored.Data, workers, "store must hold the last write")
	})

	t.Run("location and data writes interleave", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		store.saveDelay = time.Millisecond
		m := NewManager(store, time.Minute)

		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				if err := m.SetData(ctx, 7, fmt.Sprintf("k%d", i), "v"); err != nil {
					t.Error(err)
				}
			}(i)
			go func() {
				defer wg.Done()
				if err := m.SetLocation(ctx, 7, "street"); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()

		st := m.Get(ctx, 7)
		require.Equal(t, models.StepBrowsing, st.Step)
		require.Equal(t, "street", st.Location)
		require.Len(t, st.Data, workers)
	})

	t.Run("store load does not clobber a concurrent write", func(t *testing.T) {
		t.Parallel()
		store := newMemoryStore()
		store.states[9] = models.ConversationState{UserID: 9, Step: models.StepAwaitingLocation, UpdatedAt: time.Now()}
		m := NewManager(store, time.Minute)

		var wg sync.WaitGroup
		for range workers {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = m.Get(ctx, 9)
			}()
			go func() {
				defer wg.Done()
				if err := m.SetLocation(ctx, 9, "dormitory"); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, "dormitory", m.Get(ctx, 9).Location)
	})
}
