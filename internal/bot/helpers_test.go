package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/navigator-bot/internal/bot/mocks"
	"gitlab.com/yelinaung/navigator-bot/internal/config"
	"gitlab.com/yelinaung/navigator-bot/internal/gemini"
	"gitlab.com/yelinaung/navigator-bot/internal/i18n"
	appmodels "gitlab.com/yelinaung/navigator-bot/internal/models"
	"gitlab.com/yelinaung/navigator-bot/internal/repository"
	"gitlab.com/yelinaung/navigator-bot/internal/state"
)

type fakeUsers struct {
	mu       sync.Mutex
	upserted []appmodels.User
	err      error
	count    int64
}

func (f *fakeUsers) UpsertUser(_ context.Context, u *appmodels.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, *u)
	return nil
}

func (f *fakeUsers) CountUsers(context.Context) (int64, error) {
	return f.count, nil
}

type fakePoints struct {
	mu         sync.Mutex
	byLocation map[string][]appmodels.Point
	listErr    error
	getErr     error
}

func (f *fakePoints) GetPointsList(_ context.Context, location string) ([]appmodels.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	pts := f.byLocation[location]
	if pts == nil {
		return []appmodels.Point{}, nil
	}
	return pts, nil
}

func (f *fakePoints) GetByID(_ context.Context, id int) (*appmodels.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, pts := range f.byLocation {
		for _, p := range pts {
			if p.ID == id {
				return &p, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

type fakeRequests struct {
	mu       sync.Mutex
	recorded []string
	stats    []appmodels.LocationStat
	err      error
}

func (f *fakeRequests) Record(_ context.Context, _ int64, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, location)
	return nil
}

func (f *fakeRequests) CountByLocation(context.Context, time.Time) ([]appmodels.LocationStat, error) {
	return f.stats, f.err
}

type fakeSuggester struct {
	suggestion *gemini.LocationSuggestion
	err        error
	calls      int
	lastLabels []string
}

func (f *fakeSuggester) SuggestLocation(_ context.Context, _ string, labels []string) (*gemini.LocationSuggestion, error) {
	f.calls++
	f.lastLabels = labels
	return f.suggestion, f.err
}

var errBoom = errors.New("boom")

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		TelegramBotToken:   "test-token",
		DatabaseURL:        "test-url",
		AdminUserIDs:       []int64{42},
		SkipPendingUpdates: true,
		MediaDir:           t.TempDir(),
		DefaultLanguage:    "ru",
	}
}

// writeMedia creates a fake photo under the config's media dir.
func writeMedia(t *testing.T, cfg *config.Config, name string) {
	t.Helper()
	path := filepath.Join(cfg.MediaDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("img:"+name), 0o600))
}

func setupTestApp(t *testing.T, opts ...Option) (*Application, *mocks.MockBot) {
	t.Helper()
	mockBot := mocks.NewMockBot()
	return newApplication(testConfig(t), mockBot, opts...), mockBot
}

type navigatorEnv struct {
	nav       *Navigator
	app       *Application
	mock      *mocks.MockBot
	cfg       *config.Config
	points    *fakePoints
	requests  *fakeRequests
	users     *fakeUsers
	suggester *fakeSuggester
	states    *state.Manager
}

func coords(lat, lon string) (decimal.NullDecimal, decimal.NullDecimal) {
	return decimal.NewNullDecimal(decimal.RequireFromString(lat)),
		decimal.NewNullDecimal(decimal.RequireFromString(lon))
}

func setupNavigator(t *testing.T, withSuggester bool) *navigatorEnv {
	t.Helper()

	mockBot := mocks.NewMockBot()
	cfg := testConfig(t)
	users := &fakeUsers{count: 17}
	app := newApplication(cfg, mockBot, WithUserRegistrar(users))

	tr, err := i18n.New(cfg.DefaultLanguage)
	require.NoError(t, err)

	lat, lon := coords("55.751244", "37.618423")
	pts := &fakePoints{byLocation: map[string][]appmodels.Point{
		"street": {
			{ID: 1, Location: "street", Title: "Main gate", Description: "Entrance_A", PhotoPath: "street/gate.jpg", Latitude: lat, Longitude: lon},
			{ID: 2, Location: "street", Title: "Parking", PhotoPath: "AgACAgIAAxkBAAIB"},
			{ID: 3, Location: "street", Title: "Bus stop"},
		},
		"building_1": {
			{ID: 4, Location: "building_1", Title: "Room 101"},
		},
	}}
	writeMedia(t, cfg, "street/gate.jpg")

	env := &navigatorEnv{
		app:      app,
		mock:     mockBot,
		cfg:      cfg,
		points:   pts,
		requests: &fakeRequests{},
		users:    users,
		states:   state.NewManager(nil, time.Hour),
	}

	deps := NavigatorDeps{
		Config:     cfg,
		Translator: tr,
		States:     env.states,
		Points:     pts,
		PointByID:  pts,
		Requests:   env.requests,
		Users:      users,
	}
	if withSuggester {
		env.suggester = &fakeSuggester{}
		deps.Suggester = env.suggester
	}

	env.nav = NewNavigator(app, deps)
	env.nav.Register()
	return env
}
