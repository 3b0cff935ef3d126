package database

import (
	"context"
	"fmt"

	"gitlab.com/yelinaung/navigator-bot/internal/locations"
)

// RunMigrations creates the database schema.
func RunMigrations(ctx context.Context, db PGXDB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			language_code TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS locations (
			value TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			label_en TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS points (
			id SERIAL PRIMARY KEY,
			location TEXT NOT NULL REFERENCES locations(value) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			photo_path TEXT NOT NULL DEFAULT '',
			latitude NUMERIC(9, 6),
			longitude NUMERIC(9, 6),
			position INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (location, title)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_location ON points(location, position)`,
		`CREATE TABLE IF NOT EXISTS location_requests (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			location TEXT NOT NULL REFERENCES locations(value) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_location_requests_created_at ON location_requests(created_at)`,
		`CREATE TABLE IF NOT EXISTS conversation_states (
			user_id BIGINT PRIMARY KEY,
			step TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_states_updated_at ON conversation_states(updated_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

type seedPoint struct {
	location    string
	title       string
	description string
	photo       string
	lat, lon    string
}

// defaultPoints is the initial content for every catalog location.
var defaultPoints = []seedPoint{
	{"street", "Главный вход", "Центральные ворота кампуса, пост охраны справа.", "street/main_gate.jpg", "55.765410", "37.685120"},
	{"street", "Автобусная остановка", "Остановка «Университет», маршруты 12 и 40.", "street/bus_stop.jpg", "55.765120", "37.684300"},
	{"street", "Парковка", "Гостевая парковка за корпусом 2.", "street/parking.jpg", "", ""},
	{"building_1", "Приёмная комиссия", "1 этаж, кабинет 101.", "building_1/admissions.jpg", "", ""},
	{"building_1", "Библиотека", "2 этаж, читальный зал открыт до 20:00.", "building_1/library.jpg", "", ""},
	{"building_1", "Столовая", "Цокольный этаж, вход со двора.", "building_1/canteen.jpg", "", ""},
	{"building_2", "Актовый зал", "3 этаж, вход через фойе.", "building_2/assembly_hall.jpg", "", ""},
	{"building_2", "Спортзал", "Отдельный вход с торца здания.", "building_2/gym.jpg", "", ""},
	{"building_3", "Лаборатории", "Этажи 2-4, пропуск по студенческому билету.", "building_3/labs.jpg", "", ""},
	{"dormitory", "Вахта общежития", "Круглосуточно, регистрация гостей до 22:00.", "dormitory/reception.jpg", "55.763900", "37.688010"},
}

// SeedLocations inserts the location catalog and the default points.
// Existing rows are left untouched so manual edits survive restarts.
func SeedLocations(ctx context.Context, db PGXDB) error {
	for _, loc := range locations.Available {
		_, err := db.Exec(ctx, `
			INSERT INTO locations (value, label, label_en, sort_order) VALUES ($1, $2, $3, $4)
			ON CONFLICT (value) DO NOTHING
		`, loc.Value, loc.Label, loc.LabelEN, loc.SortOrder)
		if err != nil {
			return fmt.Errorf("failed to seed location %q: %w", loc.Value, err)
		}
	}

	for i, p := range defaultPoints {
		_, err := db.Exec(ctx, `
			INSERT INTO points (location, title, description, photo_path, latitude, longitude, position)
			VALUES ($1, $2, $3, $4, NULLIF($5, '')::NUMERIC, NULLIF($6, '')::NUMERIC, $7)
			ON CONFLICT (location, title) DO NOTHING
		`, p.location, p.title, p.description, p.photo, p.lat, p.lon, i)
		if err != nil {
			return fmt.Errorf("failed to seed point %q: %w", p.title, err)
		}
	}

	return nil
}
