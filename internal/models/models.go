// Package models defines the domain entities for the navigator bot.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxPointTitleLength is the maximum allowed length for point titles.
const MaxPointTitleLength = 100

// User represents a Telegram user.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Location is a navigable area of the campus, e.g. the street or a building.
// Value is the stable identifier; Label and LabelEN are what users see and type.
type Location struct {
	Value     string
	Label     string
	LabelEN   string
	SortOrder int
}

// DisplayLabel returns the label for the given language.
func (l Location) DisplayLabel(lang string) string {
	if lang == "en" && l.LabelEN != "" {
		return l.LabelEN
	}
	return l.Label
}

// Point is a point of interest inside a location.
type Point struct {
	ID          int
	Location    string
	Title       string
	Description string
	PhotoPath   string
	Latitude    decimal.NullDecimal
	Longitude   decimal.NullDecimal
	Position    int
	CreatedAt   time.Time
}

// HasCoordinates reports whether the point can be shown on a map.
func (p Point) HasCoordinates() bool {
	return p.Latitude.Valid && p.Longitude.Valid
}

// HasPhoto reports whether the point has a photo reference.
func (p Point) HasPhoto() bool {
	return p.PhotoPath != ""
}

// LocationStat is the number of lookups of a location over a period.
type LocationStat struct {
	Location string
	Label    string
	Requests int64
}

// Conversation steps.
const (
	StepIdle             = "idle"
	StepAwaitingLocation = "awaiting_location"
	StepBrowsing         = "browsing"
)

// ConversationState is the per-user dialogue state.
type ConversationState struct {
	UserID    int64
	Step      string
	Location  string
	Data      map[string]string
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (s ConversationState) Clone() ConversationState {
	c := s
	if s.Data != nil {
		c.Data = make(map[string]string, len(s.Data))
		for k, v := range s.Data {
			c.Data[k] = v
		}
	}
	return c
}
