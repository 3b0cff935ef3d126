// Package locations holds the catalog of campus locations the bot can navigate.
package locations

import (
	"strings"

	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

// Available lists every location in keyboard order.
var Available = []models.Location{
	{Value: "street", Label: "Улица", LabelEN: "Street", SortOrder: 1},
	{Value: "building_1", Label: "Корпус 1", LabelEN: "Building 1", SortOrder: 2},
	{Value: "building_2", Label: "Корпус 2", LabelEN: "Building 2", SortOrder: 3},
	{Value: "building_3", Label: "Корпус 3", LabelEN: "Building 3", SortOrder: 4},
	{Value: "dormitory", Label: "Общежитие", LabelEN: "Dormitory", SortOrder: 5},
}

// IsValidLocation reports whether s, ignoring surrounding whitespace, is the
// value or one of the labels of an available location. Matching is exact.
func IsValidLocation(s string) bool {
	_, ok := Resolve(s)
	return ok
}

// Resolve finds the location whose value or label equals the trimmed input.
func Resolve(s string) (models.Location, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Location{}, false
	}

	for _, loc := range Available {
		if s == loc.Value || s == loc.Label || (loc.LabelEN != "" && s == loc.LabelEN) {
			return loc, true
		}
	}

	return models.Location{}, false
}

// ByValue returns the location with the given value.
func ByValue(value string) (models.Location, bool) {
	for _, loc := range Available {
		if loc.Value == value {
			return loc, true
		}
	}
	return models.Location{}, false
}

// Labels returns the display labels for lang in catalog order.
func Labels(lang string) []string {
	labels := make([]string, 0, len(Available))
	for _, loc := range Available {
		labels = append(labels, loc.DisplayLabel(lang))
	}
	return labels
}

// ResolveLabel maps a label previously produced by Labels back to its location,
// ignoring case. It is used for suggestions, never for user input validation.
func ResolveLabel(label string) (models.Location, bool) {
	label = strings.TrimSpace(label)
	for _, loc := range Available {
		if strings.EqualFold(label, loc.Label) || strings.EqualFold(label, loc.LabelEN) {
			return loc, true
		}
	}
	return models.Location{}, false
}

// MissingFrom returns the values of catalog locations absent from stored.
func MissingFrom(stored []models.Location) []string {
	have := make(map[string]struct{}, len(stored))
	for _, loc := range stored {
		have[loc.Value] = struct{}{}
	}

	var missing []string
	for _, loc := range Available {
		if _, ok := have[loc.Value]; !ok {
			missing = append(missing, loc.Value)
		}
	}
	return missing
}
