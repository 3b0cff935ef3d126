package bot

import (
	"fmt"
	"time"

	"github.com/go-analyze/charts"
	"gitlab.com/yelinaung/navigator-bot/internal/locations"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

// statsPeriodDays is the window covered by /stats.
const statsPeriodDays = 30

// GenerateUsageChart creates a pie chart of location requests.
// Returns PNG image as bytes.
func GenerateUsageChart(stats []models.LocationStat, title, lang string) ([]byte, error) {
	values := make([]float64, 0, len(stats))
	names := make([]string, 0, len(stats))

	for _, s := range stats {
		if s.Requests <= 0 {
			continue
		}
		values = append(values, float64(s.Requests))
		names = append(names, statLabel(s, lang))
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no location requests to chart")
	}

	p, err := charts.PieRender(
		values,
		charts.TitleOptionFunc(charts.TitleOption{Text: title}),
		charts.LegendLabelsOptionFunc(names),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	return buf, nil
}

// statLabel prefers the catalog label in lang over the stored one.
func statLabel(s models.LocationStat, lang string) string {
	if loc, ok := locations.ByValue(s.Location); ok {
		return loc.DisplayLabel(lang)
	}
	if s.Label != "" {
		return s.Label
	}
	return s.Location
}

// chartFilename creates filename like "stats_2026-01-31.png".
func chartFilename(now time.Time) string {
	return fmt.Sprintf("stats_%s.png", now.Format("2006-01-02"))
}
