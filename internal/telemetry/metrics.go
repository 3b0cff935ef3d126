package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the bot's instruments.
type Metrics struct {
	updates  metric.Int64Counter
	sent     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter. A nil meter uses the global
// provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	updates, err := meter.Int64Counter("bot.updates",
		metric.WithDescription("Telegram updates received"))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot.updates counter: %w", err)
	}

	sent, err := meter.Int64Counter("bot.messages.sent",
		metric.WithDescription("Outgoing Telegram API calls"))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot.messages.sent counter: %w", err)
	}

	duration, err := meter.Float64Histogram("bot.handler.duration",
		metric.WithDescription("Time spent handling one update"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot.handler.duration histogram: %w", err)
	}

	return &Metrics{updates: updates, sent: sent, duration: duration}, nil
}

// RecordUpdate counts one incoming update of kind (message, callback_query).
func (m *Metrics) RecordUpdate(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSent counts one outgoing call of method and whether it failed.
func (m *Metrics) RecordSent(ctx context.Context, method string, err error) {
	if m == nil {
		return
	}
	m.sent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("error", err != nil),
	))
}

// RecordHandler observes how long handling an update of kind took.
func (m *Metrics) RecordHandler(ctx context.Context, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}
