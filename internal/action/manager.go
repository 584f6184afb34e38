// Package action fans detection results out to the configured sinks.
package action

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"riskscope/internal/metrics"
	"riskscope/internal/model"
)

// Sink consumes risk events. Implementations must tolerate being invoked
// concurrently with themselves and should honor context deadlines.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev model.RiskEvent) error
}

type registration struct {
	sink     Sink
	minLevel model.Level
}

// Manager routes each risk event to every sink whose minimum level it
// meets. Sinks run in parallel under a per-sink deadline; a sink failure
// is logged and counted but never reaches the pipeline.
type Manager struct {
	sinks       []registration
	sinkTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewManager builds a manager with the given per-sink deadline.
func NewManager(sinkTimeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	if sinkTimeout <= 0 {
		sinkTimeout = 5 * time.Second
	}
	return &Manager{sinkTimeout: sinkTimeout, logger: logger, metrics: m}
}

// Register adds a sink with its minimum forwarded level.
func (m *Manager) Register(sink Sink, minLevel model.Level) {
	m.sinks = append(m.sinks, registration{sink: sink, minLevel: minLevel})
}

// Dispatch delivers ev to every eligible sink and joins before returning.
// The event counts as dispatched regardless of individual sink failures.
func (m *Manager) Dispatch(ctx context.Context, ev model.RiskEvent) {
	g, ctx := errgroup.WithContext(ctx)

	for _, reg := range m.sinks {
		if ev.Level < reg.minLevel {
			continue
		}
		reg := reg
		g.Go(func() error {
			sinkCtx, cancel := context.WithTimeout(ctx, m.sinkTimeout)
			defer cancel()

			if err := reg.sink.Handle(sinkCtx, ev); err != nil {
				m.metrics.IncSinkErrors()
				m.logger.Warn("sink delivery failed",
					zap.String("sink", reg.sink.Name()),
					zap.String("event_id", ev.ID),
					zap.String("kind", string(ev.Kind)),
					zap.Error(err),
				)
			}
			// Failures stay local to the sink.
			return nil
		})
	}

	_ = g.Wait()
	m.metrics.IncEventsDispatched()
}
