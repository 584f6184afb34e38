package action

import (
	"context"

	"riskscope/internal/model"
	"riskscope/internal/storage/postgres"
)

// StoreSink persists every forwarded risk event.
type StoreSink struct {
	store *postgres.Store
}

// NewStoreSink wraps a Postgres store as a sink.
func NewStoreSink(store *postgres.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

// Handle inserts the event.
func (s *StoreSink) Handle(ctx context.Context, ev model.RiskEvent) error {
	return s.store.InsertRiskEvents(ctx, []model.RiskEvent{ev})
}
