// Package metrics holds the process-wide detection counters.
package metrics

import "sync/atomic"

// Metrics counts recovered errors and pipeline activity. All methods are
// safe for concurrent use.
type Metrics struct {
	decodeErrors   atomic.Uint64
	analyzerErrors atomic.Uint64
	sinkErrors     atomic.Uint64

	transactionsProcessed atomic.Uint64
	riskEventsEmitted     atomic.Uint64
	eventsDispatched      atomic.Uint64
}

// New returns zeroed metrics.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncDecodeErrors()   { m.decodeErrors.Add(1) }
func (m *Metrics) IncAnalyzerErrors() { m.analyzerErrors.Add(1) }
func (m *Metrics) IncSinkErrors()     { m.sinkErrors.Add(1) }

func (m *Metrics) IncTransactionsProcessed() { m.transactionsProcessed.Add(1) }
func (m *Metrics) AddRiskEventsEmitted(n int) {
	if n > 0 {
		m.riskEventsEmitted.Add(uint64(n))
	}
}
func (m *Metrics) IncEventsDispatched() { m.eventsDispatched.Add(1) }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	DecodeErrors          uint64 `json:"decode_errors"`
	AnalyzerErrors        uint64 `json:"analyzer_errors"`
	SinkErrors            uint64 `json:"sink_errors"`
	TransactionsProcessed uint64 `json:"transactions_processed"`
	RiskEventsEmitted     uint64 `json:"risk_events_emitted"`
	EventsDispatched      uint64 `json:"events_dispatched"`
}

// Snapshot reads every counter once.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		DecodeErrors:          m.decodeErrors.Load(),
		AnalyzerErrors:        m.analyzerErrors.Load(),
		SinkErrors:            m.sinkErrors.Load(),
		TransactionsProcessed: m.transactionsProcessed.Load(),
		RiskEventsEmitted:     m.riskEventsEmitted.Load(),
		EventsDispatched:      m.eventsDispatched.Load(),
	}
}
