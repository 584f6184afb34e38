package detect

import (
	"go.uber.org/zap"

	"riskscope/internal/metrics"
	"riskscope/internal/model"
)

// Pipeline runs the analyzers in a fixed order over transactions that
// touch the target package. Analyzer failures never fail the transaction.
type Pipeline struct {
	targetPackage string
	analyzers     []Analyzer
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewPipeline composes the analyzers. The order given is the dispatch and
// output order.
func NewPipeline(targetPackage string, analyzers []Analyzer, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{
		targetPackage: targetPackage,
		analyzers:     analyzers,
		logger:        logger,
		metrics:       m,
	}
}

// Process runs every analyzer over tx and concatenates their events.
// Transactions that do not touch the target package are skipped entirely.
func (p *Pipeline) Process(tx *model.Transaction) []model.RiskEvent {
	p.metrics.IncTransactionsProcessed()

	if !tx.TouchesPackage(p.targetPackage) {
		return nil
	}

	var events []model.RiskEvent
	for _, analyzer := range p.analyzers {
		events = append(events, p.runAnalyzer(analyzer, tx)...)
	}

	p.metrics.AddRiskEventsEmitted(len(events))
	return events
}

// runAnalyzer isolates a panicking analyzer: its contribution is dropped,
// the next analyzer still runs.
func (p *Pipeline) runAnalyzer(analyzer Analyzer, tx *model.Transaction) (events []model.RiskEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.IncAnalyzerErrors()
			p.logger.Error("analyzer failed",
				zap.String("analyzer", analyzer.Name()),
				zap.String("tx_digest", tx.Digest),
				zap.Any("panic", r),
			)
			events = nil
		}
	}()
	return analyzer.Analyze(tx)
}
