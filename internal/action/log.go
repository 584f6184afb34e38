package action

import (
	"context"

	"go.uber.org/zap"

	"riskscope/internal/model"
)

// LogSink writes a structured log line per risk event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds the log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

// Handle logs the event at a severity matching its risk level.
func (s *LogSink) Handle(_ context.Context, ev model.RiskEvent) error {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("level", ev.Level.String()),
		zap.Int("score", ev.Score),
		zap.String("tx_digest", ev.TxDigest),
		zap.String("sender", ev.Sender),
		zap.Int64("checkpoint_seq", ev.CheckpointSeq),
		zap.Any("detail", ev.Detail),
	}

	switch ev.Level {
	case model.LevelCritical, model.LevelHigh:
		s.logger.Error(ev.Description, fields...)
	case model.LevelMedium:
		s.logger.Warn(ev.Description, fields...)
	default:
		s.logger.Info(ev.Description, fields...)
	}
	return nil
}
