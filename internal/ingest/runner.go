// Package ingest drives the detection pipeline from a finalized
// transaction stream supplied in checkpoint order.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"riskscope/internal/action"
	"riskscope/internal/decode"
	"riskscope/internal/detect"
	"riskscope/internal/model"
)

// Runner reads JSONL transactions, decodes them, runs the pipeline, and
// hands risk events to the action manager.
type Runner struct {
	decoder    *decode.Decoder
	pipeline   *detect.Pipeline
	manager    *action.Manager
	checkpoint *CheckpointStore
	logger     *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(decoder *decode.Decoder, pipeline *detect.Pipeline, manager *action.Manager, checkpoint *CheckpointStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		decoder:    decoder,
		pipeline:   pipeline,
		manager:    manager,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// Run consumes the stream until EOF or context cancellation. Transactions
// at or below the resume checkpoint are skipped; the checkpoint advances
// after each fully dispatched checkpoint sequence.
func (r *Runner) Run(ctx context.Context, input io.Reader) error {
	resumeFrom := int64(-1)
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok {
			resumeFrom = cp.LastProcessedSeq
			r.logger.Info("resume from checkpoint", zap.Int64("last_processed_seq", resumeFrom))
		}
	}

	scanner := bufio.NewScanner(input)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var processed, skipped, emitted int
	lastSeq := resumeFrom
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw model.RawTransaction
		if err := json.Unmarshal(line, &raw); err != nil {
			r.logger.Warn("malformed transaction line skipped", zap.Error(err))
			continue
		}
		if raw.CheckpointSeq <= resumeFrom {
			skipped++
			continue
		}

		if r.checkpoint != nil && raw.CheckpointSeq > lastSeq {
			// A higher sequence means every transaction of lastSeq is dispatched.
			if lastSeq > resumeFrom {
				if err := r.checkpoint.Save(lastSeq); err != nil {
					return fmt.Errorf("save checkpoint: %w", err)
				}
			}
			lastSeq = raw.CheckpointSeq
		}

		tx, err := r.decoder.DecodeTransaction(raw)
		if err != nil {
			// Strict decoding refused the transaction's bad payloads;
			// the remaining well-formed events are still analyzed.
			r.logger.Warn("strict decode failure",
				zap.String("tx_digest", raw.Digest), zap.Error(err))
		}

		events := r.pipeline.Process(tx)
		for _, ev := range events {
			r.manager.Dispatch(ctx, ev)
		}
		processed++
		emitted += len(events)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	if r.checkpoint != nil && lastSeq > resumeFrom {
		if err := r.checkpoint.Save(lastSeq); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}

	r.logger.Info("stream complete",
		zap.Int("processed", processed),
		zap.Int("skipped", skipped),
		zap.Int("risk_events", emitted),
	)
	return nil
}
