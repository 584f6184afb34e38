// Package postgres persists risk events for offline investigation.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"riskscope/internal/model"
)

// Store provides Postgres persistence for risk events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the risk_events table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS risk_events (
			id              TEXT PRIMARY KEY,
			kind            TEXT NOT NULL,
			level           TEXT NOT NULL,
			score           SMALLINT NOT NULL,
			tx_digest       TEXT NOT NULL,
			sender          TEXT NOT NULL,
			checkpoint_seq  BIGINT NOT NULL,
			timestamp_ms    BIGINT NOT NULL,
			description     TEXT NOT NULL,
			detail          JSONB NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure risk_events table: %w", err)
	}
	return nil
}

// InsertRiskEvents stores a batch, ignoring already-stored IDs.
func (s *Store) InsertRiskEvents(ctx context.Context, events []model.RiskEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		detail, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		batch.Queue(`
			INSERT INTO risk_events (
				id, kind, level, score, tx_digest, sender,
				checkpoint_seq, timestamp_ms, description, detail
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO NOTHING
		`,
			ev.ID,
			string(ev.Kind),
			ev.Level.String(),
			int16(ev.Score),
			ev.TxDigest,
			ev.Sender,
			ev.CheckpointSeq,
			ev.TimestampMS,
			ev.Description,
			detail,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
