package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies the attack family a risk event belongs to.
type Kind string

const (
	KindFlashLoan          Kind = "flash_loan"
	KindPriceManipulation  Kind = "price_manipulation"
	KindSandwich           Kind = "sandwich"
	KindOracleManipulation Kind = "oracle_manipulation"
)

// Level grades a risk event. Levels are ordered so sinks can filter with a
// plain comparison.
type Level int

const (
	LevelLow Level = iota + 1
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = map[Level]string{
	LevelLow:      "low",
	LevelMedium:   "medium",
	LevelHigh:     "high",
	LevelCritical: "critical",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MarshalJSON encodes the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level from its name.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel maps a level name to its Level.
func ParseLevel(s string) (Level, error) {
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown risk level: %q", s)
}

// RiskEvent is one detection result, produced by an analyzer and consumed
// by the action manager. Detail keys are fixed per Kind.
type RiskEvent struct {
	ID            string         `json:"id"`
	Kind          Kind           `json:"kind"`
	Level         Level          `json:"level"`
	Score         int            `json:"score"`
	TxDigest      string         `json:"tx_digest"`
	Sender        string         `json:"sender"`
	CheckpointSeq int64          `json:"checkpoint_seq"`
	TimestampMS   int64          `json:"timestamp_ms"`
	Description   string         `json:"description"`
	Detail        map[string]any `json:"detail"`
}

// NewRiskEvent builds a risk event for tx with a fresh ID.
func NewRiskEvent(kind Kind, level Level, score int, tx *Transaction, description string, detail map[string]any) RiskEvent {
	return RiskEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		Level:         level,
		Score:         score,
		TxDigest:      tx.Digest,
		Sender:        tx.Sender,
		CheckpointSeq: tx.CheckpointSeq,
		TimestampMS:   tx.TimestampMS,
		Description:   description,
		Detail:        detail,
	}
}
