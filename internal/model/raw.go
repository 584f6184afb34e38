package model

import "encoding/json"

// RawEvent is a single chain event as supplied by the host indexer.
type RawEvent struct {
	TypeName   string          `json:"type_name"`
	PackageID  string          `json:"package_id"`
	EventIndex int             `json:"event_index"`
	Payload    json.RawMessage `json:"payload"`
}

// RawTransaction is the host-facing input shape: one finalized transaction
// with its emitted events, delivered in checkpoint order.
type RawTransaction struct {
	Digest        string     `json:"digest"`
	CheckpointSeq int64      `json:"checkpoint_seq"`
	TimestampMS   int64      `json:"timestamp_ms"`
	Sender        string     `json:"sender"`
	Events        []RawEvent `json:"events"`
}
