package model

// EventMeta carries the provenance shared by every decoded event variant.
type EventMeta struct {
	PackageID  string `json:"package_id"`
	EventIndex int    `json:"event_index"`
}

// DecodedEvent is a closed set of typed chain events relevant to detection.
// The unexported method keeps the set closed to this package.
type DecodedEvent interface {
	Meta() EventMeta
	decodedEvent()
}

// SwapExecuted is a DEX swap on a constant-product pool. Reserves are the
// pool state after the swap; price impact is in basis points.
type SwapExecuted struct {
	EventMeta
	PoolID         string `json:"pool_id"`
	Sender         string `json:"sender"`
	TokenInIsA     bool   `json:"token_in_is_a"`
	AmountIn       uint64 `json:"amount_in"`
	AmountOut      uint64 `json:"amount_out"`
	FeeAmount      uint64 `json:"fee_amount"`
	ReserveAAfter  uint64 `json:"reserve_a_after"`
	ReserveBAfter  uint64 `json:"reserve_b_after"`
	PriceImpactBps uint64 `json:"price_impact_bps"`

	// Token type names parsed from the event's generic parameters,
	// empty when the emitting package is not generic.
	TokenInType  string `json:"token_in_type,omitempty"`
	TokenOutType string `json:"token_out_type,omitempty"`
}

// FlashLoanTaken marks a flash loan borrow.
type FlashLoanTaken struct {
	EventMeta
	PoolID   string `json:"pool_id"`
	Borrower string `json:"borrower"`
	Amount   uint64 `json:"amount"`
	Fee      uint64 `json:"fee"`
}

// FlashLoanRepaid marks a flash loan repayment.
type FlashLoanRepaid struct {
	EventMeta
	PoolID   string `json:"pool_id"`
	Borrower string `json:"borrower"`
	Amount   uint64 `json:"amount"`
	Fee      uint64 `json:"fee"`
}

// TWAPUpdated is an oracle update. Prices are scaled by 1e9.
type TWAPUpdated struct {
	EventMeta
	PoolID            string `json:"pool_id"`
	TWAPPrice         uint64 `json:"twap_price"`
	SpotPrice         uint64 `json:"spot_price"`
	PriceDeviationBps uint64 `json:"price_deviation_bps"`
	TimestampMS       uint64 `json:"timestamp_ms"`
}

// PriceDeviationDetected is the oracle's own spot/TWAP divergence signal.
type PriceDeviationDetected struct {
	EventMeta
	PoolID       string `json:"pool_id"`
	TWAPPrice    uint64 `json:"twap_price"`
	SpotPrice    uint64 `json:"spot_price"`
	DeviationBps uint64 `json:"deviation_bps"`
	TimestampMS  uint64 `json:"timestamp_ms"`
}

// BorrowEvent is a lending market borrow. Oracle price is scaled by 1e9;
// health factor is in basis points.
type BorrowEvent struct {
	EventMeta
	MarketID        string `json:"market_id"`
	Borrower        string `json:"borrower"`
	PositionID      string `json:"position_id"`
	BorrowAmount    uint64 `json:"borrow_amount"`
	CollateralValue uint64 `json:"collateral_value"`
	OraclePrice     uint64 `json:"oracle_price"`
	HealthFactorBps uint64 `json:"health_factor_bps"`
	TimestampMS     uint64 `json:"timestamp_ms"`
}

func (m EventMeta) Meta() EventMeta { return m }

func (SwapExecuted) decodedEvent()           {}
func (FlashLoanTaken) decodedEvent()         {}
func (FlashLoanRepaid) decodedEvent()        {}
func (TWAPUpdated) decodedEvent()            {}
func (PriceDeviationDetected) decodedEvent() {}
func (BorrowEvent) decodedEvent()            {}

// Transaction is the per-transaction view consumed by the analyzers.
// Events preserve chain emission order; Packages holds every package ID
// observed on the raw events, including ones whose events were dropped.
type Transaction struct {
	Digest        string
	Sender        string
	CheckpointSeq int64
	TimestampMS   int64
	Events        []DecodedEvent
	Packages      map[string]struct{}
}

// TouchesPackage reports whether any raw event was emitted by pkg or names
// pkg as the package of its type.
func (t *Transaction) TouchesPackage(pkg string) bool {
	_, ok := t.Packages[pkg]
	return ok
}

// Swaps returns the transaction's swap events in emission order.
func (t *Transaction) Swaps() []SwapExecuted {
	var out []SwapExecuted
	for _, ev := range t.Events {
		if s, ok := ev.(SwapExecuted); ok {
			out = append(out, s)
		}
	}
	return out
}

// FlashLoansTaken returns the transaction's flash loan borrows.
func (t *Transaction) FlashLoansTaken() []FlashLoanTaken {
	var out []FlashLoanTaken
	for _, ev := range t.Events {
		if f, ok := ev.(FlashLoanTaken); ok {
			out = append(out, f)
		}
	}
	return out
}

// FlashLoansRepaid returns the transaction's flash loan repayments.
func (t *Transaction) FlashLoansRepaid() []FlashLoanRepaid {
	var out []FlashLoanRepaid
	for _, ev := range t.Events {
		if f, ok := ev.(FlashLoanRepaid); ok {
			out = append(out, f)
		}
	}
	return out
}

// TWAPUpdates returns the transaction's oracle updates.
func (t *Transaction) TWAPUpdates() []TWAPUpdated {
	var out []TWAPUpdated
	for _, ev := range t.Events {
		if u, ok := ev.(TWAPUpdated); ok {
			out = append(out, u)
		}
	}
	return out
}

// PriceDeviations returns the transaction's explicit deviation signals.
func (t *Transaction) PriceDeviations() []PriceDeviationDetected {
	var out []PriceDeviationDetected
	for _, ev := range t.Events {
		if d, ok := ev.(PriceDeviationDetected); ok {
			out = append(out, d)
		}
	}
	return out
}

// Borrows returns the transaction's lending borrows.
func (t *Transaction) Borrows() []BorrowEvent {
	var out []BorrowEvent
	for _, ev := range t.Events {
		if b, ok := ev.(BorrowEvent); ok {
			out = append(out, b)
		}
	}
	return out
}
