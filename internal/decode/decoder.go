// Package decode translates raw chain events into typed detection events.
package decode

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"riskscope/internal/metrics"
	"riskscope/internal/model"
)

// Event type names are matched by their module::Type suffix so package
// upgrades stay transparent.
const (
	suffixSwapExecuted           = "simple_dex::SwapExecuted"
	suffixFlashLoanTaken         = "flash_loan_pool::FlashLoanTaken"
	suffixFlashLoanRepaid        = "flash_loan_pool::FlashLoanRepaid"
	suffixTWAPUpdated            = "twap_oracle::TWAPUpdated"
	suffixPriceDeviationDetected = "twap_oracle::PriceDeviationDetected"
	suffixBorrowEvent            = "compound_market::BorrowEvent"
)

// DecodeError reports a recognized event type with a malformed payload.
// It is only surfaced in strict mode; otherwise the event is dropped.
type DecodeError struct {
	TypeName string
	Index    int
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (event %d): %s", e.TypeName, e.Index, e.Reason)
}

// Decoder maps raw events onto model.DecodedEvent variants.
type Decoder struct {
	strict  bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewDecoder builds a decoder. A recognized type with a malformed payload
// is dropped in either mode; in strict mode it also yields a DecodeError.
func NewDecoder(strict bool, logger *zap.Logger, m *metrics.Metrics) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Decoder{strict: strict, logger: logger, metrics: m}
}

// CanDecode reports whether the fully-qualified type name is a recognized
// detection event.
func (d *Decoder) CanDecode(typeName string) bool {
	base, _ := splitTypeParams(typeName)
	switch {
	case strings.HasSuffix(base, suffixSwapExecuted),
		strings.HasSuffix(base, suffixFlashLoanTaken),
		strings.HasSuffix(base, suffixFlashLoanRepaid),
		strings.HasSuffix(base, suffixTWAPUpdated),
		strings.HasSuffix(base, suffixPriceDeviationDetected),
		strings.HasSuffix(base, suffixBorrowEvent):
		return true
	}
	return false
}

// DecodeTransaction converts a raw transaction into the analyzer view.
// Unknown events are dropped silently; recognized events with unusable
// payloads are dropped and counted, or returned as a DecodeError in strict
// mode. The returned transaction is valid even when an error is returned.
func (d *Decoder) DecodeTransaction(raw model.RawTransaction) (*model.Transaction, error) {
	tx := &model.Transaction{
		Digest:        raw.Digest,
		Sender:        raw.Sender,
		CheckpointSeq: raw.CheckpointSeq,
		TimestampMS:   raw.TimestampMS,
		Packages:      make(map[string]struct{}, len(raw.Events)),
	}

	var firstErr error
	for _, ev := range raw.Events {
		if ev.PackageID != "" {
			tx.Packages[ev.PackageID] = struct{}{}
		}
		if pkg := packageOfType(ev.TypeName); pkg != "" {
			tx.Packages[pkg] = struct{}{}
		}

		decoded, err := d.decodeEvent(ev)
		if err != nil {
			d.metrics.IncDecodeErrors()
			d.logger.Warn("event payload rejected",
				zap.String("tx_digest", raw.Digest),
				zap.String("type_name", ev.TypeName),
				zap.Int("event_index", ev.EventIndex),
				zap.Error(err),
			)
			if d.strict && firstErr == nil {
				firstErr = err
			}
			continue
		}
		if decoded != nil {
			tx.Events = append(tx.Events, decoded)
		}
	}

	return tx, firstErr
}

// decodeEvent returns (nil, nil) for unknown types, the decoded variant for
// recognized ones, and a DecodeError when a recognized payload is unusable.
func (d *Decoder) decodeEvent(ev model.RawEvent) (model.DecodedEvent, error) {
	base, params := splitTypeParams(ev.TypeName)

	var payload map[string]json.RawMessage
	recognized := d.CanDecode(ev.TypeName)
	if !recognized {
		return nil, nil
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return nil, &DecodeError{TypeName: ev.TypeName, Index: ev.EventIndex, Reason: "payload is not an object"}
	}

	meta := model.EventMeta{PackageID: ev.PackageID, EventIndex: ev.EventIndex}
	p := fieldReader{typeName: ev.TypeName, index: ev.EventIndex, payload: payload}

	switch {
	case strings.HasSuffix(base, suffixSwapExecuted):
		swap := model.SwapExecuted{
			EventMeta:      meta,
			PoolID:         p.str("pool_id"),
			Sender:         p.str("sender"),
			TokenInIsA:     p.boolean("token_in_is_a"),
			AmountIn:       p.u64("amount_in"),
			AmountOut:      p.u64("amount_out"),
			FeeAmount:      p.u64("fee_amount"),
			ReserveAAfter:  p.u64("reserve_a_after"),
			ReserveBAfter:  p.u64("reserve_b_after"),
			PriceImpactBps: p.u64("price_impact_bps"),
		}
		if len(params) >= 2 {
			if swap.TokenInIsA {
				swap.TokenInType, swap.TokenOutType = params[0], params[1]
			} else {
				swap.TokenInType, swap.TokenOutType = params[1], params[0]
			}
		}
		return swap, p.err
	case strings.HasSuffix(base, suffixFlashLoanTaken):
		return model.FlashLoanTaken{
			EventMeta: meta,
			PoolID:    p.str("pool_id"),
			Borrower:  p.str("borrower"),
			Amount:    p.u64("amount"),
			Fee:       p.u64("fee"),
		}, p.err
	case strings.HasSuffix(base, suffixFlashLoanRepaid):
		return model.FlashLoanRepaid{
			EventMeta: meta,
			PoolID:    p.str("pool_id"),
			Borrower:  p.str("borrower"),
			Amount:    p.u64("amount"),
			Fee:       p.u64("fee"),
		}, p.err
	case strings.HasSuffix(base, suffixTWAPUpdated):
		return model.TWAPUpdated{
			EventMeta:         meta,
			PoolID:            p.str("pool_id"),
			TWAPPrice:         p.u64("twap_price"),
			SpotPrice:         p.u64("spot_price"),
			PriceDeviationBps: p.u64("price_deviation_bps"),
			TimestampMS:       p.u64("timestamp_ms"),
		}, p.err
	case strings.HasSuffix(base, suffixPriceDeviationDetected):
		return model.PriceDeviationDetected{
			EventMeta:    meta,
			PoolID:       p.str("pool_id"),
			TWAPPrice:    p.u64("twap_price"),
			SpotPrice:    p.u64("spot_price"),
			DeviationBps: p.u64("deviation_bps"),
			TimestampMS:  p.u64("timestamp_ms"),
		}, p.err
	case strings.HasSuffix(base, suffixBorrowEvent):
		return model.BorrowEvent{
			EventMeta:       meta,
			MarketID:        p.str("market_id"),
			Borrower:        p.str("borrower"),
			PositionID:      p.str("position_id"),
			BorrowAmount:    p.u64("borrow_amount"),
			CollateralValue: p.u64("collateral_value"),
			OraclePrice:     p.u64("oracle_price"),
			HealthFactorBps: p.u64("health_factor_bps"),
			TimestampMS:     p.u64("timestamp_ms"),
		}, p.err
	}

	return nil, nil
}

// splitTypeParams separates the base type name from its generic parameters:
// "0x1::m::T<0x2::a::A, 0x2::b::B>" -> "0x1::m::T", ["0x2::a::A", "0x2::b::B"].
func splitTypeParams(typeName string) (string, []string) {
	open := strings.IndexByte(typeName, '<')
	if open < 0 {
		return typeName, nil
	}
	base := typeName[:open]
	inner := strings.TrimSuffix(typeName[open+1:], ">")

	var params []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				params = append(params, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(inner[start:]); rest != "" {
		params = append(params, rest)
	}
	return base, params
}

// packageOfType extracts the leading package ID of a fully-qualified type
// name, or "" when the name has no package segment.
func packageOfType(typeName string) string {
	base, _ := splitTypeParams(typeName)
	idx := strings.Index(base, "::")
	if idx <= 0 {
		return ""
	}
	return base[:idx]
}
