// Package detect implements the risk detection pipeline and its analyzers.
package detect

import (
	"math/big"

	"riskscope/internal/model"
)

// Analyzer inspects one transaction and returns zero or more risk events.
// Analyzers must not block; the sandwich analyzer is the only stateful one
// and owns its buffer exclusively.
type Analyzer interface {
	Name() string
	Analyze(tx *model.Transaction) []model.RiskEvent
}

// bpsDenominator is the basis point scale: 10_000 = 100%.
const bpsDenominator = 10_000

// priceScale is the implicit precision of oracle and implied prices.
const priceScale = 1_000_000_000

// tokenUnit is the base-unit scale of one whole token; profit and borrow
// size thresholds are expressed in whole tokens.
const tokenUnit = 1_000_000

// mulDiv computes a*b/den with a 128-bit intermediate; a result that does
// not fit in u64 saturates at the u64 maximum. den == 0 yields 0.
func mulDiv(a, b, den uint64) uint64 {
	if den == 0 {
		return 0
	}
	n := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	n.Div(n, new(big.Int).SetUint64(den))
	if !n.IsUint64() {
		return ^uint64(0)
	}
	return n.Uint64()
}

// constantProductOut is the fee-adjusted constant product quote:
// out = in*(10000-fee)*reserveOut / (reserveIn*10000 + in*(10000-fee)).
func constantProductOut(amountIn, reserveIn, reserveOut, feeBps uint64) uint64 {
	if reserveIn == 0 || reserveOut == 0 || feeBps >= bpsDenominator {
		return 0
	}
	inAfterFee := new(big.Int).Mul(
		new(big.Int).SetUint64(amountIn),
		new(big.Int).SetUint64(bpsDenominator-feeBps),
	)
	num := new(big.Int).Mul(inAfterFee, new(big.Int).SetUint64(reserveOut))
	den := new(big.Int).Mul(new(big.Int).SetUint64(reserveIn), big.NewInt(bpsDenominator))
	den.Add(den, inAfterFee)
	num.Div(num, den)
	if !num.IsUint64() {
		return ^uint64(0)
	}
	return num.Uint64()
}

// deviationBps is |a-b| * 10000 / min(a, b); 0 when either side is 0.
func deviationBps(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return mulDiv(hi-lo, bpsDenominator, lo)
}

func capScore(score int) int {
	if score > 100 {
		return 100
	}
	return score
}
