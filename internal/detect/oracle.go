package detect

import (
	"fmt"

	"go.uber.org/zap"

	"riskscope/internal/model"
)

// OracleConfig tunes the oracle manipulation analyzer.
type OracleConfig struct {
	// MinDeviationBps is the smallest oracle/normal price divergence that
	// contributes deviation points.
	MinDeviationBps uint64
	// NormalPrice, when set, overrides the in-transaction reconstruction
	// of the pre-manipulation pool price, e.g. with an external snapshot.
	NormalPrice func(tx *model.Transaction) uint64
}

// DefaultOracleConfig mirrors the documented defaults.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{MinDeviationBps: 1000}
}

// minQualifyingImpactBps marks a swap as large enough to move the oracle.
const minQualifyingImpactBps = 500

// OracleAnalyzer flags flash-loan-funded price spikes that enable a
// lending borrow against inflated collateral within one transaction.
type OracleAnalyzer struct {
	cfg    OracleConfig
	logger *zap.Logger
}

// NewOracleAnalyzer builds the analyzer.
func NewOracleAnalyzer(cfg OracleConfig, logger *zap.Logger) *OracleAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDeviationBps == 0 {
		cfg.MinDeviationBps = 1000
	}
	return &OracleAnalyzer{cfg: cfg, logger: logger}
}

func (a *OracleAnalyzer) Name() string { return "oracle_manipulation" }

// Analyze requires a flash loan, a qualifying swap, and a borrow the swap
// precedes; scoring then weighs deviation, borrow size, protocol loss, and
// an abnormal health factor.
func (a *OracleAnalyzer) Analyze(tx *model.Transaction) []model.RiskEvent {
	taken := tx.FlashLoansTaken()
	if len(taken) == 0 {
		return nil
	}

	var qualifying []model.SwapExecuted
	for _, s := range tx.Swaps() {
		if s.PriceImpactBps >= minQualifyingImpactBps {
			qualifying = append(qualifying, s)
		}
	}
	if len(qualifying) == 0 {
		return nil
	}

	borrow, ok := borrowAfterSwap(tx.Borrows(), qualifying)
	if !ok {
		return nil
	}

	normalPrice := a.normalPrice(tx, qualifying[0].PoolID)
	oraclePrice := borrow.OraclePrice
	if normalPrice == 0 || oraclePrice == 0 {
		return nil
	}

	deviation := deviationBps(oraclePrice, normalPrice)

	realCollateral := mulDiv(borrow.CollateralValue, normalPrice, oraclePrice)
	protocolLoss := uint64(0)
	if borrow.BorrowAmount > realCollateral {
		protocolLoss = borrow.BorrowAmount - realCollateral
	}

	var flashLoanAmount uint64
	for _, fl := range taken {
		flashLoanAmount += fl.Amount
	}

	score := 20
	switch {
	case deviation >= 5000:
		score += 40
	case deviation >= 2000:
		score += 30
	case deviation >= a.cfg.MinDeviationBps:
		score += 20
	}
	switch {
	case borrow.BorrowAmount >= 10_000*tokenUnit:
		score += 20
	case borrow.BorrowAmount >= 100*tokenUnit:
		score += 15
	}
	if protocolLoss > borrow.BorrowAmount/2 {
		score += 20
	} else if protocolLoss > 0 {
		score += 10
	}
	if borrow.HealthFactorBps > 15_000 {
		score += 10
	}
	score = capScore(score)

	if score < 40 {
		return nil
	}

	var level model.Level
	switch {
	case score < 60:
		level = model.LevelMedium
	case score < 80:
		level = model.LevelHigh
	default:
		level = model.LevelCritical
	}

	description := fmt.Sprintf(
		"Oracle manipulation: %.2f%% price inflation, %d borrowed, %d potential protocol loss",
		float64(deviation)/100.0, borrow.BorrowAmount, protocolLoss,
	)

	detail := map[string]any{
		"flash_loan_amount":     flashLoanAmount,
		"swap_count":            len(qualifying),
		"oracle_price":          oraclePrice,
		"normal_price":          normalPrice,
		"price_deviation_bps":   deviation,
		"borrow_amount":         borrow.BorrowAmount,
		"collateral_value":      borrow.CollateralValue,
		"real_collateral_value": realCollateral,
		"protocol_loss":         protocolLoss,
		"health_factor_bps":     borrow.HealthFactorBps,
		"risk_score":            score,
	}

	return []model.RiskEvent{
		model.NewRiskEvent(model.KindOracleManipulation, level, score, tx, description, detail),
	}
}

// borrowAfterSwap picks the first borrow of at least 100 tokens that some
// qualifying swap precedes in event order.
func borrowAfterSwap(borrows []model.BorrowEvent, qualifying []model.SwapExecuted) (model.BorrowEvent, bool) {
	for _, b := range borrows {
		if b.BorrowAmount < 100*tokenUnit {
			continue
		}
		for _, s := range qualifying {
			if s.EventIndex < b.EventIndex {
				return b, true
			}
		}
	}
	return model.BorrowEvent{}, false
}

// normalPrice reconstructs the pre-transaction implied price of the
// targeted pool from the reserves of the earliest swap on it, unless an
// override hook is configured. Prices are scaled by 1e9.
func (a *OracleAnalyzer) normalPrice(tx *model.Transaction, poolID string) uint64 {
	if a.cfg.NormalPrice != nil {
		return a.cfg.NormalPrice(tx)
	}

	for _, s := range tx.Swaps() {
		if s.PoolID != poolID {
			continue
		}
		var reserveA, reserveB uint64
		if s.TokenInIsA {
			if s.ReserveAAfter < s.AmountIn {
				return 0
			}
			reserveA = s.ReserveAAfter - s.AmountIn
			reserveB = s.ReserveBAfter + s.AmountOut
		} else {
			if s.ReserveBAfter < s.AmountIn {
				return 0
			}
			reserveA = s.ReserveAAfter + s.AmountOut
			reserveB = s.ReserveBAfter - s.AmountIn
		}
		if reserveA == 0 {
			return 0
		}
		return mulDiv(reserveB, priceScale, reserveA)
	}
	return 0
}
