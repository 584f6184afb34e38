package detect

import (
	"fmt"

	"go.uber.org/zap"

	"riskscope/internal/model"
)

// FlashLoanConfig tunes the flash loan analyzer.
type FlashLoanConfig struct {
	// MinSwapCount is the minimum number of swaps before a flash loan
	// transaction is scored at all.
	MinSwapCount int
	// HighImpactBps and CriticalImpactBps gate the cumulative price
	// impact signal.
	HighImpactBps     uint64
	CriticalImpactBps uint64
}

// DefaultFlashLoanConfig mirrors the documented defaults.
func DefaultFlashLoanConfig() FlashLoanConfig {
	return FlashLoanConfig{
		MinSwapCount:      2,
		HighImpactBps:     1000,
		CriticalImpactBps: 2000,
	}
}

// FlashLoanAnalyzer flags flash loans combined with multi-swap behavior
// consistent with arbitrage exploitation.
type FlashLoanAnalyzer struct {
	cfg    FlashLoanConfig
	logger *zap.Logger
}

// NewFlashLoanAnalyzer builds the analyzer.
func NewFlashLoanAnalyzer(cfg FlashLoanConfig, logger *zap.Logger) *FlashLoanAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinSwapCount <= 0 {
		cfg.MinSwapCount = 2
	}
	return &FlashLoanAnalyzer{cfg: cfg, logger: logger}
}

func (a *FlashLoanAnalyzer) Name() string { return "flash_loan" }

// Analyze scores the multi-signal flash loan arbitrage pattern.
func (a *FlashLoanAnalyzer) Analyze(tx *model.Transaction) []model.RiskEvent {
	taken := tx.FlashLoansTaken()
	repaid := tx.FlashLoansRepaid()
	if len(taken) == 0 || len(repaid) == 0 || !hasMatchedLoan(taken, repaid) {
		return nil
	}

	swaps := tx.Swaps()
	if len(swaps) < a.cfg.MinSwapCount {
		return nil
	}

	circular := circularTrading(swaps)
	uniquePools := countUniquePools(swaps)
	var totalImpact, maxImpact, totalBorrowed uint64
	for _, s := range swaps {
		totalImpact += s.PriceImpactBps
		if s.PriceImpactBps > maxImpact {
			maxImpact = s.PriceImpactBps
		}
	}
	largeLoan := false
	for _, fl := range taken {
		totalBorrowed += fl.Amount
		if fl.Amount > 1_000_000_000 {
			largeLoan = true
		}
	}

	score := 0
	if circular {
		score += 30
	}
	if len(swaps) >= 3 {
		score += 20
	} else if len(swaps) >= 2 {
		score += 10
	}
	if totalImpact > a.cfg.CriticalImpactBps {
		score += 25
	} else if totalImpact > a.cfg.HighImpactBps {
		score += 15
	}
	if maxImpact > 500 {
		score += 15
	}
	if uniquePools >= 3 {
		score += 15
	} else if uniquePools >= 2 {
		score += 10
	}
	if largeLoan {
		score += 10
	}
	score = capScore(score)

	if score < 30 {
		return nil
	}

	var level model.Level
	switch {
	case score < 50:
		level = model.LevelLow
	case score < 70:
		level = model.LevelMedium
	case score < 85:
		level = model.LevelHigh
	default:
		level = model.LevelCritical
	}

	suffix := ""
	if circular {
		suffix = ", circular trading pattern"
	}
	description := fmt.Sprintf(
		"Flash loan arbitrage detected: %d swaps across %d pools, %.2f%% total price impact%s",
		len(swaps), uniquePools, float64(totalImpact)/100.0, suffix,
	)

	detail := map[string]any{
		"flash_loan_count":       len(taken),
		"total_borrowed":         totalBorrowed,
		"swap_count":             len(swaps),
		"unique_pools":           uniquePools,
		"circular_trading":       circular,
		"total_price_impact_bps": totalImpact,
		"max_price_impact_bps":   maxImpact,
		"risk_score":             score,
	}

	return []model.RiskEvent{
		model.NewRiskEvent(model.KindFlashLoan, level, score, tx, description, detail),
	}
}

// hasMatchedLoan requires a repayment whose amount and fee match a borrow.
func hasMatchedLoan(taken []model.FlashLoanTaken, repaid []model.FlashLoanRepaid) bool {
	for _, t := range taken {
		for _, r := range repaid {
			if t.Amount == r.Amount && t.Fee == r.Fee {
				return true
			}
		}
	}
	return false
}

func countUniquePools(swaps []model.SwapExecuted) int {
	pools := make(map[string]struct{}, len(swaps))
	for _, s := range swaps {
		pools[s.PoolID] = struct{}{}
	}
	return len(pools)
}

// circularTrading treats the swap sequence as a walk on the token graph
// and reports a cycle when the walk's start token equals its end token.
// Without generic token parameters the tokens fall back to pool sides,
// which still catches single-pool round trips.
func circularTrading(swaps []model.SwapExecuted) bool {
	if len(swaps) < 2 {
		return false
	}

	typed := true
	for _, s := range swaps {
		if s.TokenInType == "" || s.TokenOutType == "" {
			typed = false
			break
		}
	}

	tokenIn := func(s model.SwapExecuted) string {
		if typed {
			return s.TokenInType
		}
		if s.TokenInIsA {
			return s.PoolID + "/a"
		}
		return s.PoolID + "/b"
	}
	tokenOut := func(s model.SwapExecuted) string {
		if typed {
			return s.TokenOutType
		}
		if s.TokenInIsA {
			return s.PoolID + "/b"
		}
		return s.PoolID + "/a"
	}

	return tokenIn(swaps[0]) == tokenOut(swaps[len(swaps)-1])
}
