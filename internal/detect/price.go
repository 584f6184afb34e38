package detect

import (
	"fmt"

	"go.uber.org/zap"

	"riskscope/internal/model"
)

// PriceConfig tunes the price manipulation analyzer.
type PriceConfig struct {
	HighImpactBps     uint64
	CriticalImpactBps uint64
}

// DefaultPriceConfig mirrors the documented defaults.
func DefaultPriceConfig() PriceConfig {
	return PriceConfig{HighImpactBps: 1000, CriticalImpactBps: 2000}
}

// PriceAnalyzer flags artificial price movement from outsized swaps or
// oracle deviation, independent of flash loan context.
type PriceAnalyzer struct {
	cfg    PriceConfig
	logger *zap.Logger
}

// NewPriceAnalyzer builds the analyzer.
func NewPriceAnalyzer(cfg PriceConfig, logger *zap.Logger) *PriceAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceAnalyzer{cfg: cfg, logger: logger}
}

func (a *PriceAnalyzer) Name() string { return "price_manipulation" }

// Analyze scores direct impact, trade size against pool depth, oracle
// deviation, and same-direction pump sequences.
func (a *PriceAnalyzer) Analyze(tx *model.Transaction) []model.RiskEvent {
	swaps := tx.Swaps()
	twaps := tx.TWAPUpdates()
	deviations := tx.PriceDeviations()
	if len(swaps) == 0 && len(twaps) == 0 && len(deviations) == 0 {
		return nil
	}

	var maxImpact, maxRatioBps, poolDepth uint64
	for _, s := range swaps {
		if s.PriceImpactBps > maxImpact {
			maxImpact = s.PriceImpactBps
		}
		depth := s.ReserveAAfter
		if s.ReserveBAfter < depth {
			depth = s.ReserveBAfter
		}
		ratio := mulDiv(s.AmountIn, bpsDenominator, depth+s.AmountIn)
		if ratio > maxRatioBps {
			maxRatioBps = ratio
			poolDepth = depth
		}
	}

	var maxTWAPDeviation uint64
	for _, u := range twaps {
		if u.PriceDeviationBps > maxTWAPDeviation {
			maxTWAPDeviation = u.PriceDeviationBps
		}
	}

	pumpCount := samePoolSameDirectionCount(swaps)

	score := 0
	switch {
	case maxImpact >= a.cfg.CriticalImpactBps:
		score += 40
	case maxImpact >= a.cfg.HighImpactBps:
		score += 30
	case maxImpact >= 500:
		score += 15
	}
	switch {
	case maxRatioBps > 3000:
		score += 25
	case maxRatioBps > 1500:
		score += 15
	}
	switch {
	case maxTWAPDeviation >= 2000:
		score += 25
	case maxTWAPDeviation >= 1000:
		score += 15
	case maxTWAPDeviation >= 500:
		score += 5
	}
	if len(deviations) > 0 {
		score += 10
	}
	if pumpCount >= 2 {
		score += 10
	}
	score = capScore(score)

	if score < 25 {
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

	description := fmt.Sprintf(
		"Price manipulation: %.2f%% max price impact, %.2f%% of pool depth",
		float64(maxImpact)/100.0, float64(maxRatioBps)/100.0,
	)
	if maxTWAPDeviation > 0 {
		description = fmt.Sprintf("%s, %.2f%% TWAP deviation", description, float64(maxTWAPDeviation)/100.0)
	}

	detail := map[string]any{
		"price_impact_bps":                 maxImpact,
		"pool_depth":                       poolDepth,
		"depth_ratio_bps":                  maxRatioBps,
		"consecutive_same_direction_count": pumpCount,
		"risk_score":                       score,
	}
	if len(twaps) > 0 {
		detail["twap_deviation_bps"] = maxTWAPDeviation
	}

	return []model.RiskEvent{
		model.NewRiskEvent(model.KindPriceManipulation, level, score, tx, description, detail),
	}
}

// samePoolSameDirectionCount is the largest group of swaps sharing pool
// and direction, each moving price by at least 100 bps.
func samePoolSameDirectionCount(swaps []model.SwapExecuted) int {
	groups := make(map[string]int)
	max := 0
	for _, s := range swaps {
		if s.PriceImpactBps < 100 {
			continue
		}
		key := s.PoolID + "/a"
		if !s.TokenInIsA {
			key = s.PoolID + "/b"
		}
		groups[key]++
		if groups[key] > max {
			max = groups[key]
		}
	}
	return max
}
