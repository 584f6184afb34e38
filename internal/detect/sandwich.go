package detect

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"riskscope/internal/model"
)

// SandwichConfig tunes the stateful sandwich analyzer.
type SandwichConfig struct {
	// BufferCapacity bounds the recent-swap buffer; inserting into a full
	// buffer evicts the oldest entry.
	BufferCapacity int
	// MaxCheckpointDistance is the age horizon: entries older than
	// latest-MaxCheckpointDistance are evicted before matching.
	MaxCheckpointDistance int64
}

// DefaultSandwichConfig mirrors the documented defaults.
func DefaultSandwichConfig() SandwichConfig {
	return SandwichConfig{BufferCapacity: 100, MaxCheckpointDistance: 5}
}

// swapFeeBps is the pool fee used for the constant product victim quote.
const swapFeeBps = 30

// minFrontRunImpactBps is the smallest price move a front-run must cause.
const minFrontRunImpactBps = 100

// sandwichPattern is one observed swap, retained across transactions.
type sandwichPattern struct {
	txDigest       string
	sender         string
	poolID         string
	aToB           bool
	amountIn       uint64
	amountOut      uint64
	priceImpactBps uint64
	reserveAAfter  uint64
	reserveBAfter  uint64
	checkpointSeq  int64
	timestampMS    int64
}

// before orders patterns by (checkpoint_seq, timestamp_ms).
func (p *sandwichPattern) before(o *sandwichPattern) bool {
	if p.checkpointSeq != o.checkpointSeq {
		return p.checkpointSeq < o.checkpointSeq
	}
	return p.timestampMS < o.timestampMS
}

// SandwichAnalyzer detects front-run / victim / back-run triples on the
// same pool across a short window of transactions. It owns its buffer
// exclusively and requires non-decreasing checkpoint sequences.
type SandwichAnalyzer struct {
	cfg    SandwichConfig
	logger *zap.Logger

	buffer         []sandwichPattern
	lastCheckpoint int64
}

// NewSandwichAnalyzer builds the analyzer with an empty buffer.
func NewSandwichAnalyzer(cfg SandwichConfig, logger *zap.Logger) *SandwichAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = 100
	}
	if cfg.MaxCheckpointDistance <= 0 {
		cfg.MaxCheckpointDistance = 5
	}
	return &SandwichAnalyzer{cfg: cfg, logger: logger}
}

func (a *SandwichAnalyzer) Name() string { return "sandwich" }

// BufferLen reports the current buffer size.
func (a *SandwichAnalyzer) BufferLen() int { return len(a.buffer) }

// Reset clears the buffer and the checkpoint watermark.
func (a *SandwichAnalyzer) Reset() {
	a.buffer = nil
	a.lastCheckpoint = 0
}

// Analyze matches each swap of tx as a candidate back-run against the
// buffer, then appends the transaction's swaps. A checkpoint regression is
// fail-open: the transaction passes through without matching or insertion.
func (a *SandwichAnalyzer) Analyze(tx *model.Transaction) []model.RiskEvent {
	swaps := tx.Swaps()
	if len(swaps) == 0 {
		return nil
	}

	if tx.CheckpointSeq < a.lastCheckpoint {
		a.logger.Warn("checkpoint regression, skipping sandwich matching",
			zap.String("tx_digest", tx.Digest),
			zap.Int64("checkpoint_seq", tx.CheckpointSeq),
			zap.Int64("last_seen", a.lastCheckpoint),
		)
		return nil
	}
	a.lastCheckpoint = tx.CheckpointSeq

	a.evictAged(tx.CheckpointSeq)

	var events []model.RiskEvent
	seen := make(map[string]struct{})
	for _, s := range swaps {
		backRun := patternFromSwap(tx, s)
		match := a.findMatch(&backRun)
		if match == nil {
			continue
		}
		key := match.frontRun.txDigest + "|" + match.victim.txDigest + "|" + backRun.txDigest + "|" + backRun.poolID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if ev, ok := a.buildEvent(tx, match); ok {
			events = append(events, ev)
		}
	}

	for _, s := range swaps {
		a.insert(patternFromSwap(tx, s))
	}

	return events
}

func patternFromSwap(tx *model.Transaction, s model.SwapExecuted) sandwichPattern {
	return sandwichPattern{
		txDigest:       tx.Digest,
		sender:         s.Sender,
		poolID:         s.PoolID,
		aToB:           s.TokenInIsA,
		amountIn:       s.AmountIn,
		amountOut:      s.AmountOut,
		priceImpactBps: s.PriceImpactBps,
		reserveAAfter:  s.ReserveAAfter,
		reserveBAfter:  s.ReserveBAfter,
		checkpointSeq:  tx.CheckpointSeq,
		timestampMS:    tx.TimestampMS,
	}
}

// evictAged drops every entry older than latest-MaxCheckpointDistance.
func (a *SandwichAnalyzer) evictAged(latest int64) {
	horizon := latest - a.cfg.MaxCheckpointDistance
	kept := a.buffer[:0]
	for _, p := range a.buffer {
		if p.checkpointSeq >= horizon {
			kept = append(kept, p)
		}
	}
	a.buffer = kept
}

func (a *SandwichAnalyzer) insert(p sandwichPattern) {
	if len(a.buffer) >= a.cfg.BufferCapacity {
		a.buffer = a.buffer[1:]
	}
	a.buffer = append(a.buffer, p)
}

type sandwichMatch struct {
	frontRun      *sandwichPattern
	victim        *sandwichPattern
	attackerGain  uint64
	victimLossBps uint64
	backRun       *sandwichPattern
}

// findMatch looks for the attacker's earlier opposite-direction swap, then
// a victim strictly between it and the back-run trading the same way as
// the front-run. Among several front-runs the one closest to the back-run
// wins; among several victims the earliest wins.
func (a *SandwichAnalyzer) findMatch(backRun *sandwichPattern) *sandwichMatch {
	var candidates []*sandwichPattern
	for i := range a.buffer {
		c := &a.buffer[i]
		if c.poolID != backRun.poolID ||
			c.sender != backRun.sender ||
			c.aToB == backRun.aToB ||
			c.priceImpactBps < minFrontRunImpactBps ||
			!c.before(backRun) ||
			backRun.checkpointSeq-c.checkpointSeq > a.cfg.MaxCheckpointDistance {
			continue
		}
		candidates = append(candidates, c)
	}
	// Closest front run first; earlier candidates are fallbacks when no
	// victim sits between the closest one and the back run.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[j].before(candidates[i])
	})

	for _, frontRun := range candidates {
		victim := a.findVictim(frontRun, backRun)
		if victim == nil {
			continue
		}

		profit := uint64(0)
		if backRun.amountOut > frontRun.amountIn {
			profit = backRun.amountOut - frontRun.amountIn
		}

		return &sandwichMatch{
			frontRun:      frontRun,
			victim:        victim,
			backRun:       backRun,
			attackerGain:  profit,
			victimLossBps: victimLossBps(frontRun, victim),
		}
	}
	return nil
}

// findVictim returns the earliest same-direction swap of another sender
// strictly between the front run and the back run.
func (a *SandwichAnalyzer) findVictim(frontRun, backRun *sandwichPattern) *sandwichPattern {
	var victim *sandwichPattern
	for i := range a.buffer {
		c := &a.buffer[i]
		if c.poolID != backRun.poolID ||
			c.sender == backRun.sender ||
			c.aToB != frontRun.aToB ||
			!frontRun.before(c) ||
			!c.before(backRun) {
			continue
		}
		if victim == nil || c.before(victim) {
			victim = c
		}
	}
	return victim
}

// victimLossBps quotes what the victim would have received against the
// reserves before the front-run and compares with the actual output.
func victimLossBps(frontRun, victim *sandwichPattern) uint64 {
	var reserveIn, reserveOut uint64
	if frontRun.aToB {
		if frontRun.reserveAAfter < frontRun.amountIn {
			return 0
		}
		reserveIn = frontRun.reserveAAfter - frontRun.amountIn
		reserveOut = frontRun.reserveBAfter + frontRun.amountOut
	} else {
		if frontRun.reserveBAfter < frontRun.amountIn {
			return 0
		}
		reserveIn = frontRun.reserveBAfter - frontRun.amountIn
		reserveOut = frontRun.reserveAAfter + frontRun.amountOut
	}

	expected := constantProductOut(victim.amountIn, reserveIn, reserveOut, swapFeeBps)
	if expected <= victim.amountOut {
		return 0
	}
	return mulDiv(expected-victim.amountOut, bpsDenominator, expected)
}

func (a *SandwichAnalyzer) buildEvent(tx *model.Transaction, m *sandwichMatch) (model.RiskEvent, bool) {
	score := 0
	switch {
	case m.attackerGain > 1000*tokenUnit:
		score += 40
	case m.attackerGain > 100*tokenUnit:
		score += 30
	case m.attackerGain > 0:
		score += 20
	}
	switch {
	case m.victimLossBps > 1000:
		score += 30
	case m.victimLossBps > 500:
		score += 20
	case m.victimLossBps > 100:
		score += 10
	}
	if m.frontRun.checkpointSeq == m.backRun.checkpointSeq {
		score += 10
	}
	spanMS := m.backRun.timestampMS - m.frontRun.timestampMS
	if spanMS < 5000 {
		score += 10
	}
	score = capScore(score)
	if score < 30 {
		return model.RiskEvent{}, false
	}

	var level model.Level
	switch {
	case score < 50:
		level = model.LevelMedium
	case score < 70:
		level = model.LevelHigh
	default:
		level = model.LevelCritical
	}

	description := fmt.Sprintf(
		"Sandwich attack: attacker profit %d, victim loss %.2f%%, time span %dms",
		m.attackerGain, float64(m.victimLossBps)/100.0, spanMS,
	)

	detail := map[string]any{
		"front_run_digest": m.frontRun.txDigest,
		"victim_digest":    m.victim.txDigest,
		"back_run_digest":  m.backRun.txDigest,
		"attacker":         m.backRun.sender,
		"victim":           m.victim.sender,
		"pool_id":          m.backRun.poolID,
		"attacker_profit":  m.attackerGain,
		"victim_loss_bps":  m.victimLossBps,
		"span_ms":          spanMS,
		"risk_score":       score,
	}

	return model.NewRiskEvent(model.KindSandwich, level, score, tx, description, detail), true
}
