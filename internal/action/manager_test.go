package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"riskscope/internal/metrics"
	"riskscope/internal/model"
)

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []model.RiskEvent
	err  error
	wait time.Duration
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(ctx context.Context, ev model.RiskEvent) error {
	if s.wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.wait):
		}
	}
	s.mu.Lock()
	s.got = append(s.got, ev)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func riskEvent(level model.Level) model.RiskEvent {
	tx := &model.Transaction{
		Digest:        "0xdigest",
		Sender:        "0xsender",
		CheckpointSeq: 42,
		TimestampMS:   1_700_000_000_000,
	}
	return model.NewRiskEvent(model.KindFlashLoan, level, 55, tx, "test event", map[string]any{"risk_score": 55})
}

func TestManagerFiltersByMinLevel(t *testing.T) {
	m := NewManager(time.Second, nil, nil)
	all := &recordingSink{name: "all"}
	highOnly := &recordingSink{name: "high"}
	m.Register(all, model.LevelLow)
	m.Register(highOnly, model.LevelHigh)

	m.Dispatch(context.Background(), riskEvent(model.LevelMedium))
	m.Dispatch(context.Background(), riskEvent(model.LevelCritical))

	if all.count() != 2 {
		t.Fatalf("low-threshold sink should see both events, got %d", all.count())
	}
	if highOnly.count() != 1 {
		t.Fatalf("high-threshold sink should see one event, got %d", highOnly.count())
	}
}

func TestManagerIsolatesSinkFailures(t *testing.T) {
	counters := metrics.New()
	m := NewManager(time.Second, nil, counters)
	failing := &recordingSink{name: "failing", err: errors.New("boom")}
	healthy := &recordingSink{name: "healthy"}
	m.Register(failing, model.LevelLow)
	m.Register(healthy, model.LevelLow)

	m.Dispatch(context.Background(), riskEvent(model.LevelHigh))

	if healthy.count() != 1 {
		t.Fatalf("healthy sink starved by failing sink: %d", healthy.count())
	}
	snap := counters.Snapshot()
	if snap.SinkErrors != 1 {
		t.Fatalf("sink error not counted: %+v", snap)
	}
	if snap.EventsDispatched != 1 {
		t.Fatalf("event must count as dispatched despite the failure: %+v", snap)
	}
}

func TestManagerEnforcesSinkDeadline(t *testing.T) {
	counters := metrics.New()
	m := NewManager(50*time.Millisecond, nil, counters)
	slow := &recordingSink{name: "slow", wait: 2 * time.Second}
	m.Register(slow, model.LevelLow)

	start := time.Now()
	m.Dispatch(context.Background(), riskEvent(model.LevelHigh))

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("dispatch not bounded by sink deadline: %v", elapsed)
	}
	if counters.Snapshot().SinkErrors != 1 {
		t.Fatalf("timeout not logged as sink failure: %+v", counters.Snapshot())
	}
}

func TestManagerNoSinks(t *testing.T) {
	m := NewManager(time.Second, nil, nil)
	// Dispatch with nothing registered must simply return.
	m.Dispatch(context.Background(), riskEvent(model.LevelCritical))
}
