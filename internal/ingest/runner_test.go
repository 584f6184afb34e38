package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"riskscope/internal/action"
	"riskscope/internal/decode"
	"riskscope/internal/detect"
	"riskscope/internal/model"
)

type captureSink struct {
	mu     sync.Mutex
	events []model.RiskEvent
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Handle(_ context.Context, ev model.RiskEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) all() []model.RiskEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RiskEvent(nil), s.events...)
}

const targetPackage = "0xd001"

func flashLoanTxLine(digest string, seq int64) string {
	return fmt.Sprintf(`{"digest": %q, "checkpoint_seq": %d, "timestamp_ms": 1700000000000, "sender": "0xattacker", "events": [{"type_name": "0xd001::flash_loan_pool::FlashLoanTaken", "package_id": "0xd001", "event_index": 0, "payload": {"pool_id":"P1","borrower":"0xattacker","amount":"10000000000000","fee":"9000000000"}},{"type_name": "0xd001::simple_dex::SwapExecuted<0x2::c::A, 0x2::c::B>", "package_id": "0xd001", "event_index": 1, "payload": {"pool_id":"P1","sender":"0xattacker","token_in_is_a":true,"amount_in":"40000000000","amount_out":"30000000000","fee_amount":"120000000","reserve_a_after":"140000000000","reserve_b_after":"70000000000","price_impact_bps":2500}},{"type_name": "0xd001::simple_dex::SwapExecuted<0x2::c::A, 0x2::c::B>", "package_id": "0xd001", "event_index": 2, "payload": {"pool_id":"P2","sender":"0xattacker","token_in_is_a":false,"amount_in":"30000000000","amount_out":"39000000000","fee_amount":"90000000","reserve_a_after":"61000000000","reserve_b_after":"130000000000","price_impact_bps":2400}},{"type_name": "0xd001::flash_loan_pool::FlashLoanRepaid", "package_id": "0xd001", "event_index": 3, "payload": {"pool_id":"P1","borrower":"0xattacker","amount":"10000000000000","fee":"9000000000"}}]}`, digest, seq)
}

func newTestRunner(t *testing.T, checkpointPath string, sink action.Sink) *Runner {
	t.Helper()
	decoder := decode.NewDecoder(false, nil, nil)
	pipeline := detect.NewPipeline(targetPackage, []detect.Analyzer{
		detect.NewFlashLoanAnalyzer(detect.DefaultFlashLoanConfig(), nil),
	}, nil, nil)
	manager := action.NewManager(time.Second, nil, nil)
	manager.Register(sink, model.LevelLow)
	checkpoint := NewCheckpointStore(checkpointPath, checkpointPath != "")
	return NewRunner(decoder, pipeline, manager, checkpoint, nil)
}

func TestRunnerStreamsAndDispatches(t *testing.T) {
	sink := &captureSink{}
	runner := newTestRunner(t, "", sink)

	input := strings.Join([]string{
		flashLoanTxLine("0xtx1", 100),
		"",
		flashLoanTxLine("0xtx2", 101),
	}, "\n")

	if err := runner.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("run: %v", err)
	}

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("expected two dispatched events, got %d", len(events))
	}
	if events[0].TxDigest != "0xtx1" || events[1].TxDigest != "0xtx2" {
		t.Fatalf("dispatch order mismatch: %s, %s", events[0].TxDigest, events[1].TxDigest)
	}
	if events[0].Kind != model.KindFlashLoan {
		t.Fatalf("kind mismatch: %s", events[0].Kind)
	}
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")

	first := &captureSink{}
	runner := newTestRunner(t, checkpointPath, first)
	input := flashLoanTxLine("0xtx1", 100) + "\n" + flashLoanTxLine("0xtx2", 101) + "\n"
	if err := runner.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.all()) != 2 {
		t.Fatalf("first run dispatched %d events", len(first.all()))
	}

	// Re-running the same stream resumes past both checkpoints.
	second := &captureSink{}
	runner = newTestRunner(t, checkpointPath, second)
	if err := runner.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.all()) != 0 {
		t.Fatalf("resumed run must skip processed checkpoints, got %d events", len(second.all()))
	}
}

func TestRunnerSkipsMalformedLines(t *testing.T) {
	sink := &captureSink{}
	runner := newTestRunner(t, "", sink)

	input := "not json\n" + flashLoanTxLine("0xtx1", 100) + "\n"
	if err := runner.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("expected one event after skipping garbage, got %d", len(sink.all()))
	}
}
