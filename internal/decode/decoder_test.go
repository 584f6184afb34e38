package decode

import (
	"encoding/json"
	"testing"

	"riskscope/internal/metrics"
	"riskscope/internal/model"
)

func rawSwap(pkg string, index int, payload string) model.RawEvent {
	return model.RawEvent{
		TypeName:   pkg + "::simple_dex::SwapExecuted<0x2::coins::USDC, 0x2::coins::SUI>",
		PackageID:  pkg,
		EventIndex: index,
		Payload:    json.RawMessage(payload),
	}
}

const swapPayload = `{
	"pool_id": "0xp1",
	"sender": "0xtrader",
	"token_in_is_a": true,
	"amount_in": "100000000",
	"amount_out": 99700000,
	"fee_amount": "300000",
	"reserve_a_after": "10000000000",
	"reserve_b_after": "10000000000",
	"price_impact_bps": 10
}`

func TestDecodeSwapWithTokenParams(t *testing.T) {
	d := NewDecoder(false, nil, nil)

	tx, err := d.DecodeTransaction(model.RawTransaction{
		Digest:        "0xtx",
		CheckpointSeq: 7,
		TimestampMS:   1_700_000_000_000,
		Sender:        "0xtrader",
		Events:        []model.RawEvent{rawSwap("0xd001", 0, swapPayload)},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tx.Events) != 1 {
		t.Fatalf("expected one decoded event, got %d", len(tx.Events))
	}

	swap, ok := tx.Events[0].(model.SwapExecuted)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", tx.Events[0])
	}
	if swap.AmountIn != 100_000_000 || swap.AmountOut != 99_700_000 {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.TokenInType != "0x2::coins::USDC" || swap.TokenOutType != "0x2::coins::SUI" {
		t.Fatalf("token params mismatch: %q %q", swap.TokenInType, swap.TokenOutType)
	}
	if swap.EventIndex != 0 || swap.PackageID != "0xd001" {
		t.Fatalf("meta mismatch: %+v", swap.EventMeta)
	}
	if !tx.TouchesPackage("0xd001") {
		t.Fatalf("package set mismatch: %+v", tx.Packages)
	}
}

func TestDecodeMatchesBySuffixAcrossUpgrades(t *testing.T) {
	d := NewDecoder(false, nil, nil)

	// A package upgrade changes the leading address but not the
	// module::Type suffix.
	ev := rawSwap("0xUPGRADED", 0, swapPayload)
	if !d.CanDecode(ev.TypeName) {
		t.Fatalf("suffix matching failed for %s", ev.TypeName)
	}
}

func TestDecodeDropsUnknownEvents(t *testing.T) {
	d := NewDecoder(false, nil, nil)

	tx, err := d.DecodeTransaction(model.RawTransaction{
		Digest: "0xtx",
		Events: []model.RawEvent{
			{
				TypeName:   "0xd001::simple_dex::PoolCreated",
				PackageID:  "0xd001",
				EventIndex: 0,
				Payload:    json.RawMessage(`{"pool_id": "0xp1"}`),
			},
		},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tx.Events) != 0 {
		t.Fatalf("unknown events must be dropped, got %d", len(tx.Events))
	}
	if !tx.TouchesPackage("0xd001") {
		t.Fatalf("dropped events must still mark their package")
	}
}

func TestDecodeMissingFieldDropsEvent(t *testing.T) {
	counters := metrics.New()
	d := NewDecoder(false, nil, counters)

	tx, err := d.DecodeTransaction(model.RawTransaction{
		Digest: "0xtx",
		Events: []model.RawEvent{
			rawSwap("0xd001", 0, `{"pool_id": "0xp1"}`),
			rawSwap("0xd001", 1, swapPayload),
		},
	})
	if err != nil {
		t.Fatalf("non-strict decode must not error: %v", err)
	}
	if len(tx.Events) != 1 {
		t.Fatalf("expected only the well-formed event, got %d", len(tx.Events))
	}
	if counters.Snapshot().DecodeErrors != 1 {
		t.Fatalf("decode error not counted: %+v", counters.Snapshot())
	}
}

func TestDecodeStrictModeSurfacesError(t *testing.T) {
	d := NewDecoder(true, nil, nil)

	tx, err := d.DecodeTransaction(model.RawTransaction{
		Digest: "0xtx",
		Events: []model.RawEvent{
			rawSwap("0xd001", 0, `{"pool_id": "0xp1"}`),
			rawSwap("0xd001", 1, swapPayload),
		},
	})
	if err == nil {
		t.Fatalf("strict mode must surface the decode error")
	}
	if len(tx.Events) != 1 {
		t.Fatalf("well-formed events survive strict failures, got %d", len(tx.Events))
	}
}

func TestDecodeFlashLoanAndBorrow(t *testing.T) {
	d := NewDecoder(false, nil, nil)

	tx, err := d.DecodeTransaction(model.RawTransaction{
		Digest: "0xtx",
		Events: []model.RawEvent{
			{
				TypeName:   "0xd001::flash_loan_pool::FlashLoanTaken",
				PackageID:  "0xd001",
				EventIndex: 0,
				Payload:    json.RawMessage(`{"pool_id":"0xp1","borrower":"0xb","amount":"10000000000000","fee":"9000000000"}`),
			},
			{
				TypeName:   "0xd001::compound_market::BorrowEvent",
				PackageID:  "0xd001",
				EventIndex: 1,
				Payload: json.RawMessage(`{
					"market_id":"0xm1","borrower":"0xb","position_id":"0xpos",
					"borrow_amount":"3000000000","collateral_value":"4000000000",
					"oracle_price":"4000000000000","health_factor_bps":13333,
					"timestamp_ms":1700000000000
				}`),
			},
		},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	loans := tx.FlashLoansTaken()
	if len(loans) != 1 || loans[0].Amount != 10_000_000_000_000 {
		t.Fatalf("flash loan mismatch: %+v", loans)
	}
	borrows := tx.Borrows()
	if len(borrows) != 1 || borrows[0].HealthFactorBps != 13_333 {
		t.Fatalf("borrow mismatch: %+v", borrows)
	}
	if borrows[0].EventIndex != 1 {
		t.Fatalf("event index mismatch: %d", borrows[0].EventIndex)
	}
}

func TestSplitTypeParams(t *testing.T) {
	base, params := splitTypeParams("0x1::simple_dex::SwapExecuted<0x2::a::A, 0x2::b::Wrap<0x2::c::C>>")
	if base != "0x1::simple_dex::SwapExecuted" {
		t.Fatalf("base mismatch: %s", base)
	}
	if len(params) != 2 || params[0] != "0x2::a::A" || params[1] != "0x2::b::Wrap<0x2::c::C>" {
		t.Fatalf("params mismatch: %v", params)
	}

	base, params = splitTypeParams("0x1::m::Plain")
	if base != "0x1::m::Plain" || params != nil {
		t.Fatalf("plain type mishandled: %s %v", base, params)
	}
}
