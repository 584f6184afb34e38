package detect

import (
	"riskscope/internal/model"
)

// Shared builders for analyzer scenario tests.

const testPackage = "0xd001"

func testTx(digest, sender string, checkpoint, timestampMS int64, events ...model.DecodedEvent) *model.Transaction {
	for i, ev := range events {
		switch e := ev.(type) {
		case model.SwapExecuted:
			e.PackageID, e.EventIndex = testPackage, i
			events[i] = e
		case model.FlashLoanTaken:
			e.PackageID, e.EventIndex = testPackage, i
			events[i] = e
		case model.FlashLoanRepaid:
			e.PackageID, e.EventIndex = testPackage, i
			events[i] = e
		case model.TWAPUpdated:
			e.PackageID, e.EventIndex = testPackage, i
			events[i] = e
		case model.PriceDeviationDetected:
			e.PackageID, e.EventIndex = testPackage, i
			events[i] = e
		case model.BorrowEvent:
			e.PackageID, e.EventIndex = testPackage, i
			events[i] = e
		}
	}
	return &model.Transaction{
		Digest:        digest,
		Sender:        sender,
		CheckpointSeq: checkpoint,
		TimestampMS:   timestampMS,
		Events:        events,
		Packages:      map[string]struct{}{testPackage: {}},
	}
}

func swap(pool, sender string, aToB bool, amountIn, amountOut, reserveA, reserveB, impactBps uint64) model.SwapExecuted {
	return model.SwapExecuted{
		PoolID:         pool,
		Sender:         sender,
		TokenInIsA:     aToB,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		ReserveAAfter:  reserveA,
		ReserveBAfter:  reserveB,
		PriceImpactBps: impactBps,
	}
}

func detailKeys(detail map[string]any) map[string]struct{} {
	keys := make(map[string]struct{}, len(detail))
	for k := range detail {
		keys[k] = struct{}{}
	}
	return keys
}

func sameKeys(got map[string]struct{}, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for _, k := range want {
		if _, ok := got[k]; !ok {
			return false
		}
	}
	return true
}
