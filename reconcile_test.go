package fundmate

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func testReconciler(prices PriceService) *Reconciler {
	r := &Reconciler{Matcher: NewMatcher(testRegistry(), AliasTable{}), Logger: zerolog.Nop()}
	if prices != nil {
		r.Prices = &PriceRefresher{Service: prices, Logger: zerolog.Nop()}
	}
	return r
}

func TestReconciler_Run(t *testing.T) {
	ib := account(d("2025-07-17"), 1000, position(t, "AAPL", 100, USD(200)), position(t, "XYZ 19SEP25 50 C", 10, USD(1.5)))
	futu := account(d("2025-07-17"), 0, position(t, "AAPL", 5, USD(200)))
	futu.Broker = "FUTU"
	base := &Portfolio{Date: d("2025-07-17"), Accounts: []*AccountSnapshot{ib, futu}}

	sellFutu := trade(3, "2025-07-18", Sell, "AAPL", 5, 1050)
	sellFutu.Broker = "futu"
	txs := []Transaction{
		trade(1, "2025-07-18", Buy, "AAPL", 50, -10000),
		trade(2, "2025-07-18", Sell, "CALL XYZ EXP 09/19/2025 50.0", 10, 1800),
		sellFutu,
		trade(4, "2025-07-18", Buy, "MSFT", 2, -800),
	}
	prices := &fakePrices{prices: map[string]Money{"AAPL": USD(210)}}
	res, err := testReconciler(prices).Run(context.Background(), base, txs, d("2025-07-18"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.RunID == "" || res.Report.RunID != res.RunID {
		t.Errorf("Run() run id = %q, report %q", res.RunID, res.Report.RunID)
	}
	if res.Snapshot.Date != d("2025-07-18") {
		t.Errorf("snapshot date = %s, want 2025-07-18", res.Snapshot.Date)
	}
	if len(res.Snapshot.Accounts) != 2 || res.Snapshot.Accounts[0].Broker != "IB" || res.Snapshot.Accounts[1].Broker != "FUTU" {
		t.Fatalf("accounts = %v, want IB then FUTU", res.Snapshot.Accounts)
	}
	if n := len(res.Snapshot.Accounts[1].Positions); n != 0 {
		t.Errorf("FUTU has %d positions, want 0", n)
	}
	if prices.calls["AAPL"] != 1 {
		t.Errorf("AAPL priced %d times, want once", prices.calls["AAPL"])
	}

	rows := []int{}
	for _, rec := range res.Audit {
		rows = append(rows, rec.Row)
	}
	if len(rows) != 4 || rows[0] != 1 || rows[3] != 4 {
		t.Errorf("audit rows = %v, want 1 to 4", rows)
	}
	if res.Audit[0].PriceSource != SourceResolved {
		t.Errorf("AAPL audit price source = %q, want resolved", res.Audit[0].PriceSource)
	}
	if res.Audit[3].PriceSource != SourceStale {
		t.Errorf("MSFT audit price source = %q, want stale", res.Audit[3].PriceSource)
	}

	r := res.Report
	if r.Buys != 2 || r.Sells != 2 || r.Opened != 1 || r.Closed != 2 || r.Skipped != 0 {
		t.Errorf("report = %+v, want 2 buys, 2 sells, 1 opened, 2 closed", r)
	}
	if !r.CashDelta.Equal(USD(-7950)) {
		t.Errorf("report cash delta = %v, want -7950", r.CashDelta.Decimal())
	}
	if r.Positions != 2 || r.Resolved != 1 || r.Stale != 1 {
		t.Errorf("report = %+v, want 2 positions, 1 resolved, 1 stale", r)
	}
}

func TestReconciler_RunFailsAtomically(t *testing.T) {
	ib := account(d("2025-07-17"), 0, position(t, "AAPL", 100, USD(200)))
	base := &Portfolio{Date: d("2025-07-17"), Accounts: []*AccountSnapshot{ib}}
	txs := []Transaction{
		trade(1, "2025-07-18", Buy, "AAPL", 50, -10000),
		trade(2, "2025-07-18", Sell, "MSFT", 20, 8000),
	}
	res, err := testReconciler(nil).Run(context.Background(), base, txs, d("2025-07-18"))
	if !errors.Is(err, ErrUnmatchedInstrument) {
		t.Fatalf("Run() error = %v, want ErrUnmatchedInstrument", err)
	}
	if res != nil {
		t.Errorf("Run() returned a result along with the error")
	}

	r := testReconciler(nil)
	r.Policy = SkipUnmatched
	res, err = r.Run(context.Background(), base, txs, d("2025-07-18"))
	if err != nil {
		t.Fatalf("Run(skip) error = %v", err)
	}
	if res.Report.Skipped != 1 || !res.Report.CashDelta.Equal(USD(-10000)) {
		t.Errorf("report = %+v, want 1 skipped and -10000 cash", res.Report)
	}
}

func TestReconciler_TargetBeforeBase(t *testing.T) {
	base := &Portfolio{Date: d("2025-07-17")}
	if _, err := testReconciler(nil).Run(context.Background(), base, nil, d("2025-07-01")); err == nil {
		t.Errorf("Run() with a target before the base date error = nil")
	}
}
