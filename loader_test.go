package fundmate

import (
	"errors"
	"testing"
)

var tcHeader = []string{"Trade Date", "Stock Code", "BUY/SELL", "Quantity", "Avg. Price", "Amount (USD)", "Broker", "Currency", "Market/Exchange"}

func TestLoadTransactions(t *testing.T) {
	rows := []RawRow{
		NewRawRow(1, tcHeader, []string{"2025-07-19", "AAPL US Equity", "Sell", "-20", "210.5", "4,210.00", "IB", "usd", "NASDAQ"}),
		NewRawRow(2, tcHeader, []string{"", "", "", "", "", "", "", "", ""}),
		NewRawRow(3, tcHeader, []string{"07/18/2025", "CALL XYZ EXP 09/19/2025 50.0", "BOT", "2", "", "(1,200.00)", "", "", ""}),
	}
	txs, err := LoadTransactions(rows, LoadOptions{DefaultBroker: "FUTU"})
	if err != nil {
		t.Fatalf("LoadTransactions() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("LoadTransactions() returned %d transactions, want 2", len(txs))
	}

	sell := txs[0]
	if sell.Row != 1 || sell.TradeDate != d("2025-07-19") || sell.Side != Sell {
		t.Errorf("txs[0] = row %d, %s, %s, want row 1, 2025-07-19, SELL", sell.Row, sell.TradeDate, sell.Side)
	}
	if sell.Instrument != "AAPL US" {
		t.Errorf("txs[0].Instrument = %q, want %q", sell.Instrument, "AAPL US")
	}
	if !sell.Quantity.Equal(Q(20)) {
		t.Errorf("txs[0].Quantity = %v, want 20", sell.Quantity)
	}
	if !sell.AmountUSD.Equal(USD(4210)) {
		t.Errorf("txs[0].AmountUSD = %v, want 4210", sell.AmountUSD.Decimal())
	}
	if sell.Currency != "USD" || sell.Market != "NASDAQ" {
		t.Errorf("txs[0] currency, market = %q, %q, want USD, NASDAQ", sell.Currency, sell.Market)
	}

	buy := txs[1]
	if buy.Broker != "FUTU" {
		t.Errorf("txs[1].Broker = %q, want the default broker FUTU", buy.Broker)
	}
	if buy.Side != Buy || buy.TradeDate != d("2025-07-18") {
		t.Errorf("txs[1] = %s on %s, want BUY on 2025-07-18", buy.Side, buy.TradeDate)
	}
	if !buy.AmountUSD.Equal(USD(-1200)) {
		t.Errorf("txs[1].AmountUSD = %v, want -1200", buy.AmountUSD.Decimal())
	}
	if !buy.AvgPrice.IsZero() {
		t.Errorf("txs[1].AvgPrice = %v, want 0", buy.AvgPrice.Decimal())
	}
}

func TestLoadTransactions_Window(t *testing.T) {
	var rows []RawRow
	for i, on := range []string{"2025-07-17", "2025-07-18", "2025-07-19", "2025-07-20"} {
		rows = append(rows, NewRawRow(i+1, tcHeader, []string{on, "AAPL", "BUY", "1", "1", "-1", "IB", "USD", ""}))
	}
	txs, err := LoadTransactions(rows, LoadOptions{After: d("2025-07-17"), Until: d("2025-07-19")})
	if err != nil {
		t.Fatalf("LoadTransactions() error = %v", err)
	}
	if len(txs) != 2 || txs[0].Row != 2 || txs[1].Row != 3 {
		t.Errorf("LoadTransactions() kept %d rows, want rows 2 and 3 in (after, until]", len(txs))
	}
}

func TestLoadTransactions_Errors(t *testing.T) {
	rows := []RawRow{
		NewRawRow(1, tcHeader, []string{"2025-13-45", "AAPL", "BUY", "1", "", "-1", "IB", "", ""}),
		NewRawRow(2, tcHeader, []string{"2025-07-18", "AAPL", "HOLD", "1", "", "-1", "IB", "", ""}),
		NewRawRow(3, tcHeader, []string{"2025-07-18", "AAPL", "BUY", "0", "", "-1", "IB", "", ""}),
		NewRawRow(4, tcHeader, []string{"2025-07-18", "AAPL", "BUY", "1", "", "", "IB", "", ""}),
		NewRawRow(5, tcHeader, []string{"2025-07-18", "AAPL", "BUY", "1", "", "-1", "IB", "", ""}),
	}
	txs, err := LoadTransactions(rows, LoadOptions{})
	if err == nil {
		t.Fatalf("LoadTransactions() = %d transactions, want an error", len(txs))
	}
	if txs != nil {
		t.Errorf("LoadTransactions() returned transactions along with an error")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("LoadTransactions() error does not wrap ErrValidation: %v", err)
	}

	want := map[int]string{1: ColTradeDate, 2: ColSide, 3: ColQuantity, 4: ColAmountUSD}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("LoadTransactions() error is not a joined error: %T", err)
	}
	errs := joined.Unwrap()
	if len(errs) != len(want) {
		t.Fatalf("LoadTransactions() reported %d errors, want %d: %v", len(errs), len(want), err)
	}
	for _, e := range errs {
		var verr *ValidationError
		if !errors.As(e, &verr) {
			t.Errorf("error %v is not a *ValidationError", e)
			continue
		}
		if want[verr.Row] != verr.Field {
			t.Errorf("row %d reported on %q, want %q", verr.Row, verr.Field, want[verr.Row])
		}
	}
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{
		"buy": Buy, "BOT": Buy, "Sell": Sell, "SLD": Sell, "Sell Short": Sell,
		"Buy to Cover": BuyCover, "BUYCOVER": BuyCover, "bc": BuyCover,
	} {
		got, err := ParseSide(in)
		if err != nil || got != want {
			t.Errorf("ParseSide(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseSide("HOLD"); err == nil {
		t.Errorf("ParseSide(HOLD) error = nil, want an error")
	}
}
