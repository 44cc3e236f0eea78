package fundmate

import (
	"testing"

	"github.com/etnz/fundmate/date"
)

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// HKD is a helper for test to create hkd money from const
func HKD(v float64) Money { return M(v, "HKD") }

// d is a helper for test to create dates from "2006-01-02" strings
func d(s string) date.Date { return date.MustParse(s) }

// testRegistry is the default registry with a fixed HK resolver.
func testRegistry() *Registry {
	return DefaultRegistry(func(code string) (string, error) {
		if code == "0700" {
			return "TCH", nil
		}
		return "", ErrPriceNotFound
	})
}

// position builds a classified position or fails the test.
func position(t *testing.T, text string, qty float64, price Money) *Position {
	t.Helper()
	p, err := NewPosition(testRegistry(), text, Q(qty), price, SourceBroker)
	if err != nil {
		t.Fatalf("NewPosition(%q) error = %v", text, err)
	}
	return p
}

// account builds an account snapshot at IB.
func account(on date.Date, cash float64, positions ...*Position) *AccountSnapshot {
	return &AccountSnapshot{Broker: "IB", Date: on, Positions: positions, Cash: Cash{"USD": newDecimal(cash)}}
}

// trade builds a valid transaction at IB.
func trade(row int, on string, side Side, text string, qty, amount float64) Transaction {
	return Transaction{
		Row:        row,
		TradeDate:  d(on),
		Instrument: text,
		Side:       side,
		Quantity:   Q(qty),
		AvgPrice:   USD(0),
		AmountUSD:  USD(amount),
		Broker:     "IB",
		Currency:   "USD",
	}
}

func testOptions() ApplyOptions {
	return ApplyOptions{Matcher: NewMatcher(testRegistry(), AliasTable{})}
}
