package renderer

import (
	"strings"
	"testing"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portfolio(t *testing.T) *fundmate.Portfolio {
	t.Helper()
	reg := fundmate.DefaultRegistry(nil)
	aapl, err := fundmate.NewPosition(reg, "AAPL", fundmate.Q(100), fundmate.M(212.48, "USD"), fundmate.SourceResolved)
	require.NoError(t, err)
	call, err := fundmate.NewPosition(reg, "CALL XYZ EXP 09/19/2025 50.0", fundmate.Q(-2), fundmate.M(1.255, "USD"), fundmate.SourceStale)
	require.NoError(t, err)
	on := date.New(2025, 7, 18)
	return &fundmate.Portfolio{
		Date: on,
		Accounts: []*fundmate.AccountSnapshot{
			{Broker: "IB", Date: on, Positions: []*fundmate.Position{aapl, call}, Cash: fundmate.Cash{"USD": decimal.NewFromInt(1000)}},
			{Broker: "FUTU", Account: "HK-1", Date: on, Cash: fundmate.Cash{"HKD": decimal.NewFromInt(500)}},
		},
	}
}

func TestRenderSnapshot(t *testing.T) {
	md := RenderSnapshot(NewSnapshot(portfolio(t)))
	assert.NotContains(t, md, "error ")
	assert.Contains(t, md, "# Portfolio on 2025-07-18")
	assert.Contains(t, md, "2 accounts, 2 positions.")
	assert.Contains(t, md, "## IB\n")
	assert.Contains(t, md, "## FUTU/HK-1")
	assert.Contains(t, md, "| AAPL | 100 | 212.48 USD | resolved | $21,248.00 |")
	assert.Contains(t, md, "| -2 | 1.255 USD | stale ⚠ |")
	assert.Contains(t, md, "No positions.")
	assert.Contains(t, md, "## Total cash")
}

func TestRenderReport(t *testing.T) {
	on := date.New(2025, 7, 18)
	report := fundmate.UpdateReport{
		RunID: "run-1", BaseDate: on.Add(-1), TargetDate: on,
		Accounts: 1, Transactions: 2, Buys: 1, Sells: 1, Skipped: 1,
		CashDelta: fundmate.M(-1500, "USD"), Positions: 2, Resolved: 1, Stale: 1,
	}
	audit := []fundmate.AuditRecord{
		{Row: 1, TradeDate: on, Account: "IB", Side: fundmate.Buy, Instrument: "AAPL", Status: fundmate.StatusMatched, Quantity: fundmate.Q(10), Cash: fundmate.M(-1500, "USD")},
		{Row: 2, TradeDate: on, Account: "IB", Side: fundmate.Sell, Instrument: "MSFT", Status: fundmate.StatusSkipped, Quantity: fundmate.Q(0), Cash: fundmate.M(0, "USD"), Reason: "no position"},
	}
	prices := []fundmate.PriceAudit{
		{Key: "EQ:AAPL", Symbol: "AAPL", Previous: fundmate.M(200, "USD"), Price: fundmate.M(212.48, "USD"), Source: fundmate.SourceResolved, Holders: 1},
		{Key: "EQ:XYZ", Symbol: "XYZ", Previous: fundmate.M(1, "USD"), Price: fundmate.M(1, "USD"), Source: fundmate.SourceStale, Holders: 1, Error: "a|b"},
	}

	md := RenderReport(NewReport(report, audit, prices), ReportRenderOptions{})
	assert.NotContains(t, md, "error ")
	assert.Contains(t, md, "# Update 2025-07-17 → 2025-07-18")
	assert.Contains(t, md, "| Cash delta | -$1,500.00 |")
	assert.Contains(t, md, "| 2 | 2025-07-18 | IB | SELL | MSFT | 0 | - | skipped: no position |")
	assert.Contains(t, md, "| AAPL | 200 USD | 212.48 USD | resolved | 1 |")
	assert.Contains(t, md, `stale: a\|b`)

	md = RenderReport(NewReport(report, audit, prices), ReportRenderOptions{SkipTransactions: true, SkipPrices: true})
	assert.NotContains(t, md, "## Transactions")
	assert.NotContains(t, md, "## Prices")
	assert.Contains(t, md, "## Summary")
}

func TestHTML(t *testing.T) {
	html, err := HTML(RenderSnapshot(NewSnapshot(portfolio(t))))
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Portfolio on 2025-07-18</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, ">AAPL</td>")
}

func TestTerminal(t *testing.T) {
	out := Terminal("# Title\n\nsome *text*", 80)
	assert.True(t, strings.Contains(out, "Title"))
	assert.True(t, strings.Contains(out, "text"))
}
