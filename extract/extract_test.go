package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const answer = `{
  "Cash": {"USD": 12500.5, "HKD": "1,000.25", "CNY": null, "Total": 99999, "Total_type": "HKD"},
  "Positions": [
    {"StockCode": "AAPL", "Description": "Apple Inc", "Holding": 100, "Price": 212.48, "PriceCurrency": "USD"},
    {"StockCode": "XYZ", "Description": "CALL XYZ EXP 09/19/2025 50.0", "Holding": -2, "Price": 1.5, "PriceCurrency": "usd"},
    {"StockCode": "700", "Holding": "200", "Price": null, "PriceCurrency": "HKD"},
    {"StockCode": "MSFT", "Holding": 0, "Price": 500}
  ]
}`

func TestParseResponse(t *testing.T) {
	st, err := ParseResponse(answer)
	require.NoError(t, err)
	assert.Len(t, st.Cash, 2)
	assert.Equal(t, "12500.5", st.Cash["USD"].String())
	assert.Equal(t, "1000.25", st.Cash["HKD"].String())
	require.Len(t, st.Positions, 4)
	assert.Equal(t, "USD", st.Positions[1].PriceCurrency)
	assert.Equal(t, "200", st.Positions[2].Holding.String())
	assert.True(t, st.Positions[2].Price.IsZero())
}

func TestParseResponse_Fenced(t *testing.T) {
	st, err := ParseResponse("Here is the data:\n```json\n" + answer + "\n```\n")
	require.NoError(t, err)
	assert.Len(t, st.Positions, 4)
}

func TestParseResponse_Errors(t *testing.T) {
	_, err := ParseResponse("I could not read the statement.")
	assert.Error(t, err)

	_, err = ParseResponse(`{"Cash": {"USD": "a lot"}}`)
	assert.Error(t, err)

	_, err = ParseResponse(`{"Positions": [{"StockCode": "AAPL", "Holding": true}]}`)
	assert.Error(t, err)
}

func TestStatement_Snapshot(t *testing.T) {
	st, err := ParseResponse(answer)
	require.NoError(t, err)
	on := date.New(2025, 7, 18)

	a, err := st.Snapshot(fundmate.DefaultRegistry(nil), "IB", "U123", on)
	require.NoError(t, err)
	assert.Equal(t, "IB/U123", a.ID())
	assert.Equal(t, on, a.Date)
	require.Len(t, a.Positions, 3, "zero holdings are dropped")

	assert.Equal(t, fundmate.InstrumentKey("EQ:AAPL"), a.Positions[0].Key())
	assert.Equal(t, fundmate.InstrumentKey("OPT:XYZ|2025-09-19|50|C"), a.Positions[1].Key())
	assert.Equal(t, "-2", a.Positions[1].Quantity.String())
	assert.Equal(t, "HKD", a.Positions[2].Price.Currency())
	assert.Equal(t, fundmate.SourceBroker, a.Positions[2].PriceSource)
}

// fakeModel answers a fixed text and records the prompt.
type fakeModel struct {
	answer string
	parts  []*genai.Part
}

func (m *fakeModel) Generate(ctx context.Context, parts ...*genai.Part) (string, error) {
	m.parts = parts
	return m.answer, nil
}

func TestExtractor_Extract(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "statement.pdf")
	png := filepath.Join(dir, "page2.png")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0644))
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG"), 0644))

	model := &fakeModel{answer: answer}
	e := &Extractor{
		Model:    model,
		Registry: fundmate.DefaultRegistry(nil),
		Hints:    map[string]string{"IB": "Read the 'Cash Report' section."},
		Log:      zerolog.Nop(),
	}
	a, err := e.Extract(context.Background(), "IB", "", date.New(2025, 7, 18), pdf, png)
	require.NoError(t, err)
	assert.Len(t, a.Positions, 3)

	require.Len(t, model.parts, 3)
	assert.Contains(t, model.parts[0].Text, "Cash Report")
	assert.Equal(t, "application/pdf", model.parts[1].InlineData.MIMEType)
	assert.Equal(t, "image/png", model.parts[2].InlineData.MIMEType)

	_, err = e.Extract(context.Background(), "IB", "", date.New(2025, 7, 18), filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)

	_, err = e.Extract(context.Background(), "IB", "", date.New(2025, 7, 18))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	on := date.New(2025, 7, 18)
	p := &fundmate.Portfolio{Date: on, Accounts: []*fundmate.AccountSnapshot{
		{Broker: "IB", Date: on},
		{Broker: "TIGER", Date: on},
	}}

	futu := &fundmate.AccountSnapshot{Broker: "FUTU", Account: "HK-1"}
	Merge(p, futu)
	require.Len(t, p.Accounts, 3)
	assert.Equal(t, "FUTU", p.Accounts[0].Broker, "accounts stay sorted")
	assert.Equal(t, on, futu.Date)

	ib := &fundmate.AccountSnapshot{Broker: "ib", Cash: fundmate.Cash{"USD": decimal.NewFromInt(5)}}
	Merge(p, ib)
	require.Len(t, p.Accounts, 3)
	assert.Same(t, ib, p.Accounts[1])
}
