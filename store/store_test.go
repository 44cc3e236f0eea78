package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reg = fundmate.DefaultRegistry(nil)

func pos(t *testing.T, text string, qty float64, price fundmate.Money) *fundmate.Position {
	t.Helper()
	p, err := fundmate.NewPosition(reg, text, fundmate.Q(qty), price, fundmate.SourceBroker)
	require.NoError(t, err)
	return p
}

func samplePortfolio(t *testing.T, on string) *fundmate.Portfolio {
	t.Helper()
	d := date.MustParse(on)
	return &fundmate.Portfolio{
		Date: d,
		Accounts: []*fundmate.AccountSnapshot{
			{
				Broker: "IB", Date: d,
				Positions: []*fundmate.Position{
					pos(t, "AAPL", 100, fundmate.M(200, "USD")),
					pos(t, "CALL XYZ EXP 09/19/2025 50.0", -2, fundmate.M(1.5, "USD")),
				},
				Cash: fundmate.Cash{"USD": decimal.NewFromInt(10000)},
			},
			{
				Broker: "FUTU", Account: "HK-1", Date: d,
				Positions: []*fundmate.Position{pos(t, "0700.HK", 200, fundmate.M(500, "HKD"))},
				Cash:      fundmate.Cash{"HKD": decimal.NewFromInt(1000), "USD": decimal.NewFromInt(5)},
			},
		},
	}
}

// stores runs a test against every backend.
func stores(t *testing.T, test func(t *testing.T, s Store)) {
	t.Run("file", func(t *testing.T) {
		s, err := NewFileStore(t.TempDir(), reg, zerolog.Nop())
		require.NoError(t, err)
		defer s.Close()
		test(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "fundmate.db"), reg, zerolog.Nop())
		require.NoError(t, err)
		defer s.Close()
		test(t, s)
	})
}

func TestStore_SaveLoad(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		want := samplePortfolio(t, "2025-07-18")
		require.NoError(t, s.Save(ctx, want))

		got, err := s.Load(ctx, want.Date)
		require.NoError(t, err)

		var a, b bytes.Buffer
		require.NoError(t, fundmate.EncodePortfolio(&a, want))
		require.NoError(t, fundmate.EncodePortfolio(&b, got))
		assert.JSONEq(t, a.String(), b.String())
		assert.Equal(t, fundmate.InstrumentKey("OPT:XYZ|2025-09-19|50|C"), got.Accounts[0].Positions[1].Key())

		_, err = s.Load(ctx, date.MustParse("2025-07-19"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_SaveReplaces(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := samplePortfolio(t, "2025-07-18")
		require.NoError(t, s.Save(ctx, p))

		p.Accounts = p.Accounts[:1]
		require.NoError(t, s.Save(ctx, p))

		got, err := s.Load(ctx, p.Date)
		require.NoError(t, err)
		assert.Len(t, got.Accounts, 1)

		dates, err := s.Dates(ctx)
		require.NoError(t, err)
		assert.Len(t, dates, 1)
	})
}

func TestStore_DatesAndBase(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := Latest(ctx, s)
		assert.ErrorIs(t, err, ErrNotFound)

		for _, on := range []string{"2025-07-21", "2025-06-30", "2025-07-18"} {
			require.NoError(t, s.Save(ctx, samplePortfolio(t, on)))
		}
		dates, err := s.Dates(ctx)
		require.NoError(t, err)
		assert.Equal(t, []date.Date{date.MustParse("2025-06-30"), date.MustParse("2025-07-18"), date.MustParse("2025-07-21")}, dates)

		latest, err := Latest(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, date.MustParse("2025-07-21"), latest)

		testCases := []struct {
			target string
			want   string
		}{
			{"2025-07-21", "2025-07-18"},
			{"2025-07-20", "2025-07-18"},
			{"2025-08-01", "2025-07-21"},
			{"2025-07-01", "2025-06-30"},
		}
		for _, tc := range testCases {
			got, err := LatestBefore(ctx, s, date.MustParse(tc.target))
			require.NoError(t, err, tc.target)
			assert.Equal(t, date.MustParse(tc.want), got, tc.target)
		}
		_, err = LatestBefore(ctx, s, date.MustParse("2025-06-30"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Audit(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		on := date.MustParse("2025-07-18")
		records := []fundmate.AuditRecord{
			{Row: 1, TradeDate: on, Account: "IB", Side: fundmate.Buy, Instrument: "AAPL", Key: "EQ:AAPL", Status: fundmate.StatusMatched, Quantity: fundmate.Q(10), Cash: fundmate.M(-2000, "USD")},
			{Row: 2, TradeDate: on, Account: "IB", Side: fundmate.Sell, Instrument: "MSFT", Status: fundmate.StatusSkipped, Quantity: fundmate.Q(0), Cash: fundmate.M(0, "USD"), Reason: "unmatched"},
		}
		require.NoError(t, s.SaveAudit(ctx, on, "run-1", records))

		got, err := s.LoadAudit(ctx, on)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, fundmate.StatusSkipped, got[1].Status)
		assert.Equal(t, "unmatched", got[1].Reason)
		assert.True(t, got[0].Quantity.Equal(fundmate.Q(10)))

		_, err = s.LoadAudit(ctx, on.Add(1))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestHolders(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, samplePortfolio(t, "2025-07-18")))
		p := samplePortfolio(t, "2025-07-21")
		p.Accounts[1].Positions = append(p.Accounts[1].Positions, pos(t, "AAPL", 5, fundmate.M(210, "USD")))
		require.NoError(t, s.Save(ctx, p))

		holders, err := Holders(ctx, s, "EQ:AAPL")
		require.NoError(t, err)
		assert.Len(t, holders, 2)
		assert.Equal(t, "100", holders[date.MustParse("2025-07-18")].String())
		assert.Equal(t, "105", holders[date.MustParse("2025-07-21")].String())

		holders, err = Holders(ctx, s, "EQ:MSFT")
		require.NoError(t, err)
		assert.Empty(t, holders)
	})
}

func TestOpen(t *testing.T) {
	s, err := Open("file", t.TempDir(), reg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", filepath.Join(t.TempDir(), "x.db"), reg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("parquet", t.TempDir(), reg, zerolog.Nop())
	assert.Error(t, err)
}

func TestReclassifyMMF(t *testing.T) {
	assert.True(t, IsMoneyMarketFund("CSOP USD Money Market Fund"))
	assert.True(t, IsMoneyMarketFund("ABC HKD MONEY MARKET FUND class A"))
	assert.False(t, IsMoneyMarketFund("Apple Inc"))
	assert.False(t, IsMoneyMarketFund("IB Money Market account"))
	assert.False(t, IsMoneyMarketFund(""))

	p := samplePortfolio(t, "2025-07-18")
	mmf := pos(t, "CSOP USD Money Market Fund", 10, fundmate.M(105.5, "USD"))
	p.Accounts[0].Positions = append(p.Accounts[0].Positions, mmf)

	n := ReclassifyMMF(p, zerolog.Nop())
	assert.Equal(t, 1, n)
	assert.Len(t, p.Accounts[0].Positions, 2)
	assert.Equal(t, "11055", p.Accounts[0].Cash.Get("USD").Decimal().String())
	assert.Equal(t, 0, ReclassifyMMF(p, zerolog.Nop()))
}

type fixedRate map[string]decimal.Decimal

func (f fixedRate) Convert(ctx context.Context, m fundmate.Money, to string, on date.Date) (fundmate.Money, error) {
	return m.In(to, f[m.Currency()]), nil
}

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	p := samplePortfolio(t, "2025-07-18")
	fx := fixedRate{"HKD": decimal.RequireFromString("0.128")}

	var buf bytes.Buffer
	require.NoError(t, ExportPositions(ctx, &buf, p, fx))
	records := readCSV(t, buf.Bytes())
	require.Len(t, records, 4)
	assert.Equal(t, "value_usd", records[0][11])
	assert.Equal(t, []string{"20000.00", "20000.00"}, records[1][10:])
	assert.Equal(t, []string{"-300.00", "-300.00"}, records[2][10:])
	assert.Equal(t, []string{"100000.00", "12800.00"}, records[3][10:])

	buf.Reset()
	require.NoError(t, ExportCash(ctx, &buf, p, fx))
	records = readCSV(t, buf.Bytes())
	assert.Equal(t, []string{"2025-07-18", "FUTU", "HK-1", "TOTAL", "", "133.00"}, records[len(records)-1])

	buf.Reset()
	require.NoError(t, ExportCash(ctx, &buf, p, nil))
	records = readCSV(t, buf.Bytes())
	for _, r := range records {
		assert.False(t, r[1] == "FUTU" && r[3] == "TOTAL", "no total without rates")
	}
}
