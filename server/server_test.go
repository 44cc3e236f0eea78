package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reg = fundmate.DefaultRegistry(nil)

func snapshot(t *testing.T, on date.Date) *fundmate.Portfolio {
	t.Helper()
	aapl, err := fundmate.NewPosition(reg, "AAPL", fundmate.Q(100), fundmate.M(212.48, "USD"), fundmate.SourceResolved)
	require.NoError(t, err)
	call, err := fundmate.NewPosition(reg, "CALL XYZ EXP 09/19/2025 50.0", fundmate.Q(-2), fundmate.M(1.5, "USD"), fundmate.SourceStale)
	require.NoError(t, err)
	return &fundmate.Portfolio{
		Date: on,
		Accounts: []*fundmate.AccountSnapshot{
			{Broker: "IB", Date: on, Positions: []*fundmate.Position{aapl, call}, Cash: fundmate.Cash{"USD": decimal.NewFromInt(1000)}},
			{Broker: "FUTU", Account: "HK-1", Date: on, Cash: fundmate.Cash{"HKD": decimal.NewFromInt(500)}},
		},
	}
}

type fixedRate map[string]decimal.Decimal

func (f fixedRate) Convert(ctx context.Context, m fundmate.Money, to string, on date.Date) (fundmate.Money, error) {
	if m.Currency() == to {
		return m, nil
	}
	rate, ok := f[m.Currency()]
	if !ok {
		return fundmate.Money{}, errors.New("no rate")
	}
	return m.In(to, rate), nil
}

func newTestServer(t *testing.T, fx store.Converter) (*httptest.Server, store.Store) {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), reg, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()
	for _, on := range []date.Date{date.New(2025, 7, 17), date.New(2025, 7, 18)} {
		require.NoError(t, s.Save(ctx, snapshot(t, on)))
	}
	records := []fundmate.AuditRecord{
		{Row: 1, TradeDate: date.New(2025, 7, 18), Account: "IB", Side: fundmate.Buy, Instrument: "AAPL", Status: fundmate.StatusMatched, Quantity: fundmate.Q(10), Cash: fundmate.M(-2000, "USD")},
	}
	require.NoError(t, s.SaveAudit(ctx, date.New(2025, 7, 18), "run-1", records))

	srv := New(Config{Store: s, FX: fx, CORSOrigins: []string{"https://dash.example.com"}, Log: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b), resp.Header
}

func TestAPI_Snapshots(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, body, header := get(t, ts.URL+"/api/snapshots")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.JSONEq(t, `["2025-07-17", "2025-07-18"]`, body)

	status, body, _ = get(t, ts.URL+"/api/snapshots/2025-07-18")
	assert.Equal(t, http.StatusOK, status)
	p, err := fundmate.DecodePortfolio(strings.NewReader(body), reg)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Positions())

	status, body, _ = get(t, ts.URL+"/api/snapshots/latest")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"date":"2025-07-18"`)

	status, _, _ = get(t, ts.URL+"/api/snapshots/2025-07-19")
	assert.Equal(t, http.StatusNotFound, status)

	status, body, _ = get(t, ts.URL+"/api/snapshots/yesterday")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "invalid date")
}

func TestAPI_Audit(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, body, _ := get(t, ts.URL+"/api/snapshots/2025-07-18/audit")
	assert.Equal(t, http.StatusOK, status)
	var records []fundmate.AuditRecord
	require.NoError(t, json.Unmarshal([]byte(body), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "AAPL", records[0].Instrument)

	status, _, _ = get(t, ts.URL+"/api/snapshots/2025-07-17/audit")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_Summary(t *testing.T) {
	ts, _ := newTestServer(t, fixedRate{"HKD": decimal.RequireFromString("0.128")})

	status, body, _ := get(t, ts.URL+"/api/summary/2025-07-18")
	assert.Equal(t, http.StatusOK, status)
	var sum Summary
	require.NoError(t, json.Unmarshal([]byte(body), &sum))
	assert.Equal(t, 2, sum.Positions)
	assert.Equal(t, 1, sum.Options)
	assert.Equal(t, 1, sum.Stale)
	require.NotNil(t, sum.CashUSD)
	assert.Equal(t, "1064", sum.CashUSD.Decimal().String())
	require.Len(t, sum.Accounts, 2)
	assert.Equal(t, "FUTU/HK-1", sum.Accounts[1].ID)
	assert.Equal(t, "64", sum.Accounts[1].CashUSD.Decimal().String())
}

func TestSummarize_WithoutRates(t *testing.T) {
	sum, err := Summarize(context.Background(), snapshot(t, date.New(2025, 7, 18)), fixedRate{})
	assert.Error(t, err)
	assert.Nil(t, sum.CashUSD)
	assert.Nil(t, sum.Accounts[0].CashUSD)
	assert.Equal(t, 2, sum.Positions)

	sum, err = Summarize(context.Background(), snapshot(t, date.New(2025, 7, 18)), nil)
	require.NoError(t, err)
	assert.Nil(t, sum.CashUSD)
}

func TestPages(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	status, body, header := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, `<a href="/snapshots/2025-07-18">2025-07-18</a>`)

	status, body, _ = get(t, ts.URL+"/snapshots/2025-07-18")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<h1>Portfolio on 2025-07-18</h1>")
	assert.Contains(t, body, ">AAPL</td>")
	assert.Contains(t, body, "Transactions")

	status, _, _ = get(t, ts.URL+"/snapshots/2025-01-01")
	assert.Equal(t, http.StatusNotFound, status)

	status, body, _ = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestCORS(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/snapshots", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://dash.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler(t *testing.T) {
	s := NewScheduler(context.Background(), zerolog.Nop())
	job := &countingJob{}

	assert.Error(t, s.AddJob("not a schedule", job))
	require.NoError(t, s.AddJob("@every 1s", job))

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()

	failing := &countingJob{err: errors.New("boom")}
	assert.Error(t, s.RunNow(failing))
}
