package fundmate

import (
	"errors"
	"strings"

	"github.com/etnz/fundmate/date"
)

// Trade confirmation columns.
const (
	ColTradeDate = "Trade Date"
	ColStockCode = "Stock Code"
	ColSide      = "BUY/SELL"
	ColQuantity  = "Quantity"
	ColAvgPrice  = "Avg. Price"
	ColAmountUSD = "Amount (USD)"
	ColBroker    = "Broker"
	ColCurrency  = "Currency"
	ColMarket    = "Market/Exchange"
	ColAccount   = "Account"
)

// RawRow is one trade confirmation row as produced by the ingestion layer:
// column name -> cell text. Column names are matched case insensitively.
type RawRow struct {
	Row    int // 1-based data row in the source
	Source string
	cells  map[string]string
}

// NewRawRow builds a row from a header and the matching cells.
func NewRawRow(row int, header, cells []string) RawRow {
	r := RawRow{Row: row, cells: make(map[string]string, len(header))}
	for i, h := range header {
		if i < len(cells) {
			r.Set(h, cells[i])
		}
	}
	return r
}

// Set sets a cell.
func (r *RawRow) Set(col, value string) {
	if r.cells == nil {
		r.cells = make(map[string]string)
	}
	r.cells[columnKey(col)] = strings.TrimSpace(value)
}

// Get returns a cell, "" when absent.
func (r RawRow) Get(col string) string { return r.cells[columnKey(col)] }

// IsBlank reports whether every cell is empty.
func (r RawRow) IsBlank() bool {
	for _, v := range r.cells {
		if v != "" {
			return false
		}
	}
	return true
}

func columnKey(col string) string { return strings.ToUpper(strings.Join(strings.Fields(col), " ")) }

// LoadOptions configures LoadTransactions.
type LoadOptions struct {
	After         date.Date // keep trades strictly after this date, when set
	Until         date.Date // keep trades on or before this date, when set
	DefaultBroker string    // broker of rows without a Broker cell
}

// LoadTransactions validates and normalizes rows. Every invalid row is
// reported; the returned error joins one *ValidationError per problem and no
// transaction is returned in that case. Blank rows are skipped.
func LoadTransactions(rows []RawRow, opts LoadOptions) ([]Transaction, error) {
	var txs []Transaction
	var errs []error
	for _, r := range rows {
		if r.IsBlank() {
			continue
		}
		tx, err := loadRow(r, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !opts.After.IsZero() && !tx.TradeDate.After(opts.After) {
			continue
		}
		if !opts.Until.IsZero() && tx.TradeDate.After(opts.Until) {
			continue
		}
		txs = append(txs, tx)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return txs, nil
}

func loadRow(r RawRow, opts LoadOptions) (Transaction, error) {
	missing := func(col string) error {
		return &ValidationError{Row: r.Row, Field: col, Reason: "missing"}
	}
	invalid := func(col, value string, err error) error {
		return &ValidationError{Row: r.Row, Field: col, Value: value, Reason: err.Error()}
	}

	tx := Transaction{
		Row:        r.Row,
		Instrument: cleanInstrument(r.Get(ColStockCode)),
		Broker:     r.Get(ColBroker),
		Account:    r.Get(ColAccount),
		Currency:   strings.ToUpper(r.Get(ColCurrency)),
		Market:     r.Get(ColMarket),
	}
	if tx.Broker == "" {
		tx.Broker = opts.DefaultBroker
	}
	if tx.Currency == "" {
		tx.Currency = BaseCurrency
	}

	v := r.Get(ColTradeDate)
	if v == "" {
		return tx, missing(ColTradeDate)
	}
	on, err := date.ParseAny(v)
	if err != nil {
		return tx, invalid(ColTradeDate, v, err)
	}
	tx.TradeDate = on

	if tx.Instrument == "" {
		return tx, missing(ColStockCode)
	}

	v = r.Get(ColSide)
	if v == "" {
		return tx, missing(ColSide)
	}
	if tx.Side, err = ParseSide(v); err != nil {
		return tx, invalid(ColSide, v, err)
	}

	v = r.Get(ColQuantity)
	if v == "" {
		return tx, missing(ColQuantity)
	}
	qty, err := ParseQuantity(v)
	if err != nil {
		return tx, invalid(ColQuantity, v, err)
	}
	// some brokers print sold quantities negative, the side carries the sign.
	tx.Quantity = qty.Abs()

	v = r.Get(ColAmountUSD)
	if v == "" {
		return tx, missing(ColAmountUSD)
	}
	if tx.AmountUSD, err = ParseMoney(v, BaseCurrency); err != nil {
		return tx, invalid(ColAmountUSD, v, err)
	}

	if v = r.Get(ColAvgPrice); v != "" {
		if tx.AvgPrice, err = ParseMoney(v, tx.Currency); err != nil {
			return tx, invalid(ColAvgPrice, v, err)
		}
	} else {
		tx.AvgPrice = M(0, tx.Currency)
	}

	return tx, tx.Validate()
}

// cleanInstrument removes decorations added by Bloomberg exports.
func cleanInstrument(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if strings.HasSuffix(strings.ToUpper(s), " EQUITY") {
		s = s[:len(s)-len(" EQUITY")]
	}
	return s
}
