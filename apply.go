package fundmate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/fundmate/date"
)

// UnmatchedPolicy tells the applier what to do with a SELL or BUYCOVER that
// matches no position.
type UnmatchedPolicy string

const (
	AbortOnUnmatched UnmatchedPolicy = "abort" // fail the whole batch
	SkipUnmatched    UnmatchedPolicy = "skip"  // leave the transaction out, report it
)

// ParseUnmatchedPolicy parses "abort" or "skip".
func ParseUnmatchedPolicy(s string) (UnmatchedPolicy, error) {
	switch p := UnmatchedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case AbortOnUnmatched, SkipUnmatched:
		return p, nil
	case "":
		return AbortOnUnmatched, nil
	}
	return "", fmt.Errorf("unknown unmatched policy %q, want %q or %q", s, AbortOnUnmatched, SkipUnmatched)
}

// ApplyOptions configures the delta applier.
type ApplyOptions struct {
	Matcher    *Matcher
	Policy     UnmatchedPolicy // zero value aborts
	AllowShort bool            // SELL may open or extend a short position
	Date       date.Date       // date of the produced snapshot, base date when zero
}

// ApplyAccount folds txs onto base and returns the new account snapshot.
//
// Transactions are applied in trade date order, ties in source row order.
// The base is never modified: the whole batch is first applied to a private
// copy, and that copy is only returned once every transaction went through.
// On a fatal error nothing is returned. The result depends only on the
// arguments.
func ApplyAccount(base *AccountSnapshot, txs []Transaction, opts ApplyOptions) (*AccountSnapshot, []AuditRecord, error) {
	work := base.Clone()
	if !opts.Date.IsZero() {
		work.Date = opts.Date
	}
	records := make([]AuditRecord, 0, len(txs))
	for _, tx := range SortTransactions(txs) {
		if err := tx.Validate(); err != nil {
			return nil, nil, err
		}
		rec, err := applyOne(work, tx, opts)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	return work, records, nil
}

// Apply folds txs onto every account of base. Transactions of accounts absent
// from base open new accounts. Accounts are processed one after the other,
// see Reconciler for the parallel version.
func Apply(base *Portfolio, txs []Transaction, opts ApplyOptions) (*Portfolio, []AuditRecord, error) {
	groups, err := GroupByAccount(base, txs)
	if err != nil {
		return nil, nil, err
	}
	out := &Portfolio{Date: base.Date}
	if !opts.Date.IsZero() {
		out.Date = opts.Date
	}
	var records []AuditRecord
	for _, g := range groups {
		acc, recs, err := ApplyAccount(g.Base, g.Transactions, opts)
		if err != nil {
			return nil, nil, err
		}
		out.Accounts = append(out.Accounts, acc)
		records = append(records, recs...)
	}
	return out, SortAudit(records), nil
}

// AccountBatch is the work of one account: its base snapshot and its
// transactions.
type AccountBatch struct {
	Base         *AccountSnapshot
	Transactions []Transaction
}

// GroupByAccount splits txs per account, case insensitively on broker and
// account names. Every base account gets a batch, even without transactions,
// and unknown accounts get an empty base. Batches follow base order, then
// first appearance.
//
// Two base accounts with the same name fail with ErrValidation.
func GroupByAccount(base *Portfolio, txs []Transaction) ([]AccountBatch, error) {
	var batches []AccountBatch
	index := make(map[string]int)
	for _, a := range base.Accounts {
		acc := a.Account
		if acc == "" {
			acc = a.Broker
		}
		k := normalizeBroker(a.Broker) + "/" + normalizeBroker(acc)
		if i, ok := index[k]; ok {
			return nil, fmt.Errorf("%w: base accounts %q and %q are the same account", ErrValidation, batches[i].Base.ID(), a.ID())
		}
		index[k] = len(batches)
		batches = append(batches, AccountBatch{Base: a})
	}
	for _, tx := range txs {
		k := normalizeBroker(tx.Broker) + "/" + normalizeBroker(tx.AccountName())
		i, ok := index[k]
		if !ok {
			i = len(batches)
			index[k] = i
			batches = append(batches, AccountBatch{Base: &AccountSnapshot{
				Broker:  tx.Broker,
				Account: tx.Account,
				Date:    base.Date,
				Cash:    Cash{},
			}})
		}
		batches[i].Transactions = append(batches[i].Transactions, tx)
	}
	return batches, nil
}

// applyOne applies a single transaction to the working copy.
func applyOne(work *AccountSnapshot, tx Transaction, opts ApplyOptions) (AuditRecord, error) {
	rec := AuditRecord{
		Row:        tx.Row,
		TradeDate:  tx.TradeDate,
		Account:    work.ID(),
		Side:       tx.Side,
		Instrument: tx.Instrument,
		Cash:       tx.AmountUSD,
	}
	in, candidates, err := opts.Matcher.FindCandidates(tx, work)
	if err != nil {
		var nerr *NotationError
		if errors.As(err, &nerr) {
			return rec, &ValidationError{Row: tx.Row, Field: ColStockCode, Value: tx.Instrument, Reason: nerr.Reason}
		}
		return rec, err
	}
	rec.Key, rec.Parser = in.Key(), in.Parser

	switch tx.Side {
	case Buy:
		if len(candidates) > 0 {
			rec.Status = StatusMatched
			rec.Lots = append(rec.Lots, adjust(work, candidates[0], tx.Quantity))
		} else {
			rec.Status = StatusOpened
			rec.Lots = append(rec.Lots, open(work, in, tx.Quantity, tx))
		}
		rec.Quantity = tx.Quantity

	case Sell:
		long := filterLots(candidates, Quantity.IsPositive)
		available := sumLots(long)
		if len(long) == 0 && len(candidates) == 0 && !opts.AllowShort {
			return unmatched(rec, tx, work, opts)
		}
		if available.LessThan(tx.Quantity) && !opts.AllowShort {
			return rec, &OverSellError{Row: tx.Row, Account: work.ID(), Side: tx.Side, Instrument: tx.Instrument, On: tx.TradeDate, Quantity: tx.Quantity, Available: available}
		}
		rec.Status = StatusMatched
		remaining := tx.Quantity
		for _, lot := range long {
			take := MinQ(lot.Quantity, remaining)
			rec.Lots = append(rec.Lots, adjust(work, lot, take.Neg()))
			remaining = remaining.Sub(take)
			if remaining.IsZero() {
				break
			}
		}
		if remaining.IsPositive() {
			// only reachable with AllowShort: the rest opens or extends a short.
			if shorts := filterLots(candidates, Quantity.IsNegative); len(shorts) > 0 {
				rec.Lots = append(rec.Lots, adjust(work, shorts[0], remaining.Neg()))
			} else {
				if len(candidates) == 0 {
					rec.Status = StatusOpened
				}
				rec.Lots = append(rec.Lots, open(work, in, remaining.Neg(), tx))
			}
		}
		rec.Quantity = tx.Quantity.Neg()

	case BuyCover:
		shorts := filterLots(candidates, Quantity.IsNegative)
		available := sumLots(shorts).Abs()
		if len(candidates) == 0 {
			return unmatched(rec, tx, work, opts)
		}
		if available.LessThan(tx.Quantity) {
			return rec, &OverSellError{Row: tx.Row, Account: work.ID(), Side: tx.Side, Instrument: tx.Instrument, On: tx.TradeDate, Quantity: tx.Quantity, Available: available}
		}
		rec.Status = StatusMatched
		remaining := tx.Quantity
		for _, lot := range shorts {
			take := MinQ(lot.Quantity.Abs(), remaining)
			rec.Lots = append(rec.Lots, adjust(work, lot, take))
			remaining = remaining.Sub(take)
			if remaining.IsZero() {
				break
			}
		}
		rec.Quantity = tx.Quantity
	}

	work.Cash.Add(tx.AmountUSD)
	return rec, nil
}

// unmatched applies the unmatched policy.
func unmatched(rec AuditRecord, tx Transaction, work *AccountSnapshot, opts ApplyOptions) (AuditRecord, error) {
	err := &UnmatchedInstrumentError{Row: tx.Row, Account: work.ID(), Side: tx.Side, Instrument: tx.Instrument, On: tx.TradeDate}
	if opts.Policy != SkipUnmatched {
		return rec, err
	}
	rec.Status = StatusSkipped
	rec.Quantity = Quantity{}
	rec.Cash = M(0, BaseCurrency)
	rec.Reason = err.Error()
	return rec, nil
}

// adjust adds delta to a lot and removes it from the account when it
// reaches zero.
func adjust(work *AccountSnapshot, lot *Position, delta Quantity) LotDelta {
	d := LotDelta{Key: lot.Key(), Description: lot.Description, Before: lot.Quantity}
	lot.Quantity = lot.Quantity.Add(delta)
	d.After = lot.Quantity
	if lot.Quantity.IsZero() {
		work.remove(lot)
		d.Removed = true
	}
	return d
}

// open adds a new lot to the account.
func open(work *AccountSnapshot, in Instrument, qty Quantity, tx Transaction) LotDelta {
	p := positionFromInstrument(in, qty, tx.AvgPrice, tx.TradeDate)
	work.Positions = append(work.Positions, p)
	return LotDelta{Key: p.Key(), Description: p.Description, After: qty}
}

func filterLots(lots []*Position, keep func(Quantity) bool) []*Position {
	var out []*Position
	for _, p := range lots {
		if keep(p.Quantity) {
			out = append(out, p)
		}
	}
	return out
}

func sumLots(lots []*Position) Quantity {
	var total Quantity
	for _, p := range lots {
		total = total.Add(p.Quantity)
	}
	return total
}
