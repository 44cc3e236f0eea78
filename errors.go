package fundmate

import (
	"errors"
	"fmt"

	"github.com/etnz/fundmate/date"
)

// Reconciliation errors. Typed errors below wrap one of these so callers can
// test them with errors.Is.
var (
	ErrValidation          = errors.New("invalid transaction")
	ErrUnmatchedInstrument = errors.New("unmatched instrument")
	ErrOverSell            = errors.New("quantity exceeds holding")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrPriceNotFound       = errors.New("price not found")
)

// ValidationError reports a malformed trade confirmation row.
type ValidationError struct {
	Row    int    // 1-based data row
	Field  string // column name
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("row %d: %s %q: %s", e.Row, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnmatchedInstrumentError reports a closing transaction with no holding to
// close.
type UnmatchedInstrumentError struct {
	Row        int
	Account    string
	Side       Side
	Instrument string
	On         date.Date
}

func (e *UnmatchedInstrumentError) Error() string {
	return fmt.Sprintf("row %d: on %s, cannot %s %q in %s: no matching position", e.Row, e.On, e.Side, e.Instrument, e.Account)
}

func (e *UnmatchedInstrumentError) Unwrap() error { return ErrUnmatchedInstrument }

// OverSellError reports a closing transaction larger than the holding.
type OverSellError struct {
	Row        int
	Account    string
	Side       Side
	Instrument string
	On         date.Date
	Quantity   Quantity
	Available  Quantity
}

func (e *OverSellError) Error() string {
	return fmt.Sprintf("row %d: on %s, cannot %s %v of %q in %s, position is only %v", e.Row, e.On, e.Side, e.Quantity, e.Instrument, e.Account, e.Available)
}

func (e *OverSellError) Unwrap() error { return ErrOverSell }

// PriceUnavailableError reports a failed price lookup. It is recovered by the
// stale price fallback and only surfaces in the audit trail.
type PriceUnavailableError struct {
	Key InstrumentKey
	Err error
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("price unavailable for %s: %v", e.Key, e.Err)
}

func (e *PriceUnavailableError) Unwrap() []error { return []error{ErrPriceUnavailable, e.Err} }
