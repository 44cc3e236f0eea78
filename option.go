package fundmate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/fundmate/date"
	"github.com/shopspring/decimal"
)

// StrikeTolerance is the strike grid: strikes are compared and keyed once
// rounded to the nearest multiple of it. Some notations round strikes
// differently.
var StrikeTolerance = decimal.New(1, -3)

// gridStrike rounds a strike to the nearest multiple of StrikeTolerance.
func gridStrike(strike decimal.Decimal) decimal.Decimal {
	return strike.Div(StrikeTolerance).Round(0).Mul(StrikeTolerance)
}

// Right is the option right: CALL or PUT.
type Right string

const (
	Call Right = "CALL"
	Put  Right = "PUT"
)

// ParseRight parses "C", "CALL", "P" or "PUT" in any case.
func ParseRight(s string) (Right, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL":
		return Call, true
	case "P", "PUT":
		return Put, true
	}
	return "", false
}

// Letter returns "C" or "P".
func (r Right) Letter() string {
	if r == "" {
		return ""
	}
	return string(r[0])
}

// OptionAttributes is the canonical description of an option contract,
// whatever notation it was read from.
type OptionAttributes struct {
	Underlying string          `json:"underlying"`
	Expiry     date.Date       `json:"expiry"`
	Strike     decimal.Decimal `json:"strike"`
	Right      Right           `json:"right"`
	Multiplier decimal.Decimal `json:"multiplier"`
	OTC        bool            `json:"otc,omitempty"`
}

var errPartialOption = errors.New("partial option attributes")

// Validate reports an error unless every attribute is set. Partially parsed
// options are never treated as equities.
func (o OptionAttributes) Validate() error {
	var missing []string
	if o.Underlying == "" {
		missing = append(missing, "underlying")
	}
	if o.Expiry.IsZero() {
		missing = append(missing, "expiry")
	}
	if !o.Strike.IsPositive() {
		missing = append(missing, "strike")
	}
	if o.Right != Call && o.Right != Put {
		missing = append(missing, "right")
	}
	if !o.Multiplier.IsPositive() {
		missing = append(missing, "multiplier")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", errPartialOption, strings.Join(missing, ", "))
	}
	return nil
}

// SameContract reports whether o and x describe the same contract: same
// underlying, right and expiry, and the same strike on the StrikeTolerance
// grid. Two contracts are the same exactly when their keys are equal.
func (o OptionAttributes) SameContract(x OptionAttributes) bool {
	return normalizeUnderlying(o.Underlying) == normalizeUnderlying(x.Underlying) &&
		o.Right == x.Right &&
		o.Expiry == x.Expiry &&
		gridStrike(o.Strike).Equal(gridStrike(x.Strike))
}

// Key returns the instrument identity key of the contract.
func (o OptionAttributes) Key() InstrumentKey {
	strike := gridStrike(o.Strike).String()
	return InstrumentKey(fmt.Sprintf("OPT:%s|%s|%s|%s", normalizeUnderlying(o.Underlying), o.Expiry, strike, o.Right.Letter()))
}

// String returns the canonical long form "CALL XYZ EXP 09/19/2025 50".
func (o OptionAttributes) String() string {
	exp := ""
	if !o.Expiry.IsZero() {
		exp = o.Expiry.Time().Format("01/02/2006")
	}
	return fmt.Sprintf("%s %s EXP %s %s", o.Right, o.Underlying, exp, o.Strike.String())
}
