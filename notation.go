package fundmate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/etnz/fundmate/date"
	"github.com/shopspring/decimal"
)

// NotationParser recognizes one option notation.
//
// Parse returns ok == false when text does not follow the notation's grammar.
// That is ordinary control flow: the Registry moves on to the next parser.
// When ok is true the attributes must be complete, otherwise the Registry
// reports the text as an unparseable option rather than an equity.
type NotationParser interface {
	Name() string
	Parse(text string) (attrs OptionAttributes, ok bool)
}

// Registry is an ordered chain of notation parsers. The first parser that
// recognizes a text wins; results of different parsers are never merged.
// A Registry is safe for concurrent use once built.
type Registry struct {
	parsers []NotationParser
}

// NewRegistry returns a registry trying parsers in the given order.
func NewRegistry(parsers ...NotationParser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry returns the registry with every built-in notation in its
// fixed priority order. resolve may be nil, see HKNumericParser.
func DefaultRegistry(resolve UnderlyingResolver) *Registry {
	return NewRegistry(
		OTCParser{},
		OCCParser{},
		LongFormParser{},
		HKATSParser{},
		USLongParser{},
		NewHKNumericParser(resolve),
	)
}

// Register appends p at the lowest priority.
func (r *Registry) Register(p NotationParser) { r.parsers = append(r.parsers, p) }

// Names returns the parser names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}

// EquityParserName is the Instrument.Parser value of the equity fallback.
const EquityParserName = "equity"

// optionWords flag texts that are options even if no grammar recognized them.
var optionWords = regexp.MustCompile(`\b(CALL|PUT)\b|\bOTC\b|OTC-| EXP `)

// Parse classifies text as an option, an equity, or an error for texts that
// clearly describe an option no parser could read completely.
func (r *Registry) Parse(text string) (Instrument, error) {
	norm := canonicalText(text)
	if norm == "" {
		return Instrument{}, &NotationError{Text: text, Reason: "empty instrument"}
	}
	for _, p := range r.parsers {
		attrs, ok := p.Parse(norm)
		if !ok {
			continue
		}
		if err := attrs.Validate(); err != nil {
			return Instrument{}, &NotationError{Text: text, Parser: p.Name(), Reason: err.Error()}
		}
		attrs.Underlying = normalizeUnderlying(attrs.Underlying)
		return Instrument{Text: text, Symbol: attrs.Underlying, Option: &attrs, Parser: p.Name()}, nil
	}
	if optionWords.MatchString(norm) {
		return Instrument{}, &NotationError{Text: text, Reason: "unrecognized option notation"}
	}
	return Instrument{Text: text, Symbol: NormalizeSymbol(norm), Parser: EquityParserName}, nil
}

// canonicalText upper-cases, trims and collapses blanks. Bloomberg's trailing
// " Equity" is dropped.
func canonicalText(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSuffix(s, " EQUITY")
}

// NotationError reports an instrument text that could not be classified.
type NotationError struct {
	Text   string
	Parser string // empty when no parser recognized the text
	Reason string
}

func (e *NotationError) Error() string {
	if e.Parser != "" {
		return fmt.Sprintf("cannot parse instrument %q as %s: %s", e.Text, e.Parser, e.Reason)
	}
	return fmt.Sprintf("cannot parse instrument %q: %s", e.Text, e.Reason)
}

func (e *NotationError) Unwrap() error { return ErrValidation }

// helpers shared by the notation parsers.

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// ymd returns the date if y-m-d is a real calendar day.
func ymd(y int, m time.Month, d int) date.Date {
	on := date.New(y, m, d)
	if on.Year() != y || on.Month() != m || on.Day() != d {
		return date.Date{}
	}
	return on
}

// yymmdd reads a 2 digit year, month and day.
func yymmdd(yy, mm, dd string) date.Date {
	return ymd(2000+atoi(yy), time.Month(atoi(mm)), atoi(dd))
}

// ddmonyy reads "19SEP25".
func ddmonyy(s string) date.Date {
	on, err := date.ParseLayout("02Jan06", s)
	if err != nil {
		// single digit days: "5SEP25"
		on, err = date.ParseLayout("2Jan06", s)
		if err != nil {
			return date.Date{}
		}
	}
	return on
}

// usDate reads MM/DD/YYYY or MM/DD/YY.
func usDate(s string) date.Date {
	for _, layout := range []string{"01/02/2006", "1/2/2006", "01/02/06", "1/2/06"} {
		if on, err := date.ParseLayout(layout, s); err == nil {
			return on
		}
	}
	return date.Date{}
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// dec parses a strike; zero on error so that Validate rejects it.
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
