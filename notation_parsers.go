package fundmate

import (
	"regexp"
	"sync"
	"time"

	"github.com/etnz/fundmate/date"
	"github.com/shopspring/decimal"
)

// Texts reaching the parsers are already upper-cased with single blanks.

const strikeRE = `(\d+(?:\.\d+)?)`

// OTCParser reads over-the-counter contracts:
//
//	CALL OTC-0388 1.0@350.0 EXP 09/21/2026 HKEX (EURO)
//	3690.HK 180 28MAY27 CE OTC
//
// The number before "@" is the contract multiplier.
type OTCParser struct{}

var (
	otcLong  = regexp.MustCompile(`^(CALL|PUT) OTC-([A-Z0-9]+) (\d+(?:\.\d+)?)@` + strikeRE + ` EXP (\d{1,2}/\d{1,2}/\d{2,4})\b`)
	otcShort = regexp.MustCompile(`^([A-Z0-9]+)(?:\.HK)? ` + strikeRE + ` (\d{1,2}[A-Z]{3}\d{2}) (CE|PE|C|P)\b.*\bOTC\b`)
)

func (OTCParser) Name() string { return "otc" }

func (OTCParser) Parse(text string) (OptionAttributes, bool) {
	if m := otcLong.FindStringSubmatch(text); m != nil {
		right, _ := ParseRight(m[1])
		return OptionAttributes{
			Underlying: m[2],
			Multiplier: dec(m[3]),
			Strike:     dec(m[4]),
			Expiry:     usDate(m[5]),
			Right:      right,
			OTC:        true,
		}, true
	}
	if m := otcShort.FindStringSubmatch(text); m != nil {
		right, _ := ParseRight(m[4][:1])
		return OptionAttributes{
			Underlying: m[1],
			Strike:     dec(m[2]),
			Expiry:     ddmonyy(m[3]),
			Right:      right,
			Multiplier: decimal.NewFromInt(1),
			OTC:        true,
		}, true
	}
	return OptionAttributes{}, false
}

// OCCParser reads the compact OCC symbology used by US brokers:
// AAPL250919C00050000 or SBET260116P41000. The strike is in thousandths.
type OCCParser struct{}

var occ = regexp.MustCompile(`^([A-Z]{1,6}) ?(\d{2})(\d{2})(\d{2})([CP])(\d{5}|\d{8})$`)

func (OCCParser) Name() string { return "occ" }

func (OCCParser) Parse(text string) (OptionAttributes, bool) {
	m := occ.FindStringSubmatch(text)
	if m == nil {
		return OptionAttributes{}, false
	}
	right, _ := ParseRight(m[5])
	return OptionAttributes{
		Underlying: m[1],
		Expiry:     yymmdd(m[2], m[3], m[4]),
		Right:      right,
		Strike:     dec(m[6]).Div(thousand),
		Multiplier: hundred,
	}, true
}

// LongFormParser reads the long form used on trade confirmations:
//
//	CALL XYZ EXP 09/19/2025 50.0
//	PUT XYZ EXP 09/19/2025 XYZ@50.0
//	CALL 1810 1.0@60.0 EXP 08/26/2026 XIAOMI-W
type LongFormParser struct{}

var (
	longStrikeAfter  = regexp.MustCompile(`^(CALL|PUT) ([A-Z0-9.\-]+) EXP (\d{1,2}/\d{1,2}/\d{2,4}) (?:[A-Z0-9.\-]+@)?` + strikeRE + `(?: |$)`)
	longStrikeBefore = regexp.MustCompile(`^(CALL|PUT) ([A-Z0-9.\-]+) (?:(\d+(?:\.\d+)?)@)?` + strikeRE + ` EXP (\d{1,2}/\d{1,2}/\d{2,4})(?: |$)`)
)

func (LongFormParser) Name() string { return "longform" }

func (LongFormParser) Parse(text string) (OptionAttributes, bool) {
	if m := longStrikeAfter.FindStringSubmatch(text); m != nil {
		right, _ := ParseRight(m[1])
		return OptionAttributes{
			Underlying: m[2],
			Expiry:     usDate(m[3]),
			Strike:     dec(m[4]),
			Right:      right,
			Multiplier: defaultMultiplier(m[2]),
		}, true
	}
	if m := longStrikeBefore.FindStringSubmatch(text); m != nil {
		right, _ := ParseRight(m[1])
		mult := defaultMultiplier(m[2])
		if m[3] != "" {
			mult = dec(m[3])
		}
		return OptionAttributes{
			Underlying: m[2],
			Multiplier: mult,
			Strike:     dec(m[4]),
			Expiry:     usDate(m[5]),
			Right:      right,
		}, true
	}
	return OptionAttributes{}, false
}

// defaultMultiplier is 1000 shares for HK numeric underlyings, 100 otherwise.
func defaultMultiplier(underlying string) decimal.Decimal {
	if allDigits.MatchString(underlying) {
		return thousand
	}
	return hundred
}

// HKATSParser reads Hong Kong exchange alphanumeric codes:
//
//	TCH 250929 500.00 CALL
//	(TCH.HK 20250929 CALL 500)
type HKATSParser struct{}

var (
	hkatsPlain  = regexp.MustCompile(`^([A-Z]{3}) (\d{2})(\d{2})(\d{2}) ` + strikeRE + ` (CALL|PUT)$`)
	hkatsParens = regexp.MustCompile(`^\(([A-Z]{3})\.HK (\d{4})(\d{2})(\d{2}) (CALL|PUT) ` + strikeRE + `\)$`)
)

func (HKATSParser) Name() string { return "hkats" }

func (HKATSParser) Parse(text string) (OptionAttributes, bool) {
	if m := hkatsPlain.FindStringSubmatch(text); m != nil {
		right, _ := ParseRight(m[6])
		return OptionAttributes{
			Underlying: m[1],
			Expiry:     yymmdd(m[2], m[3], m[4]),
			Strike:     dec(m[5]),
			Right:      right,
			Multiplier: thousand,
		}, true
	}
	if m := hkatsParens.FindStringSubmatch(text); m != nil {
		right, _ := ParseRight(m[5])
		return OptionAttributes{
			Underlying: m[1],
			Expiry:     ymd4(m[2], m[3], m[4]),
			Right:      right,
			Strike:     dec(m[6]),
			Multiplier: thousand,
		}, true
	}
	return OptionAttributes{}, false
}

func ymd4(yyyy, mm, dd string) date.Date {
	return ymd(atoi(yyyy), time.Month(atoi(mm)), atoi(dd))
}

// USLongParser reads the US listed option notations of Bloomberg, IB and Futu:
//
//	AAPL US 09/19/25 C50
//	AAPL 19SEP25 50 C
//	AAPL 20250919 CALL 50
type USLongParser struct{}

var (
	usBloomberg = regexp.MustCompile(`^([A-Z][A-Z.]*) US (\d{2}/\d{2}/\d{2}) ([CP])` + strikeRE + `$`)
	usIB        = regexp.MustCompile(`^([A-Z][A-Z.]*) (\d{1,2}[A-Z]{3}\d{2}) ` + strikeRE + ` ([CP])$`)
	usFutu      = regexp.MustCompile(`^([A-Z][A-Z.]*) (\d{4})(\d{2})(\d{2}) (CALL|PUT) ` + strikeRE + `$`)
)

func (USLongParser) Name() string { return "uslong" }

func (USLongParser) Parse(text string) (OptionAttributes, bool) {
	attrs := OptionAttributes{Multiplier: hundred}
	switch {
	case usBloomberg.MatchString(text):
		m := usBloomberg.FindStringSubmatch(text)
		attrs.Underlying, attrs.Expiry, attrs.Strike = m[1], usDate(m[2]), dec(m[4])
		attrs.Right, _ = ParseRight(m[3])
	case usIB.MatchString(text):
		m := usIB.FindStringSubmatch(text)
		attrs.Underlying, attrs.Expiry, attrs.Strike = m[1], ddmonyy(m[2]), dec(m[3])
		attrs.Right, _ = ParseRight(m[4])
	case usFutu.MatchString(text):
		m := usFutu.FindStringSubmatch(text)
		attrs.Underlying, attrs.Expiry, attrs.Strike = m[1], ymd4(m[2], m[3], m[4]), dec(m[6])
		attrs.Right, _ = ParseRight(m[5])
	default:
		return OptionAttributes{}, false
	}
	return attrs, true
}

// UnderlyingResolver maps a numeric HK stock code ("0700") to its HKATS
// underlying code ("TCH").
type UnderlyingResolver func(numeric string) (string, error)

// HKNumericParser reads HK options quoted with the numeric stock code:
//
//	0700 HK 09/29/25 C500
//	0700 29SEP25 500 C
//
// When a resolver is set, the numeric code is translated to the HKATS code so
// that both notations share an identity key. Resolutions are cached; a failed
// resolution falls back to the numeric code.
type HKNumericParser struct {
	resolve UnderlyingResolver

	mu    sync.Mutex
	cache map[string]string
}

var (
	hkNumSlash = regexp.MustCompile(`^(\d{4,5}) (?:HK|C1) (\d{2}/\d{2}/\d{2}) ([CP])` + strikeRE + `$`)
	hkNumMon   = regexp.MustCompile(`^(\d{4,5}) (\d{1,2}[A-Z]{3}\d{2}) ` + strikeRE + ` ([CP])$`)
)

// NewHKNumericParser returns a parser using resolve, which may be nil.
func NewHKNumericParser(resolve UnderlyingResolver) *HKNumericParser {
	return &HKNumericParser{resolve: resolve, cache: make(map[string]string)}
}

func (*HKNumericParser) Name() string { return "hknumeric" }

func (p *HKNumericParser) Parse(text string) (OptionAttributes, bool) {
	attrs := OptionAttributes{Multiplier: thousand}
	var code string
	if m := hkNumSlash.FindStringSubmatch(text); m != nil {
		code, attrs.Expiry, attrs.Strike = m[1], usDate(m[2]), dec(m[4])
		attrs.Right, _ = ParseRight(m[3])
	} else if m := hkNumMon.FindStringSubmatch(text); m != nil {
		code, attrs.Expiry, attrs.Strike = m[1], ddmonyy(m[2]), dec(m[3])
		attrs.Right, _ = ParseRight(m[4])
	} else {
		return OptionAttributes{}, false
	}
	attrs.Underlying = p.underlying(hkCode(code))
	return attrs, true
}

func (p *HKNumericParser) underlying(code string) string {
	if p.resolve == nil {
		return code
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.cache[code]; ok {
		return u
	}
	u, err := p.resolve(code)
	if err != nil || u == "" {
		u = code
	}
	p.cache[code] = u
	return u
}
