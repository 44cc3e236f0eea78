package fundmate

import (
	"regexp"
	"strings"
)

// InstrumentKey is the identity of an instrument across notations:
// "EQ:<symbol>" for equities and "OPT:<underlying>|<expiry>|<strike>|<C|P>"
// for options.
type InstrumentKey string

// IsOption reports whether k identifies an option contract.
func (k InstrumentKey) IsOption() bool { return strings.HasPrefix(string(k), "OPT:") }

// Instrument is the parsed form of a raw instrument description.
type Instrument struct {
	Text   string            // raw text as given by the source
	Symbol string            // normalized symbol, or the underlying for options
	Option *OptionAttributes // nil for equities
	Parser string            // name of the notation parser that recognized Text
}

// IsOption reports whether the instrument is an option contract.
func (i Instrument) IsOption() bool { return i.Option != nil }

// Key returns the instrument identity key.
func (i Instrument) Key() InstrumentKey {
	if i.Option != nil {
		return i.Option.Key()
	}
	return InstrumentKey("EQ:" + i.Symbol)
}

var (
	companyTicker = regexp.MustCompile(`\(([A-Z0-9][A-Z0-9.\-/ ]*)\)\s*$`)
	hkSuffixed    = regexp.MustCompile(`^(\d{1,5})[. ]HK$`)
	allDigits     = regexp.MustCompile(`^\d{1,5}$`)
	spaces        = regexp.MustCompile(`\s+`)
)

// NormalizeSymbol returns the canonical form of an equity symbol:
//
//   - upper case, single spaces
//   - Bloomberg " Equity" and " US" suffixes removed
//   - "Company Name (SYM)" reduced to SYM
//   - Hong Kong codes ("700 HK", "700.HK", "00700") padded to "0700.HK"
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = spaces.ReplaceAllString(s, " ")
	s = strings.TrimSuffix(s, " EQUITY")
	if m := companyTicker.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	s = strings.TrimSuffix(s, " US")
	s = strings.TrimSuffix(s, ".US")
	if m := hkSuffixed.FindStringSubmatch(s); m != nil {
		return hkCode(m[1]) + ".HK"
	}
	if allDigits.MatchString(s) {
		return hkCode(s) + ".HK"
	}
	return strings.ReplaceAll(s, "/", ".")
}

// hkCode pads or trims a numeric HK stock code to 4 digits.
func hkCode(digits string) string {
	digits = strings.TrimLeft(digits, "0")
	for len(digits) < 4 {
		digits = "0" + digits
	}
	return digits
}

// normalizeUnderlying is the option-side counterpart of NormalizeSymbol:
// exchange suffixes are dropped so that "TCH.HK" and "TCH" compare equal.
func normalizeUnderlying(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, ".HK")
	s = strings.TrimSuffix(s, ".US")
	if allDigits.MatchString(s) {
		return hkCode(s)
	}
	return s
}

// exchangeSuffixes are the listing suffixes ignored by the alias fallback.
// Share class suffixes such as ".A" or ".B" stay significant.
var exchangeSuffixes = map[string]bool{
	"HK": true, "US": true, "L": true, "TO": true, "SS": true, "SZ": true,
	"T": true, "DE": true, "PA": true, "AS": true, "SW": true, "SI": true,
	"AX": true, "N": true, "OQ": true,
}

// baseSymbol strips the exchange suffix of a normalized symbol: "0700.HK" ->
// "0700", "VOD.L" -> "VOD".
func baseSymbol(s string) string {
	if i := strings.LastIndexByte(s, '.'); i > 0 && exchangeSuffixes[s[i+1:]] {
		return s[:i]
	}
	return s
}

// AliasTable maps symbol aliases to a canonical symbol, per broker. The ""
// broker applies to every broker.
type AliasTable map[string]map[string]string

// Add declares alias as another name of canonical at broker.
func (t AliasTable) Add(broker, alias, canonical string) {
	broker = normalizeBroker(broker)
	if t[broker] == nil {
		t[broker] = make(map[string]string)
	}
	t[broker][NormalizeSymbol(alias)] = NormalizeSymbol(canonical)
}

// Canonical returns the canonical symbol of a normalized symbol at broker.
func (t AliasTable) Canonical(broker, symbol string) string {
	if c, ok := t[normalizeBroker(broker)][symbol]; ok {
		return c
	}
	if c, ok := t[""][symbol]; ok {
		return c
	}
	return symbol
}

// Equivalent reports whether two normalized symbols name the same equity at
// broker, either through the table or because they only differ by exchange
// suffix.
func (t AliasTable) Equivalent(broker, a, b string) bool {
	if t.Canonical(broker, a) == t.Canonical(broker, b) {
		return true
	}
	return baseSymbol(a) == baseSymbol(b)
}

// normalizeBroker makes broker names case insensitive.
func normalizeBroker(b string) string { return strings.ToUpper(strings.TrimSpace(b)) }
