// Package extract reads broker statements (PDF files or screenshots) with a
// multimodal language model and turns the answer into an account snapshot.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

// Extractor builds account snapshots from statement documents.
type Extractor struct {
	Model    Model
	Registry *fundmate.Registry
	// Hints are broker specific instructions, by upper-case broker name,
	// telling where the statement shows cash and holdings.
	Hints map[string]string
	Log   zerolog.Logger
}

// Extract reads the documents of one account statement and returns the
// snapshot of the account as of on.
func (e *Extractor) Extract(ctx context.Context, broker, account string, on date.Date, files ...string) (*fundmate.AccountSnapshot, error) {
	if len(files) == 0 {
		return nil, errors.New("no statement file")
	}
	parts := []*genai.Part{genai.NewPartFromText(e.prompt(broker))}
	for _, name := range files {
		part, err := filePart(name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	e.Log.Info().Str("broker", broker).Int("files", len(files)).Msg("extracting statement")
	text, err := e.Model.Generate(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("statement extraction for %s failed: %w", broker, err)
	}
	st, err := ParseResponse(text)
	if err != nil {
		return nil, fmt.Errorf("statement extraction for %s: %w", broker, err)
	}
	a, err := st.Snapshot(e.Registry, broker, account, on)
	if err != nil {
		return nil, err
	}
	e.Log.Info().Str("account", a.ID()).Int("positions", len(a.Positions)).Strs("currencies", a.Cash.Currencies()).Msg("statement extracted")
	return a, nil
}

func (e *Extractor) prompt(broker string) string {
	p := fmt.Sprintf("Extract the cash balances and positions of this %s statement.", broker)
	if hint := e.Hints[strings.ToUpper(broker)]; hint != "" {
		p += "\n" + hint
	}
	return p
}

// filePart loads a document as an inline part.
func filePart(name string) (*genai.Part, error) {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if mimeType != "application/pdf" && !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("unsupported statement file %q", name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return genai.NewPartFromBytes(data, mimeType), nil
}

// Statement is the model's answer.
type Statement struct {
	Cash      map[string]decimal.Decimal
	Positions []Holding
}

// Holding is one extracted position line.
type Holding struct {
	StockCode     string
	Description   string
	Holding       decimal.Decimal
	Price         decimal.Decimal
	PriceCurrency string
}

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ParseResponse decodes the model answer. The JSON document may be wrapped
// in a markdown code block. Amounts may be numbers or strings.
func ParseResponse(text string) (*Statement, error) {
	var jobj any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &jobj); err != nil {
		m := fenced.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("cannot parse answer %.200q: %w", text, err)
		}
		if err := json.Unmarshal([]byte(m[1]), &jobj); err != nil {
			return nil, fmt.Errorf("cannot parse answer %.200q: %w", text, err)
		}
	}

	st := &Statement{Cash: map[string]decimal.Decimal{}}
	if cash, ok := get(jobj, "$.Cash").(map[string]any); ok {
		for cur, v := range cash {
			cur = strings.ToUpper(strings.TrimSpace(cur))
			if len(cur) != 3 || cur == "CNH" && cash["CNY"] != nil {
				continue
			}
			if cur == "CNH" {
				cur = "CNY"
			}
			amount, ok, err := number(v)
			if err != nil {
				return nil, fmt.Errorf("cash %s: %w", cur, err)
			}
			if ok {
				st.Cash[cur] = amount
			}
		}
	}

	positions, _ := get(jobj, "$.Positions").([]any)
	for i, item := range positions {
		var h Holding
		h.StockCode = str(get(item, "$.StockCode"))
		h.Description = str(get(item, "$.Description"))
		h.PriceCurrency = strings.ToUpper(str(get(item, "$.PriceCurrency")))
		var err error
		if h.Holding, _, err = number(get(item, "$.Holding")); err != nil {
			return nil, fmt.Errorf("position %d holding: %w", i+1, err)
		}
		if h.Price, _, err = number(get(item, "$.Price")); err != nil {
			return nil, fmt.Errorf("position %d price: %w", i+1, err)
		}
		st.Positions = append(st.Positions, h)
	}
	return st, nil
}

// Snapshot converts the statement. Lines without a code or with a zero
// holding are dropped.
func (s *Statement) Snapshot(reg *fundmate.Registry, broker, account string, on date.Date) (*fundmate.AccountSnapshot, error) {
	a := &fundmate.AccountSnapshot{Broker: broker, Account: account, Date: on, Cash: fundmate.Cash{}}
	for cur, amount := range s.Cash {
		a.Cash[cur] = amount
	}
	for _, h := range s.Positions {
		if h.StockCode == "" || h.Holding.IsZero() {
			continue
		}
		cur := h.PriceCurrency
		if cur == "" {
			cur = fundmate.BaseCurrency
		}
		p, err := fundmate.NewPosition(reg, h.text(reg), fundmate.Q(h.Holding), fundmate.M(h.Price, cur), fundmate.SourceBroker)
		if err != nil {
			return nil, fmt.Errorf("%s statement: %w", broker, err)
		}
		a.Positions = append(a.Positions, p)
	}
	return a, nil
}

// text returns the instrument text to classify: the code, unless only the
// description reads as an option contract.
func (h Holding) text(reg *fundmate.Registry) string {
	code, err := reg.Parse(h.StockCode)
	if err == nil && code.IsOption() || h.Description == "" {
		return h.StockCode
	}
	if desc, err := reg.Parse(h.Description); err == nil && desc.IsOption() {
		return h.Description
	}
	return h.StockCode
}

// get evaluates a JSONPath, nil when it does not resolve.
func get(jobj any, path string) any {
	v, err := jsonpath.Get(path, jobj)
	if err != nil {
		return nil
	}
	return v
}

func str(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// number reads a JSON number or numeric string; ok is false for null.
func number(v any) (d decimal.Decimal, ok bool, err error) {
	switch v := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case float64:
		return decimal.NewFromFloat(v), true, nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("invalid number %q", v)
		}
		return d, true, nil
	}
	return decimal.Zero, false, fmt.Errorf("invalid number %v", v)
}

// Merge puts a into p, replacing the snapshot of the same account if any.
func Merge(p *fundmate.Portfolio, a *fundmate.AccountSnapshot) {
	a.Date = p.Date
	if old := p.Account(a.Broker, a.Account); old != nil {
		p.Accounts[slices.Index(p.Accounts, old)] = a
		return
	}
	p.Accounts = append(p.Accounts, a)
	p.Sort()
}
