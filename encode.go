package fundmate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts and quantities are persisted as json numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// EncodePortfolio writes p as indented JSON. The output of a run decodes as
// the base snapshot of the next one.
func EncodePortfolio(w io.Writer, p *Portfolio) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("cannot encode portfolio: %w", err)
	}
	return nil
}

// DecodePortfolio reads a portfolio written by EncodePortfolio, or produced by
// statement extraction, and classifies its positions with reg.
func DecodePortfolio(r io.Reader, reg *Registry) (*Portfolio, error) {
	var p Portfolio
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("cannot decode portfolio: %w", err)
	}
	for _, a := range p.Accounts {
		if a.Date.IsZero() {
			a.Date = p.Date
		}
	}
	if err := p.Classify(reg); err != nil {
		return nil, err
	}
	return &p, nil
}

// EncodeAudit writes the audit trail as JSON lines, one record per
// transaction.
func EncodeAudit(w io.Writer, records []AuditRecord) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("cannot encode audit record for row %d: %w", r.Row, err)
		}
		bw.Write(b)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// DecodeAudit reads an audit trail written by EncodeAudit.
func DecodeAudit(r io.Reader) ([]AuditRecord, error) {
	var records []AuditRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var rec AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("audit line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
