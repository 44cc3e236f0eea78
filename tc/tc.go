// Package tc reads trade confirmation files into rows for
// fundmate.LoadTransactions.
//
// Brokers send confirmations as spreadsheets. Some put a title above the
// table, so the header is the first row, among the first few, holding a
// "Trade Date" cell.
package tc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/etnz/fundmate"
	"github.com/xuri/excelize/v2"
)

// headerScan is the number of leading rows searched for the header.
const headerScan = 10

// ErrNoHeader is returned for a file without a "Trade Date" column.
var ErrNoHeader = errors.New("no trade confirmation header")

// IsTCFile reports whether name has a supported extension.
func IsTCFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// ReadFile reads a .csv or .xlsx trade confirmation file. Rows are numbered
// from 1, the first data row after the header.
func ReadFile(path string) ([]fundmate.RawRow, error) {
	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported trade confirmation file %q", path)
	}
	if err != nil {
		return nil, err
	}
	rows, err := toRows(records, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	source := filepath.Base(path)
	for i := range rows {
		rows[i].Source = source
	}
	return rows, nil
}

// ReadDir reads every trade confirmation file of dir in file name order.
func ReadDir(dir string) ([]fundmate.RawRow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read trade confirmation folder: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") || !IsTCFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return ReadFiles(paths...)
}

// ReadFiles reads files in order. Row numbers continue from one file to the
// next so that they stay unique for the batch.
func ReadFiles(paths ...string) ([]fundmate.RawRow, error) {
	var all []fundmate.RawRow
	for _, path := range paths {
		rows, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		offset := len(all)
		for _, r := range rows {
			r.Row += offset
			all = append(all, r)
		}
	}
	return all, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: no sheet", path)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return records, nil
}

// toRows locates the header and turns the following records into rows
// numbered from first.
func toRows(records [][]string, first int) ([]fundmate.RawRow, error) {
	h := headerIndex(records)
	if h < 0 {
		return nil, ErrNoHeader
	}
	header := records[h]
	rows := make([]fundmate.RawRow, 0, len(records)-h-1)
	for i, rec := range records[h+1:] {
		rows = append(rows, fundmate.NewRawRow(first+i, header, rec))
	}
	return rows, nil
}

func headerIndex(records [][]string) int {
	for i, rec := range records {
		if i >= headerScan {
			break
		}
		for _, cell := range rec {
			if strings.EqualFold(strings.Join(strings.Fields(cell), " "), fundmate.ColTradeDate) {
				return i
			}
		}
	}
	return -1
}
