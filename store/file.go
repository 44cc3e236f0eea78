package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/rs/zerolog"
)

const (
	portfolioFile = "portfolio.json"
	auditFile     = "audit.jsonl"
)

// FileStore keeps one directory per date:
//
//	<dir>/2025-07-18/portfolio.json
//	<dir>/2025-07-18/audit.jsonl
type FileStore struct {
	Dir      string
	Registry *fundmate.Registry

	log zerolog.Logger
}

// NewFileStore returns a store rooted at dir, created if needed.
func NewFileStore(dir string, reg *fundmate.Registry, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create store directory: %w", err)
	}
	return &FileStore{Dir: dir, Registry: reg, log: log.With().Str("store", "file").Logger()}, nil
}

func (s *FileStore) dateDir(on date.Date) string { return filepath.Join(s.Dir, on.String()) }

func (s *FileStore) Save(ctx context.Context, p *fundmate.Portfolio) error {
	if p.Date.IsZero() {
		return errors.New("cannot save an undated portfolio")
	}
	var buf bytes.Buffer
	if err := fundmate.EncodePortfolio(&buf, p); err != nil {
		return err
	}
	path := filepath.Join(s.dateDir(p.Date), portfolioFile)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("cannot save portfolio of %s: %w", p.Date, err)
	}
	s.log.Info().Stringer("date", p.Date).Int("accounts", len(p.Accounts)).Str("path", path).Msg("portfolio saved")
	return nil
}

func (s *FileStore) Load(ctx context.Context, on date.Date) (*fundmate.Portfolio, error) {
	f, err := os.Open(filepath.Join(s.dateDir(on), portfolioFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, on)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := fundmate.DecodePortfolio(f, s.Registry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	return p, nil
}

// Dates lists the date directories holding a portfolio.
func (s *FileStore) Dates(ctx context.Context) ([]date.Date, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var dates []date.Date
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		on, err := date.Parse(e.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Dir, e.Name(), portfolioFile)); err != nil {
			continue
		}
		dates = append(dates, on)
	}
	slices.SortFunc(dates, date.Date.Compare)
	return dates, nil
}

func (s *FileStore) SaveAudit(ctx context.Context, on date.Date, runID string, records []fundmate.AuditRecord) error {
	var buf bytes.Buffer
	if err := fundmate.EncodeAudit(&buf, records); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.dateDir(on), auditFile), buf.Bytes()); err != nil {
		return fmt.Errorf("cannot save audit of %s: %w", on, err)
	}
	s.log.Debug().Stringer("date", on).Str("run", runID).Int("records", len(records)).Msg("audit saved")
	return nil
}

func (s *FileStore) LoadAudit(ctx context.Context, on date.Date) ([]fundmate.AuditRecord, error) {
	f, err := os.Open(filepath.Join(s.dateDir(on), auditFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no audit for %s", ErrNotFound, on)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fundmate.DecodeAudit(f)
}

// WriteFile writes an extra file, such as a CSV export, next to the
// snapshot of on.
func (s *FileStore) WriteFile(on date.Date, name string, data []byte) (string, error) {
	path := filepath.Join(s.dateDir(on), name)
	return path, writeAtomic(path, data)
}

func (s *FileStore) Close() error { return nil }

// writeAtomic writes data to a temporary file then renames it over path.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
