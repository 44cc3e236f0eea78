// Package cmd implements the fundmate command line application.
package cmd

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/internal/config"
	"github.com/etnz/fundmate/internal/logger"
	"github.com/etnz/fundmate/internal/pipeline"
	"github.com/etnz/fundmate/quote"
	"github.com/etnz/fundmate/renderer"
	"github.com/etnz/fundmate/store"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&reconcileCmd{}, "reconciliation")
	c.Register(&parseCmd{}, "reconciliation")

	c.Register(&showCmd{}, "snapshots")
	c.Register(&holdersCmd{}, "snapshots")
	c.Register(&extractCmd{}, "snapshots")

	c.Register(&serveCmd{}, "service")

	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var dataDir = flag.String("data-dir", "", "Folder of snapshots and caches, overrides FUNDMATE_DATA_DIR")
var storeKind = flag.String("store", "", "Snapshot store, file or sqlite, overrides FUNDMATE_STORE")
var verbose = flag.Bool("v", false, "Log at debug level")

// priceCacheTTL is the lifetime of today's memoized prices.
const priceCacheTTL = 15 * time.Minute

// app holds what subcommands share. It is built from the configuration
// and the global flags.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *fundmate.Registry
	aliases  fundmate.AliasTable
	store    store.Store
	prices   *quote.Cached // nil without a price source
	fx       *quote.FXRates
}

// openApp loads the configuration and opens the store.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if *dataDir != "" {
		if cfg.DataDir, err = filepath.Abs(*dataDir); err != nil {
			return nil, err
		}
		cfg.DBPath = filepath.Join(cfg.DataDir, "fundmate.db")
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Dir: cfg.LogDir})
	logger.SetGlobalLogger(log)

	hkats := map[string]string{}
	if err := readJSON(cfg.HKATSFile, &hkats); err != nil {
		return nil, err
	}
	aliases := map[string]map[string]string{}
	if err := readJSON(cfg.AliasFile, &aliases); err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		log:      log,
		registry: fundmate.DefaultRegistry(quote.Resolver(hkats)),
		aliases:  fundmate.AliasTable{},
	}
	for broker, table := range aliases {
		for alias, canonical := range table {
			a.aliases.Add(broker, alias, canonical)
		}
	}

	location := cfg.DataDir
	if cfg.Store == "sqlite" {
		location = cfg.DBPath
	}
	if a.store, err = store.Open(cfg.Store, location, a.registry, log); err != nil {
		return nil, err
	}

	if cfg.FXURL != "" {
		a.fx = quote.NewFXRates(cfg.FXURL, quote.Daily(filepath.Join(cfg.DataDir, "cache", "fx"), log))
	}
	if svc := a.priceService(); svc != nil {
		a.prices = quote.NewCached(svc, priceCacheTTL)
		if err := a.prices.Load(a.priceCachePath()); err != nil {
			log.Warn().Err(err).Msg("price cache ignored")
		}
	}
	return a, nil
}

func (a *app) priceCachePath() string {
	return filepath.Join(a.cfg.DataDir, "cache", "prices.msgpack")
}

// priceService assembles the configured price sources, nil for none.
func (a *app) priceService() fundmate.PriceService {
	var svc fundmate.PriceService
	switch a.cfg.PriceSource {
	case "none":
		return nil
	case "http":
		svc = &quote.HTTP{URL: a.cfg.PriceURL, Client: quote.Daily(filepath.Join(a.cfg.DataDir, "cache", "http"), a.log)}
	default:
		chain := quote.Chain{quote.NewYahoo(a.log)}
		if a.cfg.PriceURL != "" {
			chain = append(chain, &quote.HTTP{URL: a.cfg.PriceURL, Client: quote.Daily(filepath.Join(a.cfg.DataDir, "cache", "http"), a.log)})
		}
		svc = chain
	}
	if a.cfg.PriceRPS > 0 {
		svc = quote.NewLimited(svc, a.cfg.PriceRPS, 1)
	}
	return svc
}

// converter returns the FX source, or nil when none is configured.
func (a *app) converter() store.Converter {
	if a.fx == nil {
		return nil
	}
	return a.fx
}

// reconciler builds the orchestrator from the configuration.
func (a *app) reconciler() (*fundmate.Reconciler, error) {
	policy, err := fundmate.ParseUnmatchedPolicy(a.cfg.Unmatched)
	if err != nil {
		return nil, err
	}
	r := &fundmate.Reconciler{
		Matcher:    fundmate.NewMatcher(a.registry, a.aliases),
		Policy:     policy,
		AllowShort: a.cfg.AllowShort,
		Workers:    a.cfg.AccountWorkers,
		Logger:     a.log,
	}
	if a.prices != nil {
		r.Prices = &fundmate.PriceRefresher{
			Service: a.prices,
			Workers: a.cfg.PriceWorkers,
			Timeout: a.cfg.PriceTimeout,
			Logger:  a.log,
		}
	}
	return r, nil
}

// pipeline builds the reconciliation workflow.
func (a *app) pipeline() (*pipeline.Pipeline, error) {
	r, err := a.reconciler()
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		Store:         a.store,
		Reconciler:    r,
		TCDir:         a.cfg.TCDir,
		DefaultBroker: a.cfg.DefaultBroker,
		ReclassifyMMF: a.cfg.ReclassifyMMF,
		FX:            a.converter(),
		Log:           a.log,
	}, nil
}

// Close saves the price cache and closes the store.
func (a *app) Close() error {
	var errs []error
	if a.prices != nil {
		errs = append(errs, a.prices.Save(a.priceCachePath()))
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// readJSON decodes the optional file name into v.
func readJSON(name string, v any) error {
	if name == "" {
		return nil
	}
	b, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("configuration file %q does not exist", name)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid configuration file %q: %w", name, err)
	}
	return nil
}

// printMarkdown renders md for the terminal.
func printMarkdown(md string) {
	fmt.Println(renderer.Terminal(md, 0))
}

// failf prints an error and returns the failure status.
func failf(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}
