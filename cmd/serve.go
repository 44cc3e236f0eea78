package cmd

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etnz/fundmate/internal/pipeline"
	"github.com/etnz/fundmate/server"
	"github.com/google/subcommands"
)

// serveCmd holds the flags for the 'serve' subcommand.
type serveCmd struct {
	addr     string
	schedule string
	runNow   bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve snapshots over HTTP and reconcile on a schedule" }
func (*serveCmd) Usage() string {
	return `fundmate serve [-addr <host:port>] [-schedule <cron>] [-now]

  Serves the stored snapshots as web pages and as a JSON api. With a
  schedule, the trade confirmation folder is reconciled periodically, for
  instance "30 18 * * MON-FRI".
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "Listen address, overrides FUNDMATE_HTTP_ADDR")
	f.StringVar(&c.schedule, "schedule", "", "Cron schedule of the reconciliation, overrides FUNDMATE_SCHEDULE")
	f.BoolVar(&c.runNow, "now", false, "Reconcile once at startup")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		return failf("Error: %v", err)
	}
	defer a.Close()
	if c.addr != "" {
		a.cfg.HTTPAddr = c.addr
	}
	if c.schedule != "" {
		a.cfg.Schedule = c.schedule
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Schedule != "" || c.runNow {
		p, err := a.pipeline()
		if err != nil {
			return failf("Error: %v", err)
		}
		job := &pipeline.Job{Pipeline: p}
		scheduler := server.NewScheduler(ctx, a.log)
		if a.cfg.Schedule != "" {
			if err := scheduler.AddJob(a.cfg.Schedule, job); err != nil {
				return failf("Invalid schedule %q: %v", a.cfg.Schedule, err)
			}
		}
		if c.runNow {
			// failures are logged, the server still starts
			_ = scheduler.RunNow(job)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := server.New(server.Config{
		Addr:        a.cfg.HTTPAddr,
		Store:       a.store,
		FX:          a.converter(),
		CORSOrigins: a.cfg.CORSOrigins,
		Log:         a.log,
	})
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			return failf("Server error: %v", err)
		}
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return failf("Shutdown error: %v", err)
		}
	}
	return subcommands.ExitSuccess
}
