package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/LeJamon/ackchain-sim/internal/config"
	"github.com/LeJamon/ackchain-sim/internal/core/sim"
	applog "github.com/LeJamon/ackchain-sim/internal/log"
	"github.com/LeJamon/ackchain-sim/internal/report"
	"github.com/LeJamon/ackchain-sim/internal/storage/archive"
)

var (
	now = time.Now

	openArchive = func(cfg config.ArchiveConfig) (*archive.Archive, error) {
		return archive.Open(archive.Options{
			Backend:     cfg.Backend,
			Path:        cfg.Path,
			CacheSize:   cfg.CacheSize,
			Compression: cfg.Compression,
		})
	}
)

// session is the state shared by the commands of one invocation.
type session struct {
	cfg     *config.Config
	out     io.Writer
	log     zerolog.Logger
	trace   *zerolog.Logger
	archive *archive.Archive
}

func newSession(cmd *cobra.Command, opts *options) (*session, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := applog.Init(cmd.ErrOrStderr(), cfg.Output.LogLevel, cfg.Output.LogJSON); err != nil {
		return nil, err
	}
	s := &session{
		cfg: cfg,
		out: cmd.OutOrStdout(),
		log: applog.WithComponent("cli"),
	}
	if path := cfg.GetConfigPath(); path != "" {
		s.log.Info().Str("path", path).Msg("Configuration loaded")
	}

	if cfg.Output.Trace {
		tl, err := applog.New(cmd.OutOrStdout(), "debug", cfg.Output.LogJSON)
		if err != nil {
			return nil, err
		}
		tl = applog.Component(tl, "trace")
		s.trace = &tl
	}

	if cfg.Archive.Enabled() {
		a, err := openArchive(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.archive = a
		s.log.Info().Str("backend", a.Backend()).Msg("Archive opened")
	}
	return s, nil
}

func (s *session) Close() {
	if s.archive == nil {
		return
	}
	if err := s.archive.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close archive")
	}
}

// simulate runs one simulation. On cancellation the partial report is
// returned, marked aborted, together with the context error.
func (s *session) simulate(ctx context.Context, p sim.Params, trace bool) (*report.Report, error) {
	simulation, err := sim.NewSimulation(p)
	if err != nil {
		return nil, err
	}
	if trace && s.trace != nil {
		simulation.Collectors.Add(sim.NewTraceCollector(*s.trace))
	}

	s.log.Info().
		Str("name", p.Name()).
		Int64("seed", p.Seed).
		Int("peers", simulation.Size()).
		Msg("Simulation started")
	start := now()

	stats, err := simulation.Run(ctx)
	r := report.New(p, stats, now())
	if err != nil {
		r.Aborted = true
		return r, err
	}
	s.log.Info().
		Str("name", p.Name()).
		Uint64("events", stats.Events).
		Uint64("confirmed", stats.ConfirmedTx).
		Dur("wall", now().Sub(start)).
		Msg("Simulation finished")
	return r, nil
}

// publish writes the report file and archives the report, as configured.
func (s *session) publish(ctx context.Context, r *report.Report) error {
	if s.cfg.Output.WriteReport {
		path, err := r.Save(s.cfg.Output.Dir)
		if err != nil {
			return err
		}
		s.log.Info().Str("path", path).Msg("Report written")
	}
	if s.archive != nil {
		if err := s.archive.Put(ctx, r); err != nil {
			return err
		}
		s.log.Info().Str("name", r.Name).Msg("Report archived")
	}
	return nil
}

func (s *session) requireArchive() error {
	if s.archive == nil {
		return fmt.Errorf("no archive configured (set --archive or archive.backend)")
	}
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
