package cli

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LeJamon/ackchain-sim/internal/core/sim"
	"github.com/LeJamon/ackchain-sim/internal/report"
)

// sweepKeys are the parameters a sweep can vary. They are exactly the ones
// encoded in report names, so every combination gets its own report.
var sweepKeys = map[string]func(p *sim.Params, v int){
	"N":        func(p *sim.Params, v int) { p.Nodes = v },
	"TBS":      func(p *sim.Params, v int) { p.BatchKiB = v },
	"IAR":      func(p *sim.Params, v int) { p.MainIntervalSec = v },
	"AC":       func(p *sim.Params, v int) { p.AckChains = v },
	"IAA":      func(p *sim.Params, v int) { p.AckIntervalSec = v },
	"duration": func(p *sim.Params, v int) { p.DurationMin = v },
}

type axis struct {
	key    string
	values []int
}

func newSweepCmd(opts *options) *cobra.Command {
	var (
		vary     []string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a simulation for every combination of parameter values",
		Long: `Run one simulation per combination of the --vary lists, in parallel. Parameters
not varied take their configured value. Each run writes its own report and a
summary table is printed at the end.`,
		Example: `  acksim sweep --vary AC=8,16,32 --vary IAA=5,10 --duration 60`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			axes, err := parseAxes(vary)
			if err != nil {
				return err
			}
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
			}
			return runSweep(cmd, opts, axes, parallel)
		},
	}
	cmd.Flags().StringArrayVar(&vary, "vary", nil, "KEY=v1,v2,... with KEY one of N, TBS, IAR, AC, IAA, duration (repeatable)")
	cmd.Flags().IntVar(&parallel, "parallel", runtime.NumCPU(), "simulations run at the same time")
	return cmd
}

func parseAxes(specs []string) ([]axis, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --vary is required")
	}
	seen := make(map[string]bool)
	axes := make([]axis, 0, len(specs))
	for _, spec := range specs {
		key, list, ok := strings.Cut(spec, "=")
		if !ok || list == "" {
			return nil, fmt.Errorf("invalid --vary %q: expected KEY=v1,v2", spec)
		}
		if _, ok := sweepKeys[key]; !ok {
			return nil, fmt.Errorf("invalid --vary key %q (valid: %s)", key, strings.Join(sweepKeyNames(), ", "))
		}
		if seen[key] {
			return nil, fmt.Errorf("--vary %s given twice", key)
		}
		seen[key] = true

		a := axis{key: key}
		dup := make(map[int]bool)
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if dup[v] {
				return nil, fmt.Errorf("duplicate value %d for %s", v, key)
			}
			dup[v] = true
			a.values = append(a.values, v)
		}
		axes = append(axes, a)
	}
	return axes, nil
}

func sweepKeyNames() []string {
	names := make([]string, 0, len(sweepKeys))
	for k := range sweepKeys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// combinations expands the cartesian product of axes over base. The last
// axis varies fastest.
func combinations(base sim.Params, axes []axis) []sim.Params {
	out := []sim.Params{base}
	for _, a := range axes {
		set := sweepKeys[a.key]
		next := make([]sim.Params, 0, len(out)*len(a.values))
		for _, p := range out {
			for _, v := range a.values {
				q := p
				set(&q, v)
				next = append(next, q)
			}
		}
		out = next
	}
	return out
}

func runSweep(cmd *cobra.Command, opts *options, axes []axis, parallel int) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	combos := combinations(s.cfg.Params(), axes)
	for _, p := range combos {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("combination %s: %w", p.Name(), err)
		}
	}
	if s.trace != nil {
		s.log.Warn().Msg("Tracing is disabled for sweeps")
	}
	s.log.Info().Int("runs", len(combos)).Int("parallel", parallel).Msg("Sweep started")

	ctx, stop := signalContext(cmd)
	defer stop()

	reports := make([]*report.Report, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, p := range combos {
		i, p := i, p
		g.Go(func() error {
			r, err := s.simulate(gctx, p, false)
			if err != nil {
				return fmt.Errorf("run %s: %w", p.Name(), err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range reports {
		if err := s.publish(ctx, r); err != nil {
			return err
		}
	}
	return report.WriteTable(s.out, reports)
}
