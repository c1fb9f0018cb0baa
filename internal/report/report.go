// Package report formats the statistics of a finished simulation run.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/LeJamon/ackchain-sim/internal/core/sim"
)

// ErrEmptyName is returned when a report without a name is written to disk.
var ErrEmptyName = errors.New("report has no name")

var ordinals = [sim.TrackedPositions]string{"1st", "2nd", "3rd"}

// Report is the outcome of one run. It is the unit stored in the archive.
type Report struct {
	Name      string     `codec:"name"`
	Params    sim.Params `codec:"params"`
	Stats     sim.Stats  `codec:"stats"`
	Generated time.Time  `codec:"generated"`
	// Aborted is set when the run was cancelled before the end time.
	Aborted bool `codec:"aborted"`
}

// New builds a report for a run.
func New(p sim.Params, s sim.Stats, generated time.Time) *Report {
	return &Report{
		Name:      p.Name(),
		Params:    p,
		Stats:     s,
		Generated: generated.UTC(),
	}
}

// Throughput is the confirmed transactions per simulated second.
func (r *Report) Throughput() float64 { return r.Stats.Throughput() }

// MainDelaySeconds is the average main block finalization delay.
func (r *Report) MainDelaySeconds() float64 { return r.Stats.AvgMainDelay().Seconds() }

// BatchDelaySeconds is the average must-include delay of the batch block at
// position pos of its period.
func (r *Report) BatchDelaySeconds(pos int) float64 { return r.Stats.AvgBatchDelay(pos).Seconds() }

// WriteSummary writes the console form of the report.
func (r *Report) WriteSummary(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("Confirmed %d txns in %d minutes\n", r.Stats.ConfirmedTx, r.Params.DurationMin)
	ew.printf("Total Throughput : %.2f txns per sec\n", r.Throughput())
	r.writeBody(ew)
	r.writeCounters(ew)
	return ew.err
}

// WriteTo writes the file form of the report, headed by its name.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	ew := &errWriter{w: w}
	ew.printf("%s\n", r.Name)
	ew.printf("Confirmed %d txns in %d minutes\n", r.Stats.ConfirmedTx, r.Params.DurationMin)
	ew.printf("Total Throughput (txns per sec) | %.2f\n", r.Throughput())
	r.writeBody(ew)
	r.writeCounters(ew)
	return ew.n, ew.err
}

func (r *Report) writeBody(ew *errWriter) {
	ew.printf("Avg. MustInclude blocks per R_block %.2f\n", r.Stats.AvgMustIncludePerMain())
	ew.printf("Avg. time between R_block creation and R-markers to appear on all A-chains %.3f secs\n",
		r.MainDelaySeconds())
	for pos, ord := range ordinals {
		ew.printf("Avg. time between %s Txn block creation and it becoming a MustInclude %.3f secs\n",
			ord, r.BatchDelaySeconds(pos))
	}
}

func (r *Report) writeCounters(ew *errWriter) {
	s := r.Stats
	ew.printf("R_blocks created %d | Txn blocks created %d | A_blocks created %d\n",
		s.MainBlocks, s.BatchBlocks, s.AckBlocks)
	ew.printf("R_blocks finalized %d | Orphans dropped %d | Reorgs %d | Events %d\n",
		s.MainFinalized, s.Orphans, s.Reorgs, s.Events)
	if r.Aborted {
		ew.printf("Run aborted at %.3f secs\n", s.Elapsed.Seconds())
	}
}

// Save writes the report file into dir and returns its path.
func (r *Report) Save(dir string) (string, error) {
	if r.Name == "" {
		return "", ErrEmptyName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, r.Name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", path, err)
	}
	return path, nil
}

// WriteTable writes one row per report, ordered by name.
func WriteTable(w io.Writer, reports []*Report) error {
	sorted := make([]*Report, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCONFIRMED\tTPS\tMI/R\tR DELAY\tTB1 DELAY\tTB2 DELAY\tTB3 DELAY")
	for _, r := range sorted {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			r.Name, r.Stats.ConfirmedTx, r.Throughput(), r.Stats.AvgMustIncludePerMain(),
			r.MainDelaySeconds(), r.BatchDelaySeconds(0), r.BatchDelaySeconds(1), r.BatchDelaySeconds(2))
	}
	return tw.Flush()
}

type errWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	n, err := fmt.Fprintf(ew.w, format, args...)
	ew.n += int64(n)
	ew.err = err
}
