package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single simulation",
		Long: `Run one simulation with the configured parameters, print the report and
write it to a file named after the parameters. This is the default command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts)
		},
	}
}

func runSimulation(cmd *cobra.Command, opts *options) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	r, err := s.simulate(ctx, s.cfg.Params(), true)
	if r == nil {
		return err
	}
	if werr := r.WriteSummary(s.out); werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("simulation interrupted: %w", err)
	}
	return s.publish(ctx, r)
}
