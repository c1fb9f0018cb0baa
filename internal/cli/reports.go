package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LeJamon/ackchain-sim/internal/report"
)

func newReportsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect archived reports",
		Long:  `List, print and delete the reports stored in the configured archive.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived report names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, opts, func(ctx context.Context, s *session) error {
				names, err := s.archive.List(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(s.out, name)
				}
				return nil
			})
		},
	})

	var table bool
	show := &cobra.Command{
		Use:   "show NAME...",
		Short: "Print archived reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, opts, func(ctx context.Context, s *session) error {
				if table {
					return showTable(ctx, s, args)
				}
				for i, name := range args {
					r, err := s.archive.Get(ctx, name)
					if err != nil {
						return err
					}
					if i > 0 {
						fmt.Fprintln(s.out)
					}
					if _, err := r.WriteTo(s.out); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	show.Flags().BoolVar(&table, "table", false, "print a summary table instead of the full reports")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete archived reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, opts, func(ctx context.Context, s *session) error {
				for _, name := range args {
					if err := s.archive.Delete(ctx, name); err != nil {
						return err
					}
					s.log.Info().Str("name", name).Msg("Report deleted")
				}
				return nil
			})
		},
	})
	return cmd
}

func withArchive(cmd *cobra.Command, opts *options, fn func(ctx context.Context, s *session) error) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.requireArchive(); err != nil {
		return err
	}
	return fn(cmd.Context(), s)
}

func showTable(ctx context.Context, s *session, names []string) error {
	reports := make([]*report.Report, 0, len(names))
	for _, name := range names {
		r, err := s.archive.Get(ctx, name)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}
	return report.WriteTable(s.out, reports)
}
