package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/LeJamon/ackchain-sim/internal/config"
	"github.com/LeJamon/ackchain-sim/internal/core/sim"
)

// Version is reported by --version and the version command.
var Version = "0.1.0-dev"

// options holds the flags that are not forwarded to the config loader.
type options struct {
	configFile string
	noReport   bool
}

// NewRootCmd builds the acksim command tree. Running the root command runs a
// single simulation.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "acksim",
		Short: "acksim - multi-chain ack-ledger throughput simulator",
		Long: `acksim simulates block propagation and confirmation on a ledger made of a
main chain, a batch chain anchored to each main period, and a fixed number of
parallel ack-chains. A block is final once every ack-chain acknowledges it.
The run reports confirmed transactions, throughput and confirmation delays.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts)
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "conf", "", "configuration file path (toml, yaml or json)")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error, disabled)")
	pf.Bool("log-json", false, "write logs as JSON")
	addSimFlags(pf)
	pf.String("out", ".", "directory report files are written to")
	pf.Bool("trace", false, "print a line for every simulation event")
	pf.BoolVar(&opts.noReport, "no-report", false, "do not write the report file")
	pf.String("archive", "", "archive backend for reports (memory, pebble, leveldb, sqlite)")
	pf.String("archive-path", "", "archive database path")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newSweepCmd(opts))
	rootCmd.AddCommand(newReportsCmd(opts))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func addSimFlags(fs *pflag.FlagSet) {
	d := sim.DefaultParams()
	fs.Int("N", d.Nodes, "number of peers")
	fs.Int("TBS", d.BatchKiB, "batch block size in KiB")
	fs.Int("IAR", d.MainIntervalSec, "main block interarrival time in seconds")
	fs.Int("AC", d.AckChains, "number of ack-chains")
	fs.Int("IAA", d.AckIntervalSec, "ack block interarrival time in seconds")
	fs.Int("duration", d.DurationMin, "simulated duration in minutes")
	fs.Int64("seed", d.Seed, "random seed")
	fs.Int("batches", d.BatchesPerMain, "batch blocks per main block")
}

// loadConfig merges defaults, the config file, the environment and the
// command line flags.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if opts.noReport {
		cfg.Output.WriteReport = false
	}
	return cfg, nil
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
