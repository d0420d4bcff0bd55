// Package cli wires configuration, logging, metrics and the stdio worker
// into the revforecast command line.
package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree. Running the root command without a
// subcommand runs forecast.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &forecastOptions{}

	root := &cobra.Command{
		Use:   "revforecast",
		Short: "Forecast daily revenue from a JSON history on stdin",
		Long: `revforecast reads {"historical_data": [...], "horizon": N} from standard input
and writes {"success": ..., "predictions": [...], "model": ...} to standard output.
Diagnostics go to standard error. The exit status is 1 on any failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runForecast(cmd, opts)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default: $REVFORECAST_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log_level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "Override the learned tier: nhits or ses")

	root.AddCommand(newForecastCommand(opts), newVersionCommand())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	root := NewRootCommand(stdin, stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
