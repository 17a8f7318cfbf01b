// Command transit-engine runs transit simulations headless, validates
// scenarios, and serves a live simulation over HTTP and WebSocket.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)
	rootCmd := &cobra.Command{
		Use:          "transit-engine",
		Short:        "Public transit simulation engine",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	a := &app{configPath: &configPath, logLevel: &logLevel}
	rootCmd.AddCommand(runCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(validateCmd(a))
	return rootCmd
}

func runCmd(a *app) *cobra.Command {
	var (
		ticks   int
		step    float64
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a scenario headless and write the simulation log as JSON",
		Long: "Run a scenario headless. The scenario is a YAML file, a CSV directory, or - to read\n" +
			"YAML from stdin; without an argument the configured scenario is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHeadless(cmd.InOrStdin(), cmd.OutOrStdout(), firstArg(args), ticks, step, outPath)
		},
	}
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 0, "number of ticks (default: scenario, then one day)")
	cmd.Flags().Float64VarP(&step, "step", "s", 0, "tick length in seconds (default: scenario, then config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the log to a file instead of stdout")
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [scenario]",
		Short: "Serve a live simulation over HTTP and WebSocket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), firstArg(args), addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default: config server.addr)")
	return cmd
}

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [scenario]",
		Short: "Check a scenario without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validate(cmd.InOrStdin(), cmd.OutOrStdout(), firstArg(args))
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
