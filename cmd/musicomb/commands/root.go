package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alitavanaali/MusiComb/pkg/cli"
)

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	outputJSON  bool
	verbose     bool

	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "musicomb",
	Short: "Arrange MIDI fragments into songs",
	Long: `musicomb arranges pre-recorded MIDI fragments into a complete song.

Every repeat of every fragment is a candidate placed in its own bar-aligned
region. A scheduler keeps as many repeats as the intro, verse, chorus and
ending windows can hold, then the chosen repeats are merged into one track
per fragment and written as tune.mid, with every repeat on its own track in
tune_notmerged_sounds.mid.

Configuration is stored in ~/.musicomb/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Arrange into ~/.musicomb/output/<run id>/
  musicomb arrange -f song.yaml

  # Write to S3 through a context
  musicomb config add-context prod --backend s3 --bucket songs --region eu-west-1
  musicomb -c prod arrange -f song.yaml --json | jq .record.outcome

  # Find infeasible runs
  musicomb runs list --query '.outcome == "infeasible"'
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.musicomb/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(arrangeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	var err error
	globalConfig, err = cli.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getContext returns the context selected by -c, the current context, or
// the built-in local default.
func getContext() (*cli.Context, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig.ResolveContext(contextName)
}

func outputResult(result any) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
	})
}

// printReport prints a report unless a machine format was requested.
func printReport(r cli.Report, result any) error {
	if outputJSON || outputFile != "" {
		return outputResult(result)
	}
	fmt.Println(r.Render())
	return nil
}
