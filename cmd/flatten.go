package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/ethpandaops/mlbdfs/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	flattenDate   string
	flattenDryRun bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var flattenCmd = &cobra.Command{
	Use:   "flatten",
	Short: "Flatten the current snapshot into training and validation tables",
	Long: `Loads every raw table under the storage data prefix, joins them onto the
daily fantasy slate and writes the training and validation tables for the run date.
Nothing is written if any table is missing or malformed.`,
	RunE: runFlatten,
}

func init() {
	rootCmd.AddCommand(flattenCmd)
	flattenCmd.Flags().StringVar(&flattenDate, "date", "", "run date as YYYY-MM-DD (default is today in the configured timezone)")
	flattenCmd.Flags().BoolVar(&flattenDryRun, "dry-run", false, "flatten without writing outputs")
}

func runFlatten(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	config, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	applyLogLevel(cmd, config)

	if flattenDate != "" {
		config.Flatten.RunDate = flattenDate
	}

	svc, err := engine.NewService(cmd.Context(), logger, config)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	report, err := svc.Run(cmd.Context(), engine.RunOptions{
		Trigger: engine.TriggerCLI,
		DryRun:  flattenDryRun,
	})
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)

	return nil
}

func printReport(w io.Writer, report *engine.Report) {
	stats := report.Stats

	fmt.Fprintf(w, "Run %s for %s (%s)\n\n", report.RunID, stats.RunDate, report.Duration.Round(time.Millisecond))

	stages := newTable(w, []string{"Step", "Rows", "Duration"})
	for _, stage := range stats.Stages {
		stages.Append([]string{stage.Step, strconv.Itoa(stage.Rows), stage.Duration.String()})
	}
	stages.Render()

	counts := newTable(w, []string{"Batters", "Joined", "No Park Factor", "No Result", "Train", "Valid"})
	counts.Append([]string{
		strconv.Itoa(stats.Batters),
		strconv.Itoa(stats.Joined),
		strconv.Itoa(stats.DroppedByParkFactor),
		strconv.Itoa(stats.DroppedByResultDate),
		strconv.Itoa(stats.Train),
		strconv.Itoa(stats.Valid),
	})
	counts.Render()

	names := make([]string, 0, len(report.Keys))
	for name := range report.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	header := "Written"
	if report.DryRun {
		header = "Would Write"
	}

	keys := newTable(w, []string{"Table", header})
	for _, name := range names {
		keys.Append([]string{name, report.Keys[name]})
	}
	keys.Render()
}
