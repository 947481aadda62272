package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethpandaops/mlbdfs/pkg/flatten"
	"github.com/ethpandaops/mlbdfs/pkg/registry"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the source tables and the flatten steps",
	Long: `Shows every table a run reads with the columns it must carry, where the
registry says it is scraped from, and the order the flatten steps run in.`,
	RunE: runTables,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	config, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	reg, err := registry.New(&config.Registry)
	if err != nil {
		return err
	}

	flattener, err := flatten.NewFlattener(logger, &config.Flatten, nil)
	if err != nil {
		return err
	}

	plan, err := flattener.Plan()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	registered := make(map[string]registry.Table)
	for _, t := range reg.Tables() {
		registered[t.Name] = t
	}

	inputs := flattener.Schema().Inputs
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := newTable(w, []string{"Table", "Filename", "Required Columns", "Renamed", "URL"})
	for _, name := range names {
		filename, renamed, url := name, "-", ""
		if t, ok := registered[name]; ok {
			if t.Filename != "" {
				filename = t.Filename
			}
			if len(t.Columns) > 0 {
				renamed = strconv.Itoa(len(t.Columns))
			}
			url = t.URL
		}
		sources.Append([]string{name, filename + ".csv", strconv.Itoa(len(inputs[name])), renamed, url})
	}
	sources.Render()

	fmt.Fprintln(w)

	steps := newTable(w, []string{"#", "Step", "Runs After"})
	for i, step := range plan {
		steps.Append([]string{strconv.Itoa(i + 1), step.Name, strings.Join(step.DependsOn, ", ")})
	}
	steps.Render()

	return nil
}
