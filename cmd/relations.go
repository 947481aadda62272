package cmd

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/mlbdfs/pkg/engine"
	"github.com/ethpandaops/mlbdfs/pkg/identity"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var relationsCmd = &cobra.Command{
	Use:   "relations",
	Short: "Report players missing from the player link table",
	Long: `Lists players that appear in a source table but not in the player link table,
and ids in the link table that map to more than one name.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		// Keep the report readable unless a level was asked for
		if !cmd.Flags().Changed("log-level") {
			logger.SetLevel(logrus.ErrorLevel)
		}
	},
	RunE: runRelations,
}

func init() {
	rootCmd.AddCommand(relationsCmd)
}

func runRelations(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	config, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	svc, err := engine.NewService(cmd.Context(), logger, config)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop() }()

	relations, err := svc.Relations(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	unlinked := relations.Unlinked

	fmt.Fprintf(w, "Unlinked players: %d\n", unlinked.Len())

	if unlinked.Len() > 0 {
		players := newTable(w, []string{"Name", "MLB ID", "FanGraphs ID"})
		for i := 0; i < unlinked.Len(); i++ {
			row := unlinked.Row(i)
			players.Append([]string{
				row.Get(identity.ColumnName).String(),
				row.Get(identity.ColumnMLBID).String(),
				row.Get(identity.ColumnFGID).String(),
			})
		}
		players.Render()
	}

	fmt.Fprintf(w, "\nConflicting ids: %d\n", len(relations.Conflicts))

	if len(relations.Conflicts) > 0 {
		conflicts := newTable(w, []string{"Column", "ID", "Names"})
		for _, c := range relations.Conflicts {
			conflicts.Append([]string{c.IDColumn, c.ID, strings.Join(c.Names, ", ")})
		}
		conflicts.Render()
	}

	return nil
}
