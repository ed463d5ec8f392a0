package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectset/internal/dataset"
)

var splitsCmd = &cobra.Command{
	Use:   "splits <dataset.csv>",
	Short: "Show the walk-forward training and testing splits of a dataset",
	Long: `For every release after the first, training holds the rows of all
earlier releases and testing holds the rows of that release.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplits,
}

func runSplits(cmd *cobra.Command, args []string) error {
	rows, err := dataset.ReadFile(args[0])
	if err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Release", "Training", "%Buggy", "Testing", "%Buggy"})
	for _, s := range dataset.WalkForward(rows) {
		tbl.AppendRow(table.Row{
			s.Release,
			len(s.Training),
			fmt.Sprintf("%.1f", s.TrainingBuggyPct()),
			len(s.Testing),
			fmt.Sprintf("%.1f", s.TestingBuggyPct()),
		})
	}

	fmt.Println(tbl.Render())
	return nil
}
