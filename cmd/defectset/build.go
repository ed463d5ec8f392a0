package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/pipeline"
	"github.com/rohankatakam/defectset/internal/storage"
)

var (
	buildProjects []string
	buildOutput   string
	buildNoStore  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the datasets of the configured projects",
	Long: `Clone or update every configured project, read its releases and bugs
from JIRA and write <output_dir>/<project>.csv.

Examples:
  # Build every configured project
  defectset build

  # Build one project into a custom directory
  defectset build --project syncope --output /tmp/datasets`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSliceVarP(&buildProjects, "project", "p", nil, "project to build (repeatable, default: all)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output directory (overrides build.output_dir)")
	buildCmd.Flags().BoolVar(&buildNoStore, "no-store", false, "skip persisting the build to the database")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if buildOutput != "" {
		cfg.Build.OutputDir = buildOutput
	}
	if err := cfg.ValidateOrError(); err != nil {
		return err
	}

	projects, err := selectProjects(cfg, buildProjects)
	if err != nil {
		return err
	}

	var store storage.Store
	if dsn := cfg.Storage.DSN(); dsn != "" && !buildNoStore {
		store, err = storage.Open(dsn, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	runner := pipeline.NewRunner(cfg, store, logger)
	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stdout.Fd())) {
		bar = newProgressBar(len(projects))
		runner.OnDone = func(pipeline.Report) { bar.Add(1) }
	}

	start := time.Now()
	reports, runErr := runner.Run(cmd.Context(), projects)
	finishProgress(bar)
	printReports(reports, time.Since(start))
	return runErr
}

// finishProgress clears the bar so the report table starts on a clean line.
func finishProgress(bar *progressbar.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}

func selectProjects(cfg *config.Config, names []string) ([]config.ProjectConfig, error) {
	if len(names) == 0 {
		return cfg.Projects, nil
	}
	selected := make([]config.ProjectConfig, 0, len(names))
	for _, name := range names {
		p, ok := cfg.Project(name)
		if !ok {
			return nil, fmt.Errorf("unknown project %q", name)
		}
		selected = append(selected, p)
	}
	return selected, nil
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("projects"),
		progressbar.OptionThrottle(time.Second),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{Saucer: "#", SaucerPadding: " ", BarStart: "|", BarEnd: "|"}),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printReports(reports []pipeline.Report, elapsed time.Duration) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Project", "Releases", "Main", "Rows", "Buggy", "Bugs", "Discarded", "Output"})

	var rows, failed int
	for _, r := range reports {
		if r.Err != nil {
			failed++
			tbl.AppendRow(table.Row{r.Project, "-", "-", "-", "-", "-", "-", "failed: " + r.Err.Error()})
			continue
		}
		rows += r.Rows
		tbl.AppendRow(table.Row{
			r.Project,
			r.Releases,
			r.Main,
			humanize.Comma(int64(r.Rows)),
			fmt.Sprintf("%s (%.1f%%)", humanize.Comma(int64(r.Buggy)), percent(r.Buggy, r.Rows)),
			r.Bugs,
			r.Discarded,
			r.Path,
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%d projects, %d failed", len(reports), failed), "", "", humanize.Comma(int64(rows))})

	fmt.Println(tbl.Render())
	fmt.Printf("Finished in %s\n", elapsed.Round(time.Millisecond))
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}
