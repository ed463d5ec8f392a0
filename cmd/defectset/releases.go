package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectset/internal/storage"
)

var releasesCmd = &cobra.Command{
	Use:   "releases <project>",
	Short: "Show the release timeline of the latest stored build",
	Args:  cobra.ExactArgs(1),
	RunE:  runReleases,
}

func runReleases(cmd *cobra.Command, args []string) error {
	dsn := cfg.Storage.DSN()
	if dsn == "" {
		return fmt.Errorf("storage is disabled, no stored builds to show")
	}

	store, err := storage.Open(dsn, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	build, err := store.LatestBuild(ctx, args[0])
	if err != nil {
		return fmt.Errorf("no build of %s: %w", args[0], err)
	}

	releases, err := store.GetReleases(ctx, build.ID)
	if err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"ID", "Name", "Tag", "Git Date", "Tracker Date", "Main"})
	for _, r := range releases {
		trackerDate := "-"
		if !r.TrackerDate.IsZero() {
			trackerDate = r.TrackerDate.Format("2006-01-02")
		}
		isMain := "yes"
		if r.Dropped {
			isMain = "no"
		}
		tbl.AppendRow(table.Row{r.ReleaseID, r.Name, r.Tag, r.GitDate.Format("2006-01-02"), trackerDate, isMain})
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("build %s", build.ID), "", humanize.Time(build.CreatedAt), "", fmt.Sprintf("%d/%d", build.MainReleases, build.Releases)})

	fmt.Println(tbl.Render())
	return nil
}
