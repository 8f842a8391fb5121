package cli

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newArtifactsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and prune stored artifacts",
	}
	cmd.AddCommand(
		newArtifactsListCommand(app),
		newArtifactsPruneCommand(app),
	)
	return cmd
}

func newArtifactsListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list <run-id|latest>",
		Short: "List the artifacts of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			if runID == "latest" {
				rec, err := app.lookupRun(runID)
				if err != nil {
					return err
				}
				runID = rec.RunID
			}

			collector, err := app.collector()
			if err != nil {
				return app.failure(err)
			}
			manifests, err := collector.Manifests(cmd.Context(), runID)
			if err != nil {
				return app.failure(err)
			}
			if len(manifests) == 0 {
				app.Printer.Info("no artifacts stored for %s", runID)
				return nil
			}

			now := app.Now()
			for _, m := range manifests {
				expiry := "never expires"
				if m.ExpiresAt != nil {
					expiry = "expires " + humanize.RelTime(*m.ExpiresAt, now, "ago", "from now")
				}
				if m.Expired(now) {
					expiry = "expired " + humanize.RelTime(*m.ExpiresAt, now, "ago", "from now")
				}
				app.Printer.Heading(m.Stage)
				app.Printer.Info("%d files, %s, %s", len(m.Files), humanize.IBytes(uint64(m.Size())), expiry)
				for _, f := range m.Files {
					app.Printer.Info("  %-48s %s", f.Path, humanize.IBytes(uint64(f.Size)))
				}
			}
			return nil
		},
	}
}

func newArtifactsPruneCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			collector, err := app.collector()
			if err != nil {
				return app.failure(err)
			}
			removed, err := collector.Prune(cmd.Context(), app.Now())
			if err != nil {
				return app.failure(err)
			}
			for _, m := range removed {
				app.Printer.Info("removed %s/%s (expired %s)", m.RunID, m.Stage, m.ExpiresAt.Format(time.RFC3339))
			}
			app.Printer.Success("pruned %d artifact sets", len(removed))
			return nil
		},
	}
}
