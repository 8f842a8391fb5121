package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"piperun/internal/logstore"
	"piperun/internal/status"
)

func newRunsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded pipeline runs",
	}
	cmd.AddCommand(
		newRunsListCommand(app),
		newRunsShowCommand(app),
		newRunsLogsCommand(app),
		newRunsEventsCommand(app),
	)
	return cmd
}

func newRunsListCommand(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := status.NewReader(app.Config.StatePath()).List()
			if err != nil {
				return app.failure(err)
			}
			if len(records) == 0 {
				app.Printer.Info("no runs recorded")
				return nil
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			for _, rec := range records {
				app.Printer.Info("%-24s %-9s %-20s %s", rec.RunID, rec.Status, rec.Ref, rec.Duration().Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n runs")
	return cmd
}

func newRunsShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id|latest>",
		Short: "Show the stages of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := app.lookupRun(args[0])
			if err != nil {
				return err
			}

			app.Printer.Info("Run:      %s", rec.RunID)
			app.Printer.Info("Ref:      %s", rec.Ref)
			app.Printer.Info("Pipeline: %s", rec.Pipeline)
			app.Printer.Info("Status:   %s (exit %d)", rec.Status, rec.ExitCode)
			app.Printer.Info("Started:  %s", rec.StartedAt.Format(time.RFC3339))
			if d := rec.Duration(); d > 0 {
				app.Printer.Info("Duration: %s", d.Round(time.Millisecond))
			}
			if rec.Failure != nil {
				app.Printer.Error("failed in %s: %s", rec.Failure.Stage, rec.Failure.Message)
			}
			for i, s := range rec.Stages {
				line := fmt.Sprintf("[%d] %-12s %-9s %s", i+1, s.Name, s.Status, s.Duration.Round(time.Millisecond))
				if s.Reason != "" {
					line += "  " + s.Reason
				}
				app.Printer.Info("%s", line)
				for _, a := range s.Artifacts {
					app.Printer.Info("      %s", a)
				}
			}
			return nil
		},
	}
}

func newRunsLogsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <run-id|latest> [stage]",
		Short: "Print the command logs of a run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := app.lookupRun(args[0])
			if err != nil {
				return err
			}
			stage := ""
			if len(args) == 2 {
				stage = args[1]
			}

			order := make([]string, len(rec.Stages))
			for i, s := range rec.Stages {
				order[i] = s.Name
			}
			files, err := logstore.New(app.Config.StatePath()).Logs(rec.RunID, stage, order)
			if err != nil {
				return app.failure(err)
			}
			if len(files) == 0 {
				app.Printer.Info("no logs recorded")
				return nil
			}

			current := ""
			for _, f := range files {
				if f.Stage != current {
					current = f.Stage
					app.Printer.Heading("== " + current)
				}
				data, err := os.ReadFile(f.Path)
				if err != nil {
					return app.failure(err)
				}
				app.Printer.Writer().Write(data) //nolint:errcheck
			}
			return nil
		},
	}
}

func newRunsEventsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "events <run-id|latest>",
		Short: "Print the structured event log of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := app.lookupRun(args[0])
			if err != nil {
				return err
			}

			f, err := os.Open(logstore.New(app.Config.StatePath()).EventsPath(rec.RunID))
			if errors.Is(err, fs.ErrNotExist) {
				app.Printer.Info("no events recorded")
				return nil
			}
			if err != nil {
				return app.failure(err)
			}
			defer f.Close()

			for e := range logstore.NewEventParser().Parse(f) {
				line := fmt.Sprintf("%s %-5s %s", e.Time.Format(time.TimeOnly), e.Level, e.Message)
				keys := make([]string, 0, len(e.Fields))
				for k := range e.Fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					line += fmt.Sprintf(" %s=%v", k, e.Fields[k])
				}
				app.Printer.Info("%s", line)
			}
			return nil
		},
	}
}

// lookupRun loads a run record by ID, or the newest for "latest".
func (app *App) lookupRun(id string) (*status.RunRecord, error) {
	reader := status.NewReader(app.Config.StatePath())

	var (
		rec *status.RunRecord
		err error
	)
	if id == "latest" {
		rec, err = reader.Latest()
	} else {
		rec, err = reader.Get(id)
	}
	if errors.Is(err, status.ErrRunNotFound) {
		app.Printer.Error("run %s not found", id)
		return nil, NewExitError(1)
	}
	if err != nil {
		return nil, app.failure(err)
	}
	return rec, nil
}
