package cli

import (
	"github.com/spf13/cobra"

	"piperun/internal/lifecycle"
	"piperun/internal/output"
	"piperun/internal/router"
)

func newPlanCommand(app *App) *cobra.Command {
	var (
		file   string
		ref    string
		stages []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which stages would run",
		Long: `Show the stages of the pipeline in execution order and whether each
would run or be skipped for the ref. Nothing is executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := cmd.Flags().Changed("file")
			if explicit {
				app.Config.PipelineFile = file
			}
			if ref != "" {
				app.Config.Ref = ref
			}

			p, _, err := app.loadPipeline(explicit)
			if err != nil {
				return app.failure(err)
			}
			workdir, err := app.workdir()
			if err != nil {
				return app.failure(err)
			}
			resolved, err := router.ResolveRef(cmd.Context(), app.Config.Ref, workdir)
			if err != nil {
				app.Printer.Error("%v", err)
				return NewExitError(lifecycle.ExitConfig)
			}

			r := router.NewRouter(resolved)
			r.Select(stages...)
			plan, err := r.Plan(p)
			if err != nil {
				return app.failure(err)
			}

			lines := make([]output.StageLine, 0, len(plan))
			for _, entry := range plan {
				line := output.StageLine{Name: entry.Stage.Name, Phase: entry.Stage.Phase, Status: "run"}
				if entry.Skip {
					line.Status = "skip"
					line.Detail = entry.Reason
				}
				lines = append(lines, line)
			}
			app.Printer.Plan(resolved, lines)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "pipeline file (default .piperun.yml)")
	cmd.Flags().StringVar(&ref, "ref", "", "ref to plan for (default CI_COMMIT_REF_NAME or the current git branch)")
	cmd.Flags().StringSliceVarP(&stages, "stage", "s", nil, "plan only the named stages")
	return cmd
}
