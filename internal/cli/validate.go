package cli

import (
	"github.com/spf13/cobra"
)

func newValidateCommand(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline file",
		Long: `Parse the pipeline file, check it against the pipeline schema and
validate the stage graph. Every problem is reported and the command exits
with 78 when any is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := cmd.Flags().Changed("file")
			if explicit {
				app.Config.PipelineFile = file
			}

			p, path, err := app.loadPipeline(explicit)
			if err != nil {
				return app.failure(err)
			}
			app.Printer.Success("%s is valid: %d stages (%v)", path, len(p.Stages), p.Names())
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "pipeline file (default .piperun.yml)")
	return cmd
}
