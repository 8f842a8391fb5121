package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"piperun/internal/pipeline"
)

func newInitCommand(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in pipeline to the workspace",
		Long: `Write the built-in build/test/deploy pipeline to the pipeline file so it
can be customized. An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.Config.PipelinePath()

			_, err := os.Stat(path)
			switch {
			case err == nil && !force:
				app.Printer.Error("%s already exists (use --force to overwrite)", path)
				return NewExitError(1)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return app.failure(err)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return app.failure(fmt.Errorf("create %s: %w", filepath.Dir(path), err))
			}
			if err := os.WriteFile(path, pipeline.Default(), 0644); err != nil {
				return app.failure(fmt.Errorf("write %s: %w", path, err))
			}
			app.Printer.Success("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing pipeline file")
	return cmd
}
