package cli

import (
	"github.com/spf13/cobra"

	"piperun/internal/pages"
)

func newPagesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Serve or publish the static site",
		Long: `The site is the public directory produced by the deploy stage. It is
published automatically when deploy succeeds; these commands serve the
published site locally or publish the workspace's public directory by hand.`,
	}
	cmd.AddCommand(
		newPagesServeCommand(app),
		newPagesPublishCommand(app),
	)
	return cmd
}

func newPagesServeCommand(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the published site over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = app.Config.Pages.Addr
			}
			srv := pages.NewServer(app.Config.SitePath(), addr)
			app.Printer.Info("serving %s on %s", app.Config.SitePath(), srv.Addr())
			if err := srv.ListenAndServe(cmd.Context()); err != nil {
				return app.failure(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func newPagesPublishCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish the workspace's public directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workdir, err := app.workdir()
			if err != nil {
				return app.failure(err)
			}
			publisher := pages.NewPublisher(app.Config.Pages.Stage, app.Config.Pages.Dir, app.Config.SitePath())
			n, err := publisher.Publish(workdir)
			if err != nil {
				return app.failure(err)
			}
			app.Printer.Success("published %d files to %s", n, publisher.SiteDir)
			return nil
		},
	}
}
