// Package cli provides the Cobra command-line interface for piperun.
//
// The CLI is built around [App], which carries configuration and the
// injectable collaborators commands need. Production code uses [NewApp];
// tests construct an App directly with mocks and call [NewRootCommand].
//
// Available commands:
//   - run: Execute the pipeline for a ref (build → test → deploy)
//   - validate: Check the pipeline file without running anything
//   - plan: Show which stages would run for a ref
//   - init: Write the built-in pipeline to the workspace
//   - runs: List and inspect recorded runs and their logs
//   - artifacts: List and prune stored artifacts
//   - pages: Serve or publish the static site produced by deploy
//   - version: Print the piperun version
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"piperun/internal/artifact"
	"piperun/internal/config"
	"piperun/internal/executor"
	"piperun/internal/lifecycle"
	"piperun/internal/output"
)

// Version is set at build time with -ldflags "-X piperun/internal/cli.Version=...".
var Version = "dev"

// App holds the dependencies shared by every command.
//
// Executor and Store are optional; when nil they are built from Config on
// first use. Tests set them to an [executor.MockExecutor] and an
// [artifact.MemoryStore].
type App struct {
	Config   *config.Config
	Printer  *output.Printer
	Executor executor.Executor
	Store    artifact.Store

	// Now is the clock used for run IDs and artifact expiry.
	Now func() time.Time
}

// NewApp creates an App for cfg printing to stdout.
func NewApp(cfg *config.Config) *App {
	printer := output.NewPrinter()
	if !cfg.Output.Color {
		printer = output.NewPlainPrinter(os.Stdout)
	}
	return &App{
		Config:  cfg,
		Printer: printer,
		Now:     time.Now,
	}
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	if app.Now == nil {
		app.Now = time.Now
	}

	rootCmd := &cobra.Command{
		Use:   "piperun",
		Short: "Run a build → test → deploy pipeline locally",
		Long: `piperun executes a declarative CI pipeline in the local workspace.

Stages run in order and the pipeline stops at the first failing command.
Artifacts declared by a stage are stored and fetched into the stages that
depend on them. The deploy stage only runs for the refs it allows; its
public directory is published as a static site.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var workdir string
	rootCmd.PersistentFlags().StringVarP(&workdir, "workdir", "C", "", "workspace directory (default from config)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if workdir != "" {
			app.Config.Workdir = workdir
		}
	}

	rootCmd.AddCommand(
		newRunCommand(app),
		newValidateCommand(app),
		newPlanCommand(app),
		newInitCommand(app),
		newRunsCommand(app),
		newArtifactsCommand(app),
		newPagesCommand(app),
		newVersionCommand(app),
	)
	return rootCmd
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the piperun version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app.Printer.Info("piperun %s", Version)
		},
	}
}

// ExecuteResult is the outcome of a CLI invocation.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// RunWithConfig runs the CLI with args against cfg and returns the exit
// code instead of exiting.
func RunWithConfig(ctx context.Context, cfg *config.Config, args []string) ExecuteResult {
	app := NewApp(cfg)
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		app.Printer.Error("%v", err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{}
}

// Execute loads configuration, runs the CLI with the process arguments and
// exits with the resulting code.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "piperun: %v\n", err)
		os.Exit(lifecycle.ExitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result := RunWithConfig(ctx, cfg, os.Args[1:])
	stop()
	os.Exit(result.ExitCode)
}
