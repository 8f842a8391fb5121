// Package workflow runs the commands of a single pipeline stage.
//
// The [Runner] executes a stage's before_script and script lines one at a
// time through an [executor.Executor], echoing each command, streaming its
// output to the terminal and to a per-command log file, and stopping at the
// first command that exits non-zero.
//
// Key types:
//   - [Runner] executes one stage
//   - [Job] is everything the runner needs to know about the stage
//   - [Result] identifies the failing command, if any
package workflow
