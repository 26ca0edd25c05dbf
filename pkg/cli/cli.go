// Package cli provides the command-line interface for scenario-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"SCENARIO_RUNNER_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "scenario-runner",
		Usage:   "Behavior-driven scenario runner",
		Version: Version,
		Description: `Scenario Runner executes feature files written as scenarios of
JavaScript-evaluated steps.

Examples:
  scenario-runner run login.yaml
  scenario-runner run features/ --env staging
  scenario-runner run features/checkout.yaml:14
  scenario-runner run features/ --tags "tags.includes('smoke')"`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
