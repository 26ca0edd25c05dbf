package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/devicelab-dev/scenario-runner/pkg/config"
	"github.com/devicelab-dev/scenario-runner/pkg/executor"
	"github.com/devicelab-dev/scenario-runner/pkg/feature"
	"github.com/devicelab-dev/scenario-runner/pkg/logger"
	"github.com/devicelab-dev/scenario-runner/pkg/report"
	"github.com/urfave/cli/v2"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run feature files",
	ArgsUsage: "<feature-file-or-folder>...",
	Description: `Run one or more feature files.

Path suffixes select scenarios within a feature:
  features/login.yaml:14        scenario at line 14
  features/login.yaml@smoke     scenarios tagged @smoke
  features/login.yaml~retry.*   scenarios whose name matches the regex

Reports are generated in the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to workspace config.yaml",
		},
		&cli.StringFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment name, selects the config-<env>.js layer",
		},
		&cli.StringFlag{
			Name:    "tags",
			Aliases: []string{"t"},
			Usage:   "Tag selector expression, e.g. \"tags.includes('smoke')\"",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Run features on N parallel workers",
			Value:   1,
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Run only scenarios whose name matches the regex",
		},
		&cli.IntFlag{
			Name:  "line",
			Usage: "Run only the scenario at the given line",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Classify scenarios without executing steps",
		},
		&cli.BoolFlag{
			Name:  "perf-mode",
			Usage: "Suppress per-scenario log capture",
		},
		&cli.BoolFlag{
			Name:  "no-config",
			Usage: "Skip the config.js script layers",
		},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one feature file or folder is required")
	}

	// Global flags live in the parent context when run as a subcommand
	getBool := func(name string) bool {
		if c.IsSet(name) {
			return c.Bool(name)
		}
		if len(c.Lineage()) > 1 && c.Lineage()[1] != nil {
			return c.Lineage()[1].Bool(name)
		}
		return c.Bool(name)
	}
	if getBool("no-ansi") {
		colorsEnabled = false
	}

	// Load workspace config, CLI flags take precedence
	configPath := c.String("config")
	var wsConfig *config.Config
	var err error
	if configPath != "" {
		wsConfig, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		wsConfig, err = config.LoadFromDir(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	env := c.String("env")
	if env == "" {
		env = wsConfig.Env
	}
	tagSelector := c.String("tags")
	if tagSelector == "" {
		tagSelector = wsConfig.TagSelector
	}
	workers := c.Int("workers")
	if !c.IsSet("workers") && wsConfig.Workers > 0 {
		workers = wsConfig.Workers
	}

	outputFlag := c.String("output")
	if outputFlag == "" {
		outputFlag = wsConfig.Output
	}
	outputDir, err := resolveOutputDir(outputFlag, c.Bool("flatten"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	logPath := filepath.Join(outputDir, "scenario-runner.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()

	logger.Info("=== Run started ===")
	logger.Info("Output directory: %s", outputDir)
	logger.Info("Environment: %s", env)

	configDir := "."
	if configPath != "" {
		configDir = filepath.Dir(configPath)
	}

	features, err := collectFeatures(c.Args().Slice(), wsConfig)
	if err != nil {
		logger.Error("Feature loading failed: %v", err)
		return err
	}
	logger.Info("Loaded %d feature(s)", len(features))

	// Flag-based selection applies to every loaded feature; per-path
	// suffixes set these on individual features at read time
	if name := c.String("name"); name != "" {
		for _, f := range features {
			f.CallName = name
		}
	}
	if c.IsSet("line") {
		for _, f := range features {
			f.CallLine = c.Int("line")
		}
	}

	fmt.Printf("\n%sSetup%s\n", color(colorBold), color(colorReset))
	fmt.Println(strings.Repeat("─", 40))
	printSetupSuccess(fmt.Sprintf("Found %d feature file(s)", len(features)))
	printSetupSuccess(fmt.Sprintf("Report directory: %s", outputDir))
	fmt.Printf("\n%sExecution%s\n", color(colorBold), color(colorReset))
	fmt.Println(strings.Repeat("─", 40))

	runner, err := executor.New(executor.RunnerConfig{
		OutputDir:       outputDir,
		ConfigDir:       configDir,
		Workers:         workers,
		TagSelector:     tagSelector,
		Env:             env,
		DryRun:          c.Bool("dry-run") || wsConfig.DryRun,
		PerfMode:        c.Bool("perf-mode") || wsConfig.PerfMode,
		ConfigDisabled:  c.Bool("no-config"),
		RunnerVersion:   Version,
		OnScenarioStart: onScenarioStart,
		OnStepComplete:  onStepComplete,
		OnScenarioEnd:   onScenarioEnd,
	})
	if err != nil {
		logger.Error("Runner setup failed: %v", err)
		return err
	}

	// Cancel the run on Ctrl+C or kill; in-flight scenarios finalize
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal %v, cancelling run...", sig)
		fmt.Fprintf(os.Stderr, "\nReceived %v, cancelling run...\n", sig)
		cancel()
	}()

	result, err := runner.Run(ctx, features)
	if err != nil {
		logger.Error("Run failed: %v", err)
		return err
	}
	logger.Info("Run completed: %d passed, %d failed",
		result.PassedScenarios, result.FailedScenarios)

	printSummary(result)

	fmt.Println("  Reports:")
	fmt.Printf("    JSON:   %s\n", filepath.Join(outputDir, "report.json"))
	fmt.Println()

	if result.Status != report.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}

// resolveOutputDir determines the output directory based on flags.
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}
	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// collectFeatures resolves CLI path arguments (plus config-listed features)
// into parsed feature files. Directories are walked for .yaml/.yml files.
func collectFeatures(args []string, wsConfig *config.Config) ([]*feature.Feature, error) {
	paths := append([]string{}, args...)
	if len(paths) == 0 {
		paths = wsConfig.Features
	}

	var files []string
	for _, p := range paths {
		base, _, _, _ := feature.ParsePath(p)
		info, err := os.Stat(base)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", base, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no feature files found")
	}

	var features []*feature.Feature
	for _, f := range files {
		feat, err := feature.Read(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f, err)
		}
		features = append(features, feat)
	}
	return features, nil
}

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printSetupSuccess(msg string) {
	fmt.Printf("  %s✓%s %s\n", color(colorGreen), color(colorReset), msg)
}

func onScenarioStart(name, featurePath string, line int) {
	fmt.Printf("\n  %s%s%s (%s:%d)\n",
		color(colorBold), name, color(colorReset), featurePath, line)
	fmt.Println(strings.Repeat("─", 60))
}

func onStepComplete(line int, text string, passed bool, durationMs int64, errMsg string) {
	durStr := formatDuration(durationMs)
	if passed {
		fmt.Printf("    %s✓%s %s %s(%s)%s\n",
			color(colorGreen), color(colorReset), text, color(colorGray), durStr, color(colorReset))
	} else {
		fmt.Printf("    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), text, durStr)
		if errMsg != "" {
			fmt.Printf("      %s╰─%s %s\n", color(colorGray), color(colorReset), errMsg)
		}
	}
}

func onScenarioEnd(name string, passed bool, durationMs int64) {
	if passed {
		fmt.Printf("  %s✓%s %s %s%s%s\n",
			color(colorGreen), color(colorReset), name, color(colorGray), formatDuration(durationMs), color(colorReset))
	} else {
		fmt.Printf("  %s✗%s %s %s%s%s\n",
			color(colorRed), color(colorReset), name, color(colorGray), formatDuration(durationMs), color(colorReset))
	}
}

func printSummary(result *executor.RunResult) {
	fmt.Println()
	if result.PassedScenarios > 0 {
		fmt.Printf("  %s%d scenarios passing%s (%s)\n",
			color(colorGreen), result.PassedScenarios, color(colorReset), formatDuration(result.Duration))
	}
	if result.FailedScenarios > 0 {
		fmt.Printf("  %s%d scenarios failing%s\n", color(colorRed), result.FailedScenarios, color(colorReset))
	}
	fmt.Println()

	tableWidth := 92
	fmt.Println(strings.Repeat("═", tableWidth))
	fmt.Printf("  %-48s %6s %7s %6s %6s %10s\n", "Scenario", "Status", "Steps", "Pass", "Fail", "Duration")
	fmt.Println(strings.Repeat("─", tableWidth))

	for _, sr := range result.ScenarioResults {
		passed, failed, _ := sr.ComputeSummary()
		status := "✓ PASS"
		statusColor := color(colorGreen)
		if sr.IsFailed() {
			status = "✗ FAIL"
			statusColor = color(colorRed)
		}

		name := sr.ScenarioName
		if len(name) > 48 {
			name = name[:45] + "..."
		}
		fmt.Printf("  %-48s %s%6s%s %7d %6d %6d %10s\n",
			name, statusColor, status, color(colorReset),
			len(sr.StepResults), passed, failed,
			formatDuration(sr.DurationMillis()))
	}

	fmt.Println(strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", result.PassedScenarios, result.TotalScenarios)
	statusColor := color(colorGreen)
	if result.FailedScenarios > 0 {
		statusColor = color(colorRed)
	}
	fmt.Printf("  %s%-48s%s %s%6s%s %27s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, statusStr, color(colorReset),
		formatDuration(result.Duration))
	fmt.Println(strings.Repeat("═", tableWidth))
	fmt.Println()
}

// formatDuration formats milliseconds to a human-readable string.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
