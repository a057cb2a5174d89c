package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"squish/internal/codec"
	"squish/internal/config"
	"squish/internal/logging"
	"squish/internal/optimize"
	"squish/internal/pipeline"
	"squish/internal/tui"
)

var (
	optQuality    int
	optOutput     string
	optInPlace    bool
	optRecursive  bool
	optDryRun     bool
	optMaxWidth   int
	optMaxHeight  int
	optWorkers    int
	optSkip       []string
	optConfigPath string
	optNoProgress bool
	optVerbose    bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [flags] <input-dir>",
	Short: "Optimize PNG, JPEG, and WebP images under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		if optInPlace && cmd.Flags().Changed("output") {
			return fmt.Errorf("--inplace cannot be used with --output")
		}

		cfg, err := resolveConfig(cmd, root)
		if err != nil {
			return err
		}

		log := logging.New(logging.Options{Verbose: optVerbose})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		candidates, err := pipeline.Enumerate(root, cfg)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Fprintln(os.Stdout, "No image files found.")
			return nil
		}

		fmt.Fprintln(os.Stdout, foundStyle.Render(fmt.Sprintf("Found %d images to process", len(candidates))))
		if cfg.DryRun {
			fmt.Fprintln(os.Stdout, warnStyle.Render("DRY RUN - no files will be written"))
		}

		eng := optimize.New(cfg, codec.Std(), log)

		// The live display needs a terminal; non-TTY callers (CI, piped
		// output) get the plain summary path.
		showProgress := !optNoProgress && isatty.IsTerminal(os.Stdout.Fd())

		var updates chan pipeline.ProgressUpdate
		uiDone := make(chan struct{})
		if showProgress {
			updates = make(chan pipeline.ProgressUpdate, 64)
			model := tui.NewModel(updates)
			program := tea.NewProgram(model)
			go func() {
				defer close(uiDone)
				if _, err := program.Run(); err != nil {
					log.Warn("progress display unavailable, continuing", "error", err)
				} else {
					// Normal quit: either the run finished or the
					// operator interrupted the display. Stop
					// dispatching either way.
					cancel()
				}
				// The display is gone; keep the channel flowing so
				// the pipeline never blocks on a dead sink.
				for range updates {
				}
			}()
		} else {
			close(uiDone)
		}

		report, runErr := pipeline.Run(ctx, candidates, cfg, eng, updates)
		if updates != nil {
			close(updates)
		}
		<-uiDone
		if runErr != nil {
			return runErr
		}

		fmt.Fprintln(os.Stdout, tui.RenderSummary(tui.SummaryRows(report)))

		for _, out := range report.Failures() {
			fmt.Fprintf(os.Stdout, "%s %s: %v\n",
				failStyle.Render("x"), out.Candidate.Rel, out.Err)
		}

		if optVerbose {
			for _, out := range report.Outcomes {
				if out.Detail != "" {
					log.Debug("metadata", "path", out.Candidate.Rel, "note", out.Detail)
				}
			}
		}

		if !cfg.InPlace && !cfg.DryRun && report.Stats.Optimized > 0 {
			outPath := cfg.OutputDir
			if abs, absErr := filepath.Abs(cfg.OutputDir); absErr == nil {
				outPath = abs
			}
			fmt.Fprintf(os.Stdout, "Optimized files written to: %s\n", outPath)
		}

		return nil
	},
}

// resolveConfig layers defaults, the YAML config file, and explicitly set
// CLI flags into one validated configuration.
func resolveConfig(cmd *cobra.Command, root string) (config.Effective, error) {
	cfg := config.Default()

	path := optConfigPath
	required := path != ""
	if path == "" {
		path = filepath.Join(root, config.ConfigFileName)
	}
	cfg, err := config.ApplyFile(cfg, path, required)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("quality") {
		cfg.Quality = optQuality
	}
	if flags.Changed("output") {
		cfg.OutputDir = optOutput
	}
	if flags.Changed("inplace") {
		cfg.InPlace = optInPlace
	}
	if flags.Changed("recursive") {
		cfg.Recursive = optRecursive
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = optDryRun
	}
	if flags.Changed("max-width") {
		cfg.MaxWidth = optMaxWidth
	}
	if flags.Changed("max-height") {
		cfg.MaxHeight = optMaxHeight
	}
	if flags.Changed("workers") {
		cfg.Workers = optWorkers
	}
	if flags.Changed("skip") {
		cfg.SkipPatterns = optSkip
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var (
	foundStyle = lipgloss.NewStyle().Foreground(tui.ColorAccent)
	warnStyle  = lipgloss.NewStyle().Foreground(tui.ColorWarn)
	failStyle  = lipgloss.NewStyle().Foreground(tui.ColorFail)
)

func init() {
	optimizeCmd.Flags().IntVarP(&optQuality, "quality", "q", 85, "JPEG/WebP quality (1-100)")
	optimizeCmd.Flags().StringVarP(&optOutput, "output", "o", config.DefaultOutputDir, "destination folder for optimized copies")
	optimizeCmd.Flags().BoolVarP(&optInPlace, "inplace", "i", false, "overwrite files in place")
	optimizeCmd.Flags().BoolVarP(&optRecursive, "recursive", "r", false, "process subdirectories recursively")
	optimizeCmd.Flags().BoolVarP(&optDryRun, "dry-run", "d", false, "preview without writing files")
	optimizeCmd.Flags().IntVar(&optMaxWidth, "max-width", 0, "maximum output width in pixels (0 = unbounded)")
	optimizeCmd.Flags().IntVar(&optMaxHeight, "max-height", 0, "maximum output height in pixels (0 = unbounded)")
	optimizeCmd.Flags().IntVarP(&optWorkers, "workers", "w", runtime.NumCPU(), "number of concurrent workers")
	optimizeCmd.Flags().StringArrayVar(&optSkip, "skip", nil, "glob pattern of relative paths to exclude (repeatable)")
	optimizeCmd.Flags().StringVar(&optConfigPath, "config", "", "path to a YAML config file (default: <input-dir>/"+config.ConfigFileName+")")
	optimizeCmd.Flags().BoolVar(&optNoProgress, "no-progress", false, "disable the live progress display")
	optimizeCmd.Flags().BoolVarP(&optVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(optimizeCmd)
}
