package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"blackframe/internal/app"
	"blackframe/internal/cli"
	"blackframe/internal/config"
	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/service/report"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const usage = `Usage:
  blackframe scan [flags] <video|directory|list.txt>
  blackframe serve [flags]
  blackframe version

Run "blackframe <command> -h" for the flags of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "blackframe %s\n", Version)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

// scanOptions are the scan settings that are not part of the configuration.
type scanOptions struct {
	path  string
	force bool
	json  bool
}

// parseScanFlags applies command-line overrides to cfg.
func parseScanFlags(args []string, cfg *config.Config, output io.Writer) (scanOptions, error) {
	var opts scanOptions

	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&cfg.PixelThreshold, "threshold", cfg.PixelThreshold, "Brightness (0-255) below which a pixel counts as dark")
	fs.Float64Var(&cfg.BlackRatio, "ratio", cfg.BlackRatio, "Share of dark pixels (0-1] that makes a frame black")
	fs.Float64Var(&cfg.MinBlackDuration, "min-duration", cfg.MinBlackDuration, "Minimum black segment length in seconds")
	fs.IntVar(&cfg.ProcessingInterval, "interval", cfg.ProcessingInterval, "Analyze every n-th frame")
	fs.IntVar(&cfg.ProcessingWorkers, "workers", cfg.ProcessingWorkers, "Frame analysis workers per video")
	fs.IntVar(&cfg.ScanConcurrency, "videos", cfg.ScanConcurrency, "Videos scanned at the same time")
	fs.IntVar(&cfg.AnalysisWidth, "width", cfg.AnalysisWidth, "Downscale frames to this width before analysis (0 = native)")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	fs.StringVar(&cfg.ReportDirectory, "reports", cfg.ReportDirectory, "Directory for JSON reports (empty = none)")
	fs.StringVar(&cfg.SnapshotDirectory, "snapshots", cfg.SnapshotDirectory, "Directory for segment snapshots")
	fs.BoolVar(&opts.force, "force", false, "Rescan videos that were already scanned")
	fs.BoolVar(&opts.json, "json", false, "Print results as JSON")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 1 {
		return opts, errors.New("scan needs exactly one video, directory or list file")
	}
	opts.path = fs.Arg(0)

	if err := cfg.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func runScan(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	opts, err := parseScanFlags(args, cfg, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, cli.DecorateText(err.Error(), cli.ErrorMessage))
		return 2
	}

	// Na konsolę trafiają tylko błędy, chyba że -v
	console := io.Discard
	if cfg.Verbose {
		console = stderr
	}
	log, err := logger.NewLoggerWithWriters(cfg, console, stderr)
	if err != nil {
		fmt.Fprintln(stderr, cli.DecorateText(err.Error(), cli.ErrorMessage))
		return 1
	}
	defer log.Close()

	application, err := app.NewApp(cfg, log, false)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := newProgressPrinter(stderr, !opts.json && !cfg.Verbose && isTerminal(stderr))
	application.Manager().SetProgressFunc(progress.update)

	started := time.Now()
	progress.start()
	results, err := application.Manager().ScanNow(ctx, dto.ScanRequest{Path: opts.path, Force: opts.force})
	progress.stop()
	results = attempted(results)
	if err != nil && results == nil {
		log.Error("%v", err)
		return 1
	}

	if err := application.Close(); err != nil {
		log.Error("Error closing database: %v", err)
	}

	if opts.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(results); encErr != nil {
			log.Error("Error encoding results: %v", encErr)
			return 1
		}
	} else {
		printSummary(stdout, results, time.Since(started))
	}

	if err != nil {
		fmt.Fprintln(stderr, cli.DecorateText("scan interrupted: "+err.Error(), cli.ErrorMessage))
		return 1
	}
	for _, res := range results {
		if res.Error != "" {
			return 1
		}
	}
	return 0
}

// attempted drops the empty slots of videos a cancelled scan never reached.
func attempted(results []dto.ScanResult) []dto.ScanResult {
	var out []dto.ScanResult
	for _, res := range results {
		if res.Path != "" {
			out = append(out, res)
		}
	}
	return out
}

func printSummary(w io.Writer, results []dto.ScanResult, elapsed time.Duration) {
	segments, failed, skipped := 0, 0, 0
	for i := range results {
		report.WriteText(w, &results[i])
		fmt.Fprintln(w)

		segments += len(results[i].Segments)
		switch {
		case results[i].Error != "":
			failed++
		case results[i].Skipped:
			skipped++
		}
	}

	summary := fmt.Sprintf("%d video(s), %d black segment(s), %d skipped, %d failed in %s",
		len(results), segments, skipped, failed, cli.FormatTime(elapsed))
	if failed > 0 {
		fmt.Fprintln(w, cli.DecorateText(summary, cli.ErrorMessage))
		return
	}
	fmt.Fprintln(w, cli.DecorateText(summary, cli.SuccessMessage))
}

func runServe(args []string, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer log.Close()

	application, err := app.NewApp(cfg, log, true)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("Server error: %v", err)
		return 1
	}
	return 0
}

// progressPrinter shows scan progress on a spinner when attached to a
// terminal, and as plain lines otherwise.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	spinner *cli.Spinner
}

func newProgressPrinter(w io.Writer, interactive bool) *progressPrinter {
	p := &progressPrinter{w: w}
	if interactive {
		p.spinner = cli.NewSpinner(w, "Scanning", 100*time.Millisecond, true)
	}
	return p
}

func (p *progressPrinter) start() {
	if p.spinner != nil {
		p.spinner.Start()
	}
}

func (p *progressPrinter) stop() {
	if p.spinner != nil {
		p.spinner.Stop()
	}
}

func (p *progressPrinter) update(progress dto.ScanProgress) {
	var line string
	switch progress.Stage {
	case dto.StageScanning:
		if p.spinner != nil {
			p.spinner.SetMessage(fmt.Sprintf("Scanning %s %3.0f%%", progress.Path, progress.Percent))
		}
		return
	case dto.StageDone:
		line = cli.DecorateText("✔ ", cli.SuccessMessage) + progress.Path
	case dto.StageSkipped:
		line = cli.DecorateText("↷ ", cli.StatusMessage) + progress.Path + " (already scanned)"
	case dto.StageFailed:
		line = cli.DecorateText("✘ ", cli.ErrorMessage) + progress.Path + ": " + progress.Error
	default:
		return
	}

	if p.spinner != nil {
		p.spinner.Println(line)
		return
	}
	p.mu.Lock()
	fmt.Fprintln(p.w, line)
	p.mu.Unlock()
}

// isTerminal reports whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && cli.IsTerminal(f)
}
