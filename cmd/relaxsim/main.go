package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/torosent/relaxsim/internal/config"
	"github.com/torosent/relaxsim/internal/output"
	"github.com/torosent/relaxsim/internal/sweep"
	"github.com/torosent/relaxsim/internal/threshold"
	"github.com/torosent/relaxsim/internal/tracing"
)

const (
	progressInterval = 500 * time.Millisecond
	shutdownTimeout  = 5 * time.Second
)

var modeDescriptions = map[config.Mode]string{
	config.ModeSingle:              "Run one configuration and report its rank error",
	config.ModeOpsAndPrefill:       "Sweep operation counts against prefill sizes for one subqueue count",
	config.ModeSubqueuesAndPrefill: "Sweep subqueue counts against prefill sizes for one operation count",
	config.ModeDistributions:       "Trace one configuration and dump its rank error and lane load distributions",
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "relaxsim",
		Short:         "Measure the rank error of choice-of-d relaxed FIFO queues",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	for _, mode := range config.Modes {
		root.AddCommand(newModeCommand(mode, stdout, stderr))
	}
	root.AddCommand(newShowCommand(stdout))
	return root
}

func newModeCommand(mode config.Mode, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(mode),
		Short: modeDescriptions[mode],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromFlagSet(mode, cmd.Flags())
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, stdout, stderr)
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func newShowCommand(stdout io.Writer) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "show <results.json>",
		Short: "Print a saved JSON result, optionally narrowed by a gjson path",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return output.Show(stdout, data, query)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "gjson path, e.g. 'rows.#.mean' or 'rows.0.histogram'")
	return cmd
}

func execute(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "[relaxsim] tracing shutdown: %v\n", err)
		}
	}()

	ctx, span := tracing.StartSpan(ctx, provider.Tracer(), "relaxsim "+string(cfg.Mode),
		attribute.String("relaxsim.mode", string(cfg.Mode)),
		attribute.Int64("relaxsim.seed", int64(cfg.Seed)),
	)

	driver := sweep.New(sweep.Options{
		Workers:    cfg.Workers,
		FailFast:   cfg.FailFast,
		KeepErrors: cfg.KeepErrors,
		Trace:      cfg.Mode == config.ModeDistributions,
		Tracer:     provider.Tracer(),
		Logger:     newStderrFailureLogger(stderr),
	})

	var progress *output.ProgressReporter
	if cfg.Progress {
		progress = output.NewProgressReporter(driver.Progress(), progressInterval, stderr)
		progress.Start()
	}
	table, runErr := driver.Run(ctx, cfg.Grid())
	if progress != nil {
		progress.Stop()
	}
	if table == nil {
		tracing.EndSpan(span, runErr)
		return runErr
	}

	report := output.NewReport(output.Meta{
		Mode:        string(cfg.Mode),
		BaseSeed:    cfg.Seed,
		Readout:     cfg.Readout,
		TraceParent: tracing.TraceParent(ctx),
	}, table)
	results := threshold.NewEvaluator(thresholds).Evaluate(table)
	report.Thresholds = output.NewThresholdSummary(results)
	tracing.EndSpan(span, runErr, attribute.Int("relaxsim.cells", len(report.Rows)))

	announce := stdout
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
		announce = stderr
	} else {
		output.PrintReport(stdout, report)
		printThresholds(stdout, results)
	}

	if _, err := output.WriteResultsFile(cfg.OutputDir, cfg.OutputFile, report, string(cfg.Format), announce); err != nil {
		return err
	}
	if cfg.SQLitePath != "" {
		if err := saveSQLite(ctx, cfg.SQLitePath, report); err != nil {
			return err
		}
	}
	if cfg.HTMLOutput != "" {
		if err := writeHTML(cfg.HTMLOutput, report, results); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if n := len(table.Failures); n > 0 {
		return fmt.Errorf("%d units failed", n)
	}
	if threshold.Failed(results) {
		return errors.New("one or more thresholds failed")
	}
	return nil
}

func printThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		status := "PASS"
		if !r.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(w, "  [%s] %s\n", status, r.Message)
	}
}

func saveSQLite(ctx context.Context, path string, report *output.Report) error {
	sink, err := output.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer sink.Close()
	// The sweep context may already be cancelled after an interrupt; keep the partial results.
	return sink.Save(context.WithoutCancel(ctx), report)
}

func writeHTML(path string, report *output.Report, results []threshold.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := output.GenerateHTMLReport(f, report, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type stderrFailureLogger struct {
	mu         sync.Mutex
	w          io.Writer
	throttle   rate.Sometimes
	suppressed int
}

func newStderrFailureLogger(w io.Writer) *stderrFailureLogger {
	return &stderrFailureLogger{
		w:        w,
		throttle: rate.Sometimes{First: 10, Interval: time.Second},
	}
}

func (l *stderrFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	logged := false
	l.throttle.Do(func() {
		logged = true
		if l.suppressed > 0 {
			fmt.Fprintf(l.w, "[relaxsim] %d similar failures suppressed\n", l.suppressed)
			l.suppressed = 0
		}
		fmt.Fprintf(l.w, "[relaxsim] cell failed: %v\n", err)
	})
	if !logged {
		l.suppressed++
	}
}
