package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/queue"
)

// RegisterFlags registers all experiment flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Queue flags
	flags.IntSliceP("subqueues", "s", nil, "Number of subqueues (comma separated list in sweeps)")
	flags.IntP("samples", "d", 2, "Number of subqueues sampled per operation")
	flags.String("sampling", string(queue.SamplingNaive), "Lane sampling: 'naive' (with replacement) or 'uniques'")
	flags.StringSlice("heuristic", []string{string(queue.KindLength)}, "Heuristic: 'length', 'operation' or 'progress' (repeatable)")

	// Workload flags
	flags.IntSliceP("ops", "o", nil, "Number of measured operations (comma separated list in sweeps)")
	flags.IntSliceP("prefill", "i", nil, "Items enqueued before measuring (comma separated list in sweeps)")
	flags.IntP("runs", "r", 1, "Repetitions per cell")
	flags.Uint64("seed", 42, "Base random seed")
	flags.String("mix", string(engine.MixAlternating), "Op mix after prefill: 'alternating' or 'random'")
	flags.Float64("enqueue-probability", 0.5, "Enqueue probability of the random op mix")
	flags.Bool("reset-counters", false, "Reset operation counters when measuring starts")
	flags.IntP("workers", "w", 0, "Parallel workers (0 means one per CPU)")

	// Output flags
	flags.String("readout", string(metrics.ReadoutAverage), "Cell readout: 'average', 'median', 'worst-one-percent' or 'max'")
	flags.String("output-file", "", "Results file (default results/<mode>-<id>.<format>)")
	flags.String("output-dir", "results", "Directory for generated results files")
	flags.String("format", string(FormatJSON), "Results file format: 'json', 'yaml' or 'csv'")
	flags.String("sqlite", "", "Also append the results to this SQLite database")
	flags.String("html-output", "", "Also write an HTML report to this path")
	flags.Bool("keep-errors", false, "Store every raw rank error in the results")
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("progress", false, "Print sweep progress to stderr")
	flags.Bool("fail-fast", false, "Abort the sweep on the first failed cell")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Rank error thresholds (repeatable, e.g., 'rank_error:mean < 4')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for sweep traces (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.String("tracing-service-name", "", "Service name reported with traces")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("subqueues") {
		val, err := fs.GetIntSlice("subqueues")
		if err != nil {
			return err
		}
		cfg.Subqueues = val
	}
	if fs.Changed("samples") {
		val, err := fs.GetInt("samples")
		if err != nil {
			return err
		}
		cfg.Samples = val
	}
	if fs.Changed("sampling") {
		val, err := fs.GetString("sampling")
		if err != nil {
			return err
		}
		cfg.Sampling = queue.Sampling(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("heuristic") {
		val, err := fs.GetStringSlice("heuristic")
		if err != nil {
			return err
		}
		cfg.Heuristics = toKinds(val)
	}
	if fs.Changed("ops") {
		val, err := fs.GetIntSlice("ops")
		if err != nil {
			return err
		}
		cfg.Ops = val
	}
	if fs.Changed("prefill") {
		val, err := fs.GetIntSlice("prefill")
		if err != nil {
			return err
		}
		cfg.Prefill = val
	}
	if fs.Changed("runs") {
		val, err := fs.GetInt("runs")
		if err != nil {
			return err
		}
		cfg.Runs = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetUint64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("mix") {
		val, err := fs.GetString("mix")
		if err != nil {
			return err
		}
		cfg.Mix = engine.Mix(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("enqueue-probability") {
		val, err := fs.GetFloat64("enqueue-probability")
		if err != nil {
			return err
		}
		cfg.EnqueueProbability = val
	}
	if fs.Changed("reset-counters") {
		val, err := fs.GetBool("reset-counters")
		if err != nil {
			return err
		}
		cfg.ResetCounters = val
	}
	if fs.Changed("workers") {
		val, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = val
	}
	if fs.Changed("readout") {
		val, err := fs.GetString("readout")
		if err != nil {
			return err
		}
		cfg.Readout = metrics.Readout(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("output-file") {
		val, err := fs.GetString("output-file")
		if err != nil {
			return err
		}
		cfg.OutputFile = strings.TrimSpace(val)
	}
	if fs.Changed("output-dir") {
		val, err := fs.GetString("output-dir")
		if err != nil {
			return err
		}
		cfg.OutputDir = strings.TrimSpace(val)
	}
	if fs.Changed("format") {
		val, err := fs.GetString("format")
		if err != nil {
			return err
		}
		cfg.Format = Format(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("sqlite") {
		val, err := fs.GetString("sqlite")
		if err != nil {
			return err
		}
		cfg.SQLitePath = strings.TrimSpace(val)
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("keep-errors") {
		val, err := fs.GetBool("keep-errors")
		if err != nil {
			return err
		}
		cfg.KeepErrors = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("fail-fast") {
		val, err := fs.GetBool("fail-fast")
		if err != nil {
			return err
		}
		cfg.FailFast = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}

	return nil
}

func toKinds(values []string) []queue.Kind {
	kinds := make([]queue.Kind, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				kinds = append(kinds, queue.Kind(part))
			}
		}
	}
	return kinds
}
