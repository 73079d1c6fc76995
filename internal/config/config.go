package config

import (
	"fmt"
	"strings"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/queue"
	"github.com/torosent/relaxsim/internal/sweep"
	"github.com/torosent/relaxsim/internal/threshold"
	"github.com/torosent/relaxsim/internal/tracing"
)

// Mode is the experiment a command runs.
type Mode string

const (
	ModeSingle              Mode = "single"
	ModeOpsAndPrefill       Mode = "ops-and-prefill"
	ModeSubqueuesAndPrefill Mode = "subqueues-and-prefill"
	ModeDistributions       Mode = "distributions"
)

// Modes lists every experiment mode.
var Modes = []Mode{ModeSingle, ModeOpsAndPrefill, ModeSubqueuesAndPrefill, ModeDistributions}

// Format is the encoding of a results file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

type Config struct {
	Mode               Mode            `mapstructure:"-"`
	Subqueues          []int           `mapstructure:"subqueues"`
	Samples            int             `mapstructure:"samples"`
	Sampling           queue.Sampling  `mapstructure:"sampling"`
	Heuristics         []queue.Kind    `mapstructure:"heuristics"`
	Ops                []int           `mapstructure:"ops"`
	Prefill            []int           `mapstructure:"prefill"`
	Runs               int             `mapstructure:"runs"`
	Seed               uint64          `mapstructure:"seed"`
	Mix                engine.Mix      `mapstructure:"mix"`
	EnqueueProbability float64         `mapstructure:"enqueue_probability"`
	ResetCounters      bool            `mapstructure:"reset_counters"`
	Workers            int             `mapstructure:"workers"`
	Readout            metrics.Readout `mapstructure:"readout"`
	OutputFile         string          `mapstructure:"output_file"`
	OutputDir          string          `mapstructure:"output_dir"`
	HTMLOutput         string          `mapstructure:"html_output"`
	Format             Format          `mapstructure:"format"`
	SQLitePath         string          `mapstructure:"sqlite"`
	Thresholds         []string        `mapstructure:"thresholds"`
	FailFast           bool            `mapstructure:"fail_fast"`
	KeepErrors         bool            `mapstructure:"keep_errors"`
	Progress           bool            `mapstructure:"progress"`
	JSONOutput         bool            `mapstructure:"json_output"`
	ConfigFile         string          `mapstructure:"-"`
	Tracing            tracing.Config  `mapstructure:"tracing"`
}

// Default returns the configuration a mode starts from before the config
// file and flags are applied.
func Default(mode Mode) Config {
	return Config{
		Mode:               mode,
		Samples:            2,
		Sampling:           queue.SamplingNaive,
		Heuristics:         []queue.Kind{queue.KindLength},
		Runs:               1,
		Seed:               42,
		Mix:                engine.MixAlternating,
		EnqueueProbability: 0.5,
		Readout:            metrics.ReadoutAverage,
		OutputDir:          "results",
		Format:             FormatJSON,
	}
}

// ValidationError collects every configuration problem. It matches
// engine.ErrInvalidConfig under errors.Is.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (e ValidationError) Unwrap() error {
	return engine.ErrInvalidConfig
}

func (c Config) Validate() error {
	var issues []string

	switch c.Mode {
	case ModeSingle, ModeDistributions:
		issues = append(issues, exactlyOne("subqueues", len(c.Subqueues), c.Mode)...)
		issues = append(issues, exactlyOne("ops", len(c.Ops), c.Mode)...)
		issues = append(issues, exactlyOne("prefill", len(c.Prefill), c.Mode)...)
		issues = append(issues, exactlyOne("heuristic", len(c.Heuristics), c.Mode)...)
	case ModeOpsAndPrefill:
		issues = append(issues, exactlyOne("subqueues", len(c.Subqueues), c.Mode)...)
		issues = append(issues, atLeastOne("ops", len(c.Ops))...)
		issues = append(issues, atLeastOne("prefill", len(c.Prefill))...)
		issues = append(issues, atLeastOne("heuristic", len(c.Heuristics))...)
	case ModeSubqueuesAndPrefill:
		issues = append(issues, exactlyOne("ops", len(c.Ops), c.Mode)...)
		issues = append(issues, atLeastOne("subqueues", len(c.Subqueues))...)
		issues = append(issues, atLeastOne("prefill", len(c.Prefill))...)
		issues = append(issues, atLeastOne("heuristic", len(c.Heuristics))...)
	default:
		issues = append(issues, fmt.Sprintf("unknown mode %q", c.Mode))
	}

	issues = append(issues, positive("subqueues", c.Subqueues)...)
	issues = append(issues, positive("ops", c.Ops)...)
	issues = append(issues, positive("prefill", c.Prefill)...)

	for _, h := range c.Heuristics {
		if _, err := queue.ParseKind(string(h)); err != nil {
			issues = append(issues, err.Error())
		}
	}
	if c.Samples < 1 {
		issues = append(issues, fmt.Sprintf("samples must be >= 1, got %d", c.Samples))
	}
	if _, err := queue.ParseSampling(string(c.Sampling)); err != nil {
		issues = append(issues, err.Error())
	}
	if _, err := engine.ParseMix(string(c.Mix)); err != nil {
		issues = append(issues, err.Error())
	}
	if c.EnqueueProbability < 0 || c.EnqueueProbability > 1 {
		issues = append(issues, fmt.Sprintf("enqueue probability must be within [0, 1], got %g", c.EnqueueProbability))
	}
	if _, err := metrics.ParseReadout(string(c.Readout)); err != nil {
		issues = append(issues, err.Error())
	}
	if c.Runs < 1 {
		issues = append(issues, fmt.Sprintf("runs must be >= 1, got %d", c.Runs))
	}
	if c.Workers < 0 {
		issues = append(issues, "workers must be >= 0")
	}
	switch c.Format {
	case FormatJSON, FormatYAML, FormatCSV:
	default:
		issues = append(issues, fmt.Sprintf("unknown format %q (supported: json, yaml, csv)", c.Format))
	}
	for _, expr := range c.Thresholds {
		if _, err := threshold.Parse(expr); err != nil {
			issues = append(issues, fmt.Sprintf("threshold %q: %v", expr, err))
		}
	}
	if err := c.Tracing.Validate(); err != nil {
		issues = append(issues, err.Error())
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Grid converts a validated configuration into the sweep it describes.
// Single and distributions runs use the seed unchanged.
func (c Config) Grid() sweep.Grid {
	return sweep.Grid{
		Subqueues:          c.Subqueues,
		Ops:                c.Ops,
		Prefill:            c.Prefill,
		Heuristics:         c.Heuristics,
		Samples:            c.Samples,
		Sampling:           c.Sampling,
		Mix:                c.Mix,
		EnqueueProbability: c.EnqueueProbability,
		ResetCounters:      c.ResetCounters,
		Runs:               c.Runs,
		Seed:               c.Seed,
		FixedSeed:          c.Mode == ModeSingle || c.Mode == ModeDistributions,
	}
}

func exactlyOne(name string, n int, mode Mode) []string {
	if n == 1 {
		return nil
	}
	return []string{fmt.Sprintf("%s mode takes exactly one %s value, got %d", mode, name, n)}
}

func atLeastOne(name string, n int) []string {
	if n > 0 {
		return nil
	}
	return []string{fmt.Sprintf("at least one %s value is required", name)}
}

func positive(name string, values []int) []string {
	var issues []string
	for _, v := range values {
		if v < 1 {
			issues = append(issues, fmt.Sprintf("%s must be >= 1, got %d", name, v))
		}
	}
	return issues
}
