package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/torosent/relaxsim/internal/config"
	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/queue"
)

// load parses args the way a mode subcommand does and builds its Config.
func load(mode config.Mode, args ...string) (*config.Config, error) {
	cmd := &cobra.Command{Use: string(mode)}
	config.RegisterFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		return nil, err
	}
	return config.FromFlagSet(mode, cmd.Flags())
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := load(config.ModeSingle)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Mode != config.ModeSingle {
		t.Errorf("Mode = %q, want single", cfg.Mode)
	}
	if cfg.Samples != 2 {
		t.Errorf("Samples = %d, want 2", cfg.Samples)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.Runs != 1 {
		t.Errorf("Runs = %d, want 1", cfg.Runs)
	}
	if !reflect.DeepEqual(cfg.Heuristics, []queue.Kind{queue.KindLength}) {
		t.Errorf("Heuristics = %v, want [length]", cfg.Heuristics)
	}
	if cfg.Mix != engine.MixAlternating {
		t.Errorf("Mix = %q, want alternating", cfg.Mix)
	}
	if cfg.OutputDir != "results" || cfg.Format != config.FormatJSON {
		t.Errorf("OutputDir/Format = %q/%q, want results/json", cfg.OutputDir, cfg.Format)
	}
	if len(cfg.Subqueues) != 0 || len(cfg.Ops) != 0 {
		t.Errorf("Subqueues/Ops = %v/%v, want empty", cfg.Subqueues, cfg.Ops)
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := load(config.ModeOpsAndPrefill,
		"-s", "16",
		"-o", "1000,2000",
		"-i", "100", "-i", "250",
		"--heuristic", "length,operation",
		"-d", "3",
		"--sampling", "UNIQUES",
		"--seed", "7",
		"-w", "4",
		"--threshold", "rank_error:mean < 10",
	)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Subqueues, []int{16}) {
		t.Errorf("Subqueues = %v, want [16]", cfg.Subqueues)
	}
	if !reflect.DeepEqual(cfg.Ops, []int{1000, 2000}) {
		t.Errorf("Ops = %v, want [1000 2000]", cfg.Ops)
	}
	if !reflect.DeepEqual(cfg.Prefill, []int{100, 250}) {
		t.Errorf("Prefill = %v, want [100 250]", cfg.Prefill)
	}
	if !reflect.DeepEqual(cfg.Heuristics, []queue.Kind{queue.KindLength, queue.KindOperation}) {
		t.Errorf("Heuristics = %v, want [length operation]", cfg.Heuristics)
	}
	if cfg.Samples != 3 || cfg.Sampling != queue.SamplingUniques || cfg.Seed != 7 || cfg.Workers != 4 {
		t.Errorf("Samples/Sampling/Seed/Workers = %d/%s/%d/%d", cfg.Samples, cfg.Sampling, cfg.Seed, cfg.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	g := cfg.Grid()
	if len(g.Cells()) != 8 || g.FixedSeed {
		t.Errorf("grid cells = %d fixed = %v, want 8 and false", len(g.Cells()), g.FixedSeed)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"subqueues": [4, 8],
		"ops": 1000000,
		"prefill": "100,1000",
		"heuristics": ["operation"],
		"samples": 4,
		"runs": 3,
		"seed": 99,
		"mix": "random",
		"enqueue_probability": 0.6,
		"reset_counters": true,
		"readout": "max",
		"format": "yaml",
		"keep_errors": true,
		"thresholds": ["rank_error:p99 < 50"],
		"tracing": {"endpoint": "localhost:4317", "protocol": "http", "sample_rate": 0.25}
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := load(config.ModeSubqueuesAndPrefill, "--config", path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Subqueues, []int{4, 8}) {
		t.Errorf("Subqueues = %v, want [4 8]", cfg.Subqueues)
	}
	if !reflect.DeepEqual(cfg.Ops, []int{1000000}) {
		t.Errorf("Ops = %v, want [1000000]", cfg.Ops)
	}
	if !reflect.DeepEqual(cfg.Prefill, []int{100, 1000}) {
		t.Errorf("Prefill = %v, want [100 1000]", cfg.Prefill)
	}
	if !reflect.DeepEqual(cfg.Heuristics, []queue.Kind{queue.KindOperation}) {
		t.Errorf("Heuristics = %v, want [operation]", cfg.Heuristics)
	}
	if cfg.Samples != 4 || cfg.Runs != 3 || cfg.Seed != 99 {
		t.Errorf("Samples/Runs/Seed = %d/%d/%d, want 4/3/99", cfg.Samples, cfg.Runs, cfg.Seed)
	}
	if cfg.Mix != engine.MixRandom || cfg.EnqueueProbability != 0.6 || !cfg.ResetCounters {
		t.Errorf("Mix/Probability/Reset = %s/%v/%v", cfg.Mix, cfg.EnqueueProbability, cfg.ResetCounters)
	}
	if cfg.Readout != "max" || cfg.Format != config.FormatYAML || !cfg.KeepErrors {
		t.Errorf("Readout/Format/KeepErrors = %s/%s/%v", cfg.Readout, cfg.Format, cfg.KeepErrors)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want one", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.Protocol != "http" || cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestFlagsOverrideConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"subqueues: 8",
		"ops: [1000]",
		"prefill: [100]",
		"heuristic: progress",
		"seed: 5",
		"workers: 2",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := load(config.ModeSingle, "--config", path, "--seed", "6", "-s", "2")
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Seed != 6 {
		t.Errorf("Seed = %d, want 6 from flag", cfg.Seed)
	}
	if !reflect.DeepEqual(cfg.Subqueues, []int{2}) {
		t.Errorf("Subqueues = %v, want [2] from flag", cfg.Subqueues)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2 from file", cfg.Workers)
	}
	if !reflect.DeepEqual(cfg.Heuristics, []queue.Kind{queue.KindProgress}) {
		t.Errorf("Heuristics = %v, want [progress]", cfg.Heuristics)
	}
	g := cfg.Grid()
	if !g.FixedSeed {
		t.Error("single mode grid should use the seed unchanged")
	}
}

func TestUnknownFlagAndMissingFile(t *testing.T) {
	if _, err := load(config.ModeSingle, "--target", "http://localhost"); err == nil {
		t.Error("load() error = nil, want unknown flag error")
	}
	if _, err := load(config.ModeSingle, "--config", "/does/not/exist.yaml"); err == nil {
		t.Error("load() error = nil, want missing file error")
	}
}

func validConfig(mode config.Mode) config.Config {
	cfg := config.Default(mode)
	cfg.Subqueues = []int{8}
	cfg.Ops = []int{1000}
	cfg.Prefill = []int{100}
	return cfg
}

func TestConfigValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "single with lists",
			mutate: func(c *config.Config) { c.Ops = []int{1, 2}; c.Heuristics = nil },
			want:   []string{"exactly one ops", "exactly one heuristic"},
		},
		{
			name: "ops-and-prefill with two subqueue counts",
			mutate: func(c *config.Config) {
				c.Mode = config.ModeOpsAndPrefill
				c.Subqueues = []int{4, 8}
			},
			want: []string{"exactly one subqueues"},
		},
		{
			name: "subqueues-and-prefill without prefill",
			mutate: func(c *config.Config) {
				c.Mode = config.ModeSubqueuesAndPrefill
				c.Prefill = nil
			},
			want: []string{"at least one prefill"},
		},
		{
			name: "non-positive values",
			mutate: func(c *config.Config) {
				c.Subqueues = []int{0}
				c.Ops = []int{-1}
				c.Prefill = []int{0}
				c.Samples = 0
				c.Runs = 0
				c.Workers = -1
			},
			want: []string{"subqueues must be", "ops must be", "prefill must be", "samples", "runs", "workers"},
		},
		{
			name: "unknown names",
			mutate: func(c *config.Config) {
				c.Heuristics = []queue.Kind{"shortest"}
				c.Sampling = "stratified"
				c.Mix = "bursty"
				c.Readout = "p42"
				c.Format = "xml"
			},
			want: []string{"shortest", "stratified", "bursty", "p42", "xml"},
		},
		{
			name: "bad probability threshold and tracing",
			mutate: func(c *config.Config) {
				c.EnqueueProbability = 2
				c.Thresholds = []string{"latency:p99 < 5"}
				c.Tracing.Protocol = "thrift"
			},
			want: []string{"enqueue probability", "threshold", "thrift"},
		},
		{
			name:   "unknown mode",
			mutate: func(c *config.Config) { c.Mode = "scaling" },
			want:   []string{"unknown mode"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(config.ModeSingle)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			if !errors.Is(err, engine.ErrInvalidConfig) {
				t.Errorf("Validate() error does not wrap ErrInvalidConfig")
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) || len(verr.Issues()) < len(tc.want) {
				t.Errorf("Validate() issues = %v, want at least %d", verr.Issues(), len(tc.want))
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestEveryModeAcceptsValidConfig(t *testing.T) {
	for _, mode := range config.Modes {
		cfg := validConfig(mode)
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: Validate() error = %v", mode, err)
		}
	}
}
