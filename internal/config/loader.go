package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/relaxsim/internal/engine"
	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/queue"
)

// FromFlagSet builds a Config from an already parsed flag set: defaults first,
// then the --config file, then every flag the user set explicitly.
func FromFlagSet(mode Mode, flagSet *pflag.FlagSet) (*Config, error) {
	var configPath string
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default(mode)
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	ints := []struct {
		keys []string
		dst  *[]int
	}{
		{[]string{"subqueues", "partials"}, &cfg.Subqueues},
		{[]string{"ops", "operations"}, &cfg.Ops},
		{[]string{"prefill"}, &cfg.Prefill},
	}
	for _, s := range ints {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asIntSlice(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "samples", "sample_nbr"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("samples: %w", err)
		}
		cfg.Samples = val
	}
	if raw, ok := lookupSetting(settings, "sampling"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("sampling: %w", err)
		}
		cfg.Sampling = queue.Sampling(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "heuristics", "heuristic"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("heuristics: %w", err)
		}
		cfg.Heuristics = toKinds(val)
	}
	if raw, ok := lookupSetting(settings, "runs"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("runs: %w", err)
		}
		cfg.Runs = val
	}
	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asUint64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}
	if raw, ok := lookupSetting(settings, "mix"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("mix: %w", err)
		}
		cfg.Mix = engine.Mix(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "enqueue_probability", "enqueueprobability", "enqueue-probability"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("enqueue_probability: %w", err)
		}
		cfg.EnqueueProbability = val
	}
	if raw, ok := lookupSetting(settings, "workers"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("workers: %w", err)
		}
		cfg.Workers = val
	}
	if raw, ok := lookupSetting(settings, "readout"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("readout: %w", err)
		}
		cfg.Readout = metrics.Readout(strings.ToLower(strings.TrimSpace(val)))
	}

	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"output_file", "outputfile", "output-file"}, &cfg.OutputFile},
		{[]string{"output_dir", "outputdir", "output-dir"}, &cfg.OutputDir},
		{[]string{"sqlite"}, &cfg.SQLitePath},
		{[]string{"html_output", "htmloutput", "html-output"}, &cfg.HTMLOutput},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		cfg.Format = Format(strings.ToLower(strings.TrimSpace(val)))
	}

	bools := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"reset_counters", "resetcounters", "reset-counters"}, &cfg.ResetCounters},
		{[]string{"fail_fast", "failfast", "fail-fast"}, &cfg.FailFast},
		{[]string{"keep_errors", "keeperrors", "keep-errors"}, &cfg.KeepErrors},
		{[]string{"progress"}, &cfg.Progress},
		{[]string{"json_output", "jsonoutput", "json-output"}, &cfg.JSONOutput},
	}
	for _, s := range bools {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(cfg, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyTracingSettings(cfg *Config, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		cfg.Tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		cfg.Tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	return nil
}
