package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const lockFileName = ".relaxsim.lock"

// Encode writes the report in format: json, yaml or csv.
func Encode(w io.Writer, r *Report, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		return PrintJSONReport(w, r)
	case "yaml", "yml":
		return WriteYAML(w, r)
	case "csv":
		if len(r.Distributions) > 0 {
			return WriteDistributionsCSV(w, r)
		}
		return WriteCSV(w, r)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteYAML writes the report as a YAML document.
func WriteYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

var csvHeader = []string{
	"subqueues", "samples", "ops", "prefill", "heuristic", "runs", "readout", "readout_value",
	"mean", "std_dev", "p50", "p90", "p99", "worst_one_percent", "max",
	"dequeues", "fallbacks", "forced_enqueues",
}

// WriteCSV writes one line per row, keyed by the swept parameters.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := []string{
			strconv.Itoa(row.Subqueues),
			strconv.Itoa(row.Samples),
			strconv.Itoa(row.Ops),
			strconv.Itoa(row.Prefill),
			string(row.Heuristic),
			strconv.Itoa(row.Runs),
			string(r.Readout),
			formatFloat(row.ReadoutValue),
			formatFloat(row.Mean),
			formatFloat(row.StdDev),
			strconv.FormatInt(row.P50, 10),
			strconv.FormatInt(row.P90, 10),
			strconv.FormatInt(row.P99, 10),
			strconv.FormatInt(row.WorstOnePct, 10),
			strconv.FormatUint(row.Max, 10),
			strconv.Itoa(row.Dequeues),
			strconv.Itoa(row.Fallbacks),
			strconv.Itoa(row.ForcedEnqueues),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDistributionsCSV writes the distributions in long form, one value per line.
func WriteDistributionsCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"subqueues", "ops", "prefill", "heuristic", "series", "index", "value"}); err != nil {
		return err
	}
	for _, d := range r.Distributions {
		key := []string{strconv.Itoa(d.Subqueues), strconv.Itoa(d.Ops), strconv.Itoa(d.Prefill), string(d.Heuristic)}
		series := []struct {
			name   string
			values []float64
		}{
			{"rank_errors", d.RankErrors},
			{"enqueue_dequeue_gap", d.EnqueueDequeueGap},
			{"lane_dequeue_load", d.LaneDequeueLoad},
			{"lane_enqueue_load", d.LaneEnqueueLoad},
		}
		for _, s := range series {
			for i, v := range s.values {
				record := append(append([]string(nil), key...), s.name, strconv.Itoa(i), formatFloat(v))
				if err := cw.Write(record); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ResultsPath is where a report is written when no explicit file is given:
// <dir>/<mode>-<id>.<format>.
func ResultsPath(dir string, r *Report, format string) string {
	if format == "" {
		format = "json"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.%s", r.Mode, r.ID, strings.ToLower(format)))
}

// WriteResultsFile encodes r into path, or into ResultsPath(dir, ...) when
// path is empty, while holding an exclusive lock on the target directory.
// The chosen path is announced on announce.
func WriteResultsFile(dir, path string, r *Report, format string, announce io.Writer) (string, error) {
	if path == "" {
		path = ResultsPath(dir, r, format)
	}
	target := filepath.Dir(path)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}

	lock := flock.New(filepath.Join(target, lockFileName))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock results directory: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(target, ".relaxsim-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create results file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, r, format); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close results file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("write results file: %w", err)
	}

	if announce != nil {
		fmt.Fprintf(announce, "Writing output to: %s\n", path)
	}
	return path, nil
}
