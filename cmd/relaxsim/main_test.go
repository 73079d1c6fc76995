package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/torosent/relaxsim/internal/engine"
)

func execRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writtenPath(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if path, ok := strings.CutPrefix(line, "Writing output to: "); ok {
			return strings.TrimSpace(path)
		}
	}
	t.Fatalf("no results path announced in %q", out)
	return ""
}

func TestSingleModeWritesResults(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := execRoot(t, "single", "-s", "4", "-o", "2000", "-i", "100", "--output-dir", dir)
	if err != nil {
		t.Fatalf("single error = %v", err)
	}
	if !strings.Contains(stdout, "Relaxation Results (single)") || !strings.Contains(stdout, "Dequeues:        1000") {
		t.Errorf("unexpected report:\n%s", stdout)
	}

	path := writtenPath(t, stdout)
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "single-") || filepath.Ext(path) != ".json" {
		t.Errorf("results path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := gjson.GetBytes(data, "rows.#").Int(); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
	if got := gjson.GetBytes(data, "rows.0.dequeues").Int(); got != 1000 {
		t.Errorf("dequeues = %d, want 1000", got)
	}
	if got := gjson.GetBytes(data, "base_seed").Uint(); got != 42 {
		t.Errorf("base_seed = %d, want 42", got)
	}

	shown, _, err := execRoot(t, "show", path, "-q", "rows.0.subqueues")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if strings.TrimSpace(shown) != "4" {
		t.Errorf("show = %q, want 4", shown)
	}
}

func TestSweepModeIsReproducible(t *testing.T) {
	dir := t.TempDir()
	args := []string{"ops-and-prefill", "-s", "4", "-o", "500,1000", "-i", "10,50",
		"-r", "2", "--json-output", "--format", "csv", "--output-dir", dir}

	first, stderr, err := execRoot(t, args...)
	if err != nil {
		t.Fatalf("first run error = %v", err)
	}
	second, _, err := execRoot(t, args...)
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}

	if !gjson.Valid(first) {
		t.Fatalf("stdout is not JSON:\n%s", first)
	}
	if got := gjson.Get(first, "rows.#").Int(); got != 4 {
		t.Errorf("rows = %d, want 4", got)
	}
	if a, b := gjson.Get(first, "rows").Raw, gjson.Get(second, "rows").Raw; a != b {
		t.Error("rows differ between identical runs")
	}

	path := writtenPath(t, stderr)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[0], "subqueues,") {
		t.Errorf("csv = %q", data)
	}
}

func TestDistributionsModeAndSinks(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "report.html")
	dbPath := filepath.Join(dir, "runs.db")
	out := filepath.Join(dir, "dist.yaml")

	stdout, _, err := execRoot(t, "distributions", "-s", "8", "-o", "400", "-i", "40",
		"--format", "yaml", "--output-file", out, "--html-output", htmlPath, "--sqlite", dbPath)
	if err != nil {
		t.Fatalf("distributions error = %v", err)
	}
	if got := writtenPath(t, stdout); got != out {
		t.Errorf("results path = %q, want %q", got, out)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"distributions:", "rank_errors:", "lane_enqueue_load:"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("yaml missing %q", want)
		}
	}

	page, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("html report missing: %v", err)
	}
	if !bytes.Contains(page, []byte("Rank Error by Cell")) {
		t.Error("html report missing cell table")
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("sqlite database missing: %v", err)
	}
}

func TestInvalidConfigIsRejected(t *testing.T) {
	_, _, err := execRoot(t, "single", "-s", "0", "-o", "100", "-i", "10", "--output-dir", t.TempDir())
	if !errors.Is(err, engine.ErrInvalidConfig) {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}

	_, _, err = execRoot(t, "ops-and-prefill", "-s", "2,4", "-o", "100", "-i", "10", "--output-dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "exactly one subqueues") {
		t.Fatalf("error = %v, want arity error", err)
	}
}

func TestModeHelpListsFlags(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := execRoot(t, "single", "--help", "--output-dir", dir)
	if err != nil {
		t.Fatalf("single --help error = %v", err)
	}
	for _, want := range []string{"--enqueue-probability", "--heuristic", "--html-output"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("help output missing %s", want)
		}
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("help wrote %d results files", len(entries))
	}
}

func TestFailedThresholdReturnsError(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := execRoot(t, "single", "-s", "16", "-o", "2000", "-i", "200",
		"--threshold", "rank_error:max < 0", "--output-dir", dir)
	if err == nil || !strings.Contains(err.Error(), "thresholds failed") {
		t.Fatalf("error = %v, want threshold failure", err)
	}
	if !strings.Contains(stdout, "[FAIL]") {
		t.Errorf("report missing failed threshold:\n%s", stdout)
	}
}

func TestShowSummary(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := execRoot(t, "subqueues-and-prefill", "-s", "2,4", "-o", "300", "-i", "20", "--output-dir", dir)
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	shown, _, err := execRoot(t, "show", writtenPath(t, stdout))
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.HasPrefix(shown, "subqueues-and-prefill ") || strings.Count(shown, "D=") != 2 {
		t.Errorf("show summary = %q", shown)
	}

	if _, _, err := execRoot(t, "show", filepath.Join(dir, "missing.json")); err == nil {
		t.Error("show of a missing file succeeded")
	}
}

func TestFailureLoggerThrottles(t *testing.T) {
	var buf bytes.Buffer
	logger := newStderrFailureLogger(&buf)
	logger.LogFailure(nil)
	for i := 0; i < 50; i++ {
		logger.LogFailure(fmt.Errorf("unit %d: %w", i, errors.New("boom")))
	}
	if got := strings.Count(buf.String(), "cell failed"); got != 10 {
		t.Errorf("logged %d failures, want the first 10", got)
	}
	if logger.suppressed != 40 {
		t.Errorf("suppressed = %d, want 40", logger.suppressed)
	}
}
