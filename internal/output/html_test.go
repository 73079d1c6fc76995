package output_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/relaxsim/internal/metrics"
	"github.com/torosent/relaxsim/internal/output"
	"github.com/torosent/relaxsim/internal/queue"
	"github.com/torosent/relaxsim/internal/sweep"
	"github.com/torosent/relaxsim/internal/threshold"
)

func htmlReport() *output.Report {
	cell := func(d int, mean float64) *sweep.Cell {
		return &sweep.Cell{
			Key:         sweep.CellKey{Subqueues: d, Ops: 1000, Prefill: 100, Heuristic: queue.KindOperation},
			Samples:     2,
			Runs:        1,
			Expected:    1,
			Summary:     metrics.Summary{Mean: mean, Max: uint64(mean * 4)},
			Repetitions: []metrics.Summary{{Mean: mean}},
			Dequeues:    500,
			Fallbacks:   5,
		}
	}
	table := &sweep.Table{
		Cells: []*sweep.Cell{cell(2, 1), cell(8, 4), cell(32, 16)},
		Failures: []sweep.Failure{{
			Key:  sweep.CellKey{Subqueues: 64, Ops: 1000, Prefill: 100, Heuristic: queue.KindOperation},
			Seed: 5,
			Err:  queue.ErrEmptyQueue,
		}},
	}
	return output.NewReport(output.Meta{
		ID:          "01JHTML",
		Mode:        "subqueues-and-prefill",
		CreatedAt:   time.Now(),
		TraceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}, table)
}

func TestGenerateHTMLReport(t *testing.T) {
	parsed, err := threshold.ParseMultiple([]string{"rank_error:mean < 5"})
	if err != nil {
		t.Fatal(err)
	}
	report := htmlReport()

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, report, threshold.NewEvaluator(parsed).Evaluate(&sweep.Table{})); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"<!DOCTYPE html>",
		"relaxsim: subqueues-and-prefill",
		"Run 01JHTML",
		"Trace 00-4bf92f3577b34da6a3ce929d0e0e4736",
		"Rank Error by Cell",
		"<td>32</td>",
		"Failures</h2>",
		"1.0%", // fallbacks share
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestGenerateHTMLReportHeatScale(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, htmlReport(), nil); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	// Lowest readout is green, highest is red.
	if !strings.Contains(html, "hsl(120, 70%, 85%)") || !strings.Contains(html, "hsl(0, 70%, 85%)") {
		t.Error("readout cells not shaded from green to red")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Error("threshold section rendered without results")
	}
}

func TestGenerateHTMLReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, output.NewReport(output.Meta{Mode: "single"}, nil), nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No cell completed.") {
		t.Error("empty report should say no cell completed")
	}
}

func TestThresholdSummary(t *testing.T) {
	if output.NewThresholdSummary(nil) != nil {
		t.Error("NewThresholdSummary(nil) should be nil")
	}
	results := []threshold.Result{
		{Threshold: threshold.Threshold{Raw: "rank_error:mean < 5", Metric: "rank_error", Aggregate: "mean", Operator: "<", Value: 5}, Cell: "D=2", Actual: 1, Pass: true},
		{Threshold: threshold.Threshold{Raw: "rank_error:mean < 5", Metric: "rank_error", Aggregate: "mean", Operator: "<", Value: 5}, Cell: "D=32", Actual: 16},
	}
	s := output.NewThresholdSummary(results)
	if s.Total != 2 || s.Passed != 1 || s.Failed != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Results[1].Cell != "D=32" || s.Results[1].Actual != 16 || s.Results[1].Expected != 5 {
		t.Errorf("result[1] = %+v", s.Results[1])
	}

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, htmlReport(), results); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Thresholds (1/2 Passed)") {
		t.Error("threshold header missing")
	}
}
