package output

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/torosent/relaxsim/internal/threshold"
)

// ThresholdSummary is the serialisable view of evaluated thresholds.
type ThresholdSummary struct {
	Total   int                   `json:"total" yaml:"total"`
	Passed  int                   `json:"passed" yaml:"passed"`
	Failed  int                   `json:"failed" yaml:"failed"`
	Results []ThresholdResultJSON `json:"results" yaml:"results"`
}

// ThresholdResultJSON is one evaluated threshold.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Cell      string  `json:"cell,omitempty" yaml:"cell,omitempty"`
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

// NewThresholdSummary counts passes and failures. It returns nil without results.
func NewThresholdSummary(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	s := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		s.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Cell:      tr.Cell,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           *Report
	ThresholdSummary *ThresholdSummary
	minReadout       float64
	maxReadout       float64
}

// GenerateHTMLReport writes a standalone HTML page with the cell table,
// shaded by readout value, plus thresholds and failures.
func GenerateHTMLReport(w io.Writer, r *Report, thresholdResults []threshold.Result) error {
	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           r,
		ThresholdSummary: NewThresholdSummary(thresholdResults),
		minReadout:       math.Inf(1),
		maxReadout:       math.Inf(-1),
	}
	for _, row := range r.Rows {
		data.minReadout = math.Min(data.minReadout, row.ReadoutValue)
		data.maxReadout = math.Max(data.maxReadout, row.ReadoutValue)
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.3f", f)
		},
		"formatPercent": func(part, total int) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
		"heat": data.heat,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// heat maps a readout onto a background colour from green (lowest) to red (highest).
func (d HTMLReportData) heat(v float64) template.CSS {
	t := 0.0
	if span := d.maxReadout - d.minReadout; span > 0 {
		t = (v - d.minReadout) / span
	}
	hue := 120 * (1 - t)
	return template.CSS(fmt.Sprintf("background: hsl(%.0f, 70%%, 85%%)", hue))
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>relaxsim {{.Report.Mode}} Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        table { width: 100%; border-collapse: collapse; background: white; }
        th, td { text-align: left; padding: 10px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.85rem;
            text-transform: uppercase;
        }
        .badge { display: inline-block; padding: 4px 12px; border-radius: 12px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
        .no-data { text-align: center; padding: 40px; color: #6c757d; font-style: italic; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>relaxsim: {{.Report.Mode}}</h1>
            <div class="meta">Run {{.Report.ID}} | Seed {{.Report.BaseSeed}} | Readout {{.Report.Readout}}</div>
            <div class="meta">Generated: {{.GeneratedAt}}{{if .Report.TraceParent}} | Trace {{.Report.TraceParent}}{{end}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Cells</h3>
                    <div class="value">{{len .Report.Rows}}</div>
                </div>
                <div class="card{{if .Report.Failures}} error{{end}}">
                    <h3>Failed Units</h3>
                    <div class="value">{{len .Report.Failures}}</div>
                    {{if .Report.Skipped}}<div class="subvalue">{{.Report.Skipped}} skipped</div>{{end}}
                </div>
            </div>

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Cell</th><th>Expected</th><th>Actual</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Cell}}</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            <div class="section">
                <h2>Rank Error by Cell</h2>
                {{if .Report.Rows}}
                <table>
                    <thead>
                        <tr>
                            <th>Heuristic</th><th>Subqueues</th><th>Ops</th><th>Prefill</th><th>Runs</th>
                            <th>Readout</th><th>Mean</th><th>P50</th><th>P99</th><th>Max</th><th>Fallbacks</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Report.Rows}}
                        <tr>
                            <td>{{.Heuristic}}</td>
                            <td>{{.Subqueues}}</td>
                            <td>{{.Ops}}</td>
                            <td>{{.Prefill}}</td>
                            <td>{{.Runs}}/{{.Expected}}</td>
                            <td style="{{heat .ReadoutValue}}">{{formatFloat .ReadoutValue}}</td>
                            <td>{{formatFloat .Mean}}</td>
                            <td>{{.P50}}</td>
                            <td>{{.P99}}</td>
                            <td>{{.Max}}</td>
                            <td>{{.Fallbacks}} ({{formatPercent .Fallbacks .Dequeues}}%)</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{else}}
                <div class="no-data">No cell completed.</div>
                {{end}}
            </div>

            {{if .Report.Failures}}
            <div class="section">
                <h2>Failures</h2>
                <table>
                    <thead>
                        <tr><th>Cell</th><th>Repetition</th><th>Seed</th><th>Error</th></tr>
                    </thead>
                    <tbody>
                        {{range .Report.Failures}}
                        <tr>
                            <td>{{.Heuristic}} D={{.Subqueues}} ops={{.Ops}} prefill={{.Prefill}}</td>
                            <td>{{.Repetition}}</td>
                            <td>{{.Seed}}</td>
                            <td>{{.Error}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`
