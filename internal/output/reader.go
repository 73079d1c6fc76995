package output

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sugawarayuuta/sonnet"
	"github.com/tidwall/gjson"
)

// ErrNotJSON is returned when a saved result is not a JSON document.
var ErrNotJSON = errors.New("results file is not valid JSON")

// ReadReport loads a JSON results file.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotJSON)
	}
	var r Report
	if err := sonnet.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &r, nil
}

// Show prints the result of a gjson path query over a saved JSON report.
// With an empty query it prints one summary line per row.
func Show(w io.Writer, data []byte, query string) error {
	if !gjson.ValidBytes(data) {
		return ErrNotJSON
	}
	if query != "" {
		res := gjson.GetBytes(data, query)
		if !res.Exists() {
			return fmt.Errorf("path %q matched nothing", query)
		}
		fmt.Fprintln(w, res.String())
		return nil
	}

	doc := gjson.ParseBytes(data)
	fmt.Fprintf(w, "%s %s (seed %s, readout %s)\n",
		doc.Get("mode").String(), doc.Get("id").String(), doc.Get("base_seed").String(), doc.Get("readout").String())
	doc.Get("rows").ForEach(func(_, row gjson.Result) bool {
		fmt.Fprintf(w, "  %-10s D=%-5d ops=%-9d prefill=%-8d readout=%.3f mean=%.3f max=%d\n",
			row.Get("heuristic").String(),
			row.Get("subqueues").Int(),
			row.Get("ops").Int(),
			row.Get("prefill").Int(),
			row.Get("readout_value").Float(),
			row.Get("mean").Float(),
			row.Get("max").Uint(),
		)
		return true
	})
	if n := doc.Get("failures.#").Int(); n > 0 {
		fmt.Fprintf(w, "  %d failed units\n", n)
	}
	return nil
}
