package lss

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ExportConfig configures the exporting of grid results.
type ExportConfig struct {
	Filename  string
	OutputDir string
	Timestamp bool
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return c.Filename == ""
}

// Path returns the CSV file path for a run started at t.
func (c ExportConfig) Path(t time.Time) string {
	name := fmt.Sprintf("grid-%s.csv", c.Filename)
	if c.Timestamp {
		name = fmt.Sprintf("grid-%s-%d-%02d-%02dT%02d.%02d.%02d.csv", c.Filename, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	dir := c.OutputDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name)
}

var resultHeader = []string{"index", "z", "k", "mu", "label", "value", "error", "extra", "evaluations", "converged", "err"}

// createResultFile returns a file which requires a defer close statement!
func createResultFile(conf ExportConfig, start time.Time) (*os.File, error) {
	f, err := os.Create(conf.Path(start))
	if err != nil {
		return nil, err
	}
	// Header
	if _, err = fmt.Fprintf(f, `# Creation date (UTC): %s
# Records are one labelled integral per grid point. extra is χ²/dof (vegas),
#   χ² probability (divonne) or zero (cquad). err is set when the point failed.
`, start.UTC()); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func record(r GridResult) []string {
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	rec := []string{strconv.Itoa(r.Point.Index), f(r.Point.Z), f(r.Point.K), f(r.Point.Mu), r.Label, "", "", "", "", "", ""}
	if r.Err != nil {
		rec[10] = r.Err.Error()
		return rec
	}
	rec[5], rec[6], rec[7] = f(r.Result.Value), f(r.Result.Error), f(r.Result.Extra)
	rec[8] = strconv.Itoa(r.Result.Evaluations)
	rec[9] = strconv.FormatBool(r.Result.Converged)
	return rec
}

// StreamResults writes the results read from the channel to a CSV file until the channel is
// closed. With a useless config the channel is only drained.
func StreamResults(conf ExportConfig, results <-chan GridResult) error {
	if conf.IsUseless() {
		drain(results)
		return nil
	}
	start := time.Now()
	f, err := createResultFile(conf, start)
	if err != nil {
		drain(results)
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err = w.Write(resultHeader); err != nil {
		drain(results)
		return err
	}
	rows := 0
	for r := range results {
		if err != nil {
			continue
		}
		err = w.Write(record(r))
		rows++
	}
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "# Run end (UTC): %s, %d records\n", time.Now().UTC(), rows)
	return err
}

func drain(results <-chan GridResult) {
	for range results {
	}
}
