package lss_test

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	lss "github.com/TjarkHarder/fisher-lss-sub001"
)

func TestStreamResults(t *testing.T) {
	conf := lss.ExportConfig{Filename: "unit", OutputDir: t.TempDir()}
	require.False(t, conf.IsUseless())

	results := make(chan lss.GridResult, 3)
	p := lss.GridPoint{Index: 4, Z: 0.5, K: 0.1, Mu: -1}
	results <- lss.GridResult{Point: p, Label: "p13", Result: lss.Result{Value: 1.5, Error: 0.01, Extra: 0.9, Evaluations: 100, Converged: true}}
	results <- lss.GridResult{Point: p, Label: "p22", Result: lss.Result{Value: -2, Evaluations: 31}}
	results <- lss.GridResult{Point: lss.GridPoint{Index: 5}, Err: errors.New("μ out of range")}
	close(results)
	require.NoError(t, lss.StreamResults(conf, results))

	raw, err := os.ReadFile(filepath.Join(conf.OutputDir, "grid-unit.csv"))
	require.NoError(t, err)
	var body []string
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if !strings.HasPrefix(line, "#") {
			body = append(body, line)
		}
	}
	require.True(t, strings.HasPrefix(string(raw), "# Creation date (UTC): "))
	require.Contains(t, string(raw), "# Run end (UTC): ")

	records, err := csv.NewReader(strings.NewReader(strings.Join(body, "\n"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, []string{"index", "z", "k", "mu", "label", "value", "error", "extra", "evaluations", "converged", "err"}, records[0])
	require.Equal(t, []string{"4", "0.5", "0.1", "-1", "p13", "1.5", "0.01", "0.9", "100", "true", ""}, records[1])
	require.Equal(t, "false", records[2][9])
	require.Equal(t, "μ out of range", records[3][10])
	require.Empty(t, records[3][5])
}

func TestStreamResultsUseless(t *testing.T) {
	conf := lss.ExportConfig{OutputDir: t.TempDir()}
	require.True(t, conf.IsUseless())
	results := make(chan lss.GridResult, 1)
	results <- lss.GridResult{}
	close(results)
	require.NoError(t, lss.StreamResults(conf, results))
	entries, err := os.ReadDir(conf.OutputDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExportPath(t *testing.T) {
	conf := lss.ExportConfig{Filename: "run", OutputDir: "/tmp/out", Timestamp: true}
	at := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	require.Equal(t, "/tmp/out/grid-run-2024-03-09T07.05.01.csv", conf.Path(at))
	conf.Timestamp = false
	conf.OutputDir = ""
	require.Equal(t, "grid-run.csv", conf.Path(at))
}

func TestStreamResultsBadDir(t *testing.T) {
	conf := lss.ExportConfig{Filename: "x", OutputDir: filepath.Join(t.TempDir(), "missing")}
	results := make(chan lss.GridResult, 1)
	results <- lss.GridResult{}
	close(results)
	require.Error(t, lss.StreamResults(conf, results))
}
