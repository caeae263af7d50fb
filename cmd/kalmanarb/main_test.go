package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalmanarb-go/internal/report"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env"), "--log-level", "error"))
	require.NoError(t, root.Execute())
	return out.String()
}

func TestSynthBacktestFilter(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data", "pair.csv")
	outDir := filepath.Join(dir, "out")

	assert.Contains(t, execute(t, "synth", "--out", data, "--points", "400", "--seed", "3"), "wrote 400 bars")

	text := execute(t, "backtest", "--input", data, "--output", outDir, "--capital", "50000")
	assert.Contains(t, text, "400 bars")
	for _, name := range []string{"equity.csv", "trades.csv", "summary.json", "trades.jsonl"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err, name)
	}
	raw, err := os.ReadFile(filepath.Join(outDir, "summary.json"))
	require.NoError(t, err)
	var summary report.Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 400, summary.Bars)
	assert.Equal(t, "50000", summary.InitialCapital.String())

	filterOut := filepath.Join(dir, "filter.csv")
	text = execute(t, "filter", "--input", data, "--out", filterOut, "--console")
	assert.Contains(t, text, "filtered 400 bars")
	assert.Contains(t, text, "beta RMSE after 50 bars")
}

func TestBacktestRejectsMissingInput(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"backtest", "--input", filepath.Join(t.TempDir(), "missing.csv"), "--env-file", "", "--log-level", "error"})
	assert.Error(t, root.Execute())
}

func TestBacktestRerunReplacesTradeLog(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "pair.csv")
	outDir := filepath.Join(dir, "out")
	execute(t, "synth", "--out", data, "--points", "300", "--seed", "5")

	execute(t, "backtest", "--input", data, "--output", outDir)
	execute(t, "backtest", "--input", data, "--output", outDir)

	raw, err := os.ReadFile(filepath.Join(outDir, "summary.json"))
	require.NoError(t, err)
	var summary report.Summary
	require.NoError(t, json.Unmarshal(raw, &summary))

	trades, err := os.ReadFile(filepath.Join(outDir, "trades.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, summary.Trades, strings.Count(string(trades), "\n"))
	if summary.Trades > 0 {
		assert.Contains(t, string(trades), summary.RunID)
	}
}
