package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"kalmanarb-go/internal/kalman"
	"kalmanarb-go/internal/marketdata"
	"kalmanarb-go/internal/report"
)

const rmseWarmup = 50

func newFilterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Run the hedge-ratio filter over a pair CSV and score it against beta_true",
		RunE:  runFilter,
	}
	cmd.Flags().String("input", "", "pair CSV (overrides data.input_path)")
	cmd.Flags().String("out", "", "filter series CSV (default <output_dir>/filter.csv)")
	cmd.Flags().Int("warmup", rmseWarmup, "bars skipped before scoring")
	return cmd
}

func runFilter(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	input := cfg.Data.InputPath
	if v, _ := cmd.Flags().GetString("input"); v != "" {
		input = v
	}
	series, err := marketdata.LoadCSV(input)
	if err != nil {
		return err
	}
	filter, err := kalman.New(cfg.FilterConfig())
	if err != nil {
		return err
	}
	out, err := filter.Batch(series.Ys(), series.Xs())
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		path = filepath.Join(cfg.Data.OutputDir, "filter.csv")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	ts := make([]time.Time, series.Len())
	for i, obs := range series.Observations {
		ts[i] = obs.Ts
	}
	if err := report.WriteFilterCSV(f, ts, out); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "filtered %d bars, final beta %.4f, written to %s\n", out.Len(), out.Beta[out.Len()-1], path)
	if !series.HasBetaTrue() {
		return nil
	}
	warmup, _ := cmd.Flags().GetInt("warmup")
	rmse, err := kalman.RMSE(out.Beta, series.BetaTrue, warmup)
	if err != nil {
		return err
	}
	log.Info().Float64("rmse", rmse).Int("warmup", warmup).Msg("hedge ratio scored")
	fmt.Fprintf(w, "beta RMSE after %d bars: %.4f\n", warmup, rmse)
	return nil
}
