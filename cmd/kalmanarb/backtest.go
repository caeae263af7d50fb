package main

import (
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"kalmanarb-go/internal/backtest"
	"kalmanarb-go/internal/marketdata"
	"kalmanarb-go/internal/metrics"
	"kalmanarb-go/internal/paper"
	"kalmanarb-go/internal/report"
	"kalmanarb-go/internal/strategy"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a pair CSV through the strategy and write the report",
		RunE:  runBacktest,
	}
	cmd.Flags().String("input", "", "pair CSV (overrides data.input_path)")
	cmd.Flags().String("output", "", "artifact directory (overrides data.output_dir)")
	cmd.Flags().Float64("capital", 0, "initial capital (overrides backtest.initial_capital)")
	cmd.Flags().Bool("metrics", false, "serve /metrics on app.metrics_addr during the run")
	return cmd
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("input"); v != "" {
		cfg.Data.InputPath = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Data.OutputDir = v
	}
	if v, _ := cmd.Flags().GetFloat64("capital"); v != 0 {
		cfg.Backtest.InitialCapital = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if serve, _ := cmd.Flags().GetBool("metrics"); serve {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	series, err := marketdata.LoadCSV(cfg.Data.InputPath)
	if err != nil {
		return err
	}
	strat, err := strategy.Build(cfg.Strategy.Mode, cfg.StrategyParams())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Data.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	recorder, err := paper.NewJSONLRecorder(filepath.Join(cfg.Data.OutputDir, "trades.jsonl"), paper.WithTruncate())
	if err != nil {
		return err
	}
	defer recorder.Close()

	engine, err := backtest.New(cfg.BacktestConfig(), strat, log, backtest.WithRecorder(recorder))
	if err != nil {
		return err
	}
	log.Info().Str("input", cfg.Data.InputPath).Int("bars", series.Len()).Msg("loaded pair")

	ctx, cancel := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	res, err := engine.Run(ctx, series.All())
	if err != nil {
		return err
	}
	return writeReport(cmd, cfg.Data.OutputDir, res)
}

func writeReport(cmd *cobra.Command, dir string, res *backtest.Result) error {
	summary, err := report.Summarize(res)
	if err != nil {
		return err
	}
	if err := report.WriteAll(dir, res, summary); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d bars, %d trades\n", summary.RunID, summary.Bars, summary.Trades)
	fmt.Fprintf(out, "final capital %s (initial %s)\n", summary.FinalCapital.StringFixed(2), summary.InitialCapital.StringFixed(2))
	fmt.Fprintf(out, "total return %.2f%%  sharpe %.3f  max drawdown %.2f%%\n",
		summary.TotalReturn*100, summary.Sharpe, summary.MaxDrawdown*100)
	fmt.Fprintf(out, "artifacts in %s\n", dir)
	return nil
}
