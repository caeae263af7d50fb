package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"kalmanarb-go/internal/backtest"
	"kalmanarb-go/internal/config"
	"kalmanarb-go/internal/exchange"
	"kalmanarb-go/internal/metrics"
	"kalmanarb-go/internal/paper"
	"kalmanarb-go/internal/report"
	sig "kalmanarb-go/internal/signal"
	"kalmanarb-go/internal/strategy"
	"kalmanarb-go/internal/util"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file with KALMANARB_* overrides")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath, *envFile)
	if err != nil {
		bootLog := util.NewLogger("info", os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, os.Stdout)

	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer srv.Close()
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	feed, err := exchange.NewFeed(cfg.Feed.Provider, cfg.Feed.SymbolY, cfg.Feed.SymbolX, log,
		exchange.WithSampleInterval(cfg.SampleInterval()))
	if err != nil {
		log.Fatal().Err(err).Msg("build feed")
	}
	symY, symX := feed.Symbols()

	strat, err := strategy.Build(cfg.Strategy.Mode, cfg.StrategyParams())
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}
	if err := os.MkdirAll(cfg.Data.OutputDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create output dir")
	}
	recorder, err := paper.NewJSONLRecorder(filepath.Join(cfg.Data.OutputDir, "paper_trades.jsonl"))
	if err != nil {
		log.Fatal().Err(err).Msg("open trade recorder")
	}
	defer recorder.Close()

	btCfg := cfg.BacktestConfig()
	btCfg.SymbolY, btCfg.SymbolX = symY, symX
	engine, err := backtest.New(btCfg, strat, log, backtest.WithRecorder(recorder))
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	observations := make(chan sig.Observation, 64)
	go func() {
		if err := feed.Run(ctx, observations); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("feed stopped")
		}
		cancel()
	}()

	log.Info().Str("run_id", engine.RunID()).Str("symbol_y", symY).Str("symbol_x", symX).Msg("paper engine started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Int("bars", engine.Bars()).Msg("shutting down")
			finish(log, cfg.Data.OutputDir, engine)
			return
		case obs := <-observations:
			if err := engine.Step(obs); err != nil {
				log.Warn().Err(err).Msg("observation skipped")
			}
		}
	}
}

func finish(log zerolog.Logger, dir string, engine *backtest.Engine) {
	if engine.Bars() == 0 {
		return
	}
	res := engine.Result()
	summary, err := report.Summarize(res)
	if err != nil {
		log.Error().Err(err).Msg("summarize")
		return
	}
	if err := report.WriteAll(filepath.Join(dir, "paper_"+res.RunID), res, summary); err != nil {
		log.Error().Err(err).Msg("write report")
		return
	}
	log.Info().
		Str("final_capital", summary.FinalCapital.StringFixed(2)).
		Float64("total_return", summary.TotalReturn).
		Int("trades", summary.Trades).
		Msg("paper report written")
}
