// Package backtest replays observations through a strategy against a simulated two-leg ledger.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kalmanarb-go/internal/execution"
	"kalmanarb-go/internal/kalman"
	"kalmanarb-go/internal/marketdata"
	"kalmanarb-go/internal/metrics"
	"kalmanarb-go/internal/paper"
	"kalmanarb-go/internal/risk"
	"kalmanarb-go/internal/signal"
	"kalmanarb-go/internal/strategy"
)

var (
	// ErrInvalidConfig reports engine settings outside their valid ranges.
	ErrInvalidConfig = errors.New("invalid backtest config")
	// ErrInvalidObservation reports a bar that would corrupt the ledger or the filter recursion.
	ErrInvalidObservation = errors.New("invalid observation")
)

const (
	defaultAllocationFraction = 0.45
	defaultSymbolY            = "asset_y"
	defaultSymbolX            = "asset_x"
)

// Config holds the ledger and sizing settings.
type Config struct {
	InitialCapital     float64
	AllocationFraction float64 // share of cash committed to each leg
	SymbolY            string
	SymbolX            string
	Risk               risk.Limits
}

func (c Config) withDefaults() Config {
	q := c
	if q.AllocationFraction == 0 {
		q.AllocationFraction = defaultAllocationFraction
	}
	if q.SymbolY == "" {
		q.SymbolY = defaultSymbolY
	}
	if q.SymbolX == "" {
		q.SymbolX = defaultSymbolX
	}
	return q
}

// Validate checks capital and allocation.
func (c Config) Validate() error {
	if !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0) {
		return fmt.Errorf("%w: initial capital must be positive, got %v", ErrInvalidConfig, c.InitialCapital)
	}
	if !(c.AllocationFraction > 0 && c.AllocationFraction <= 1) {
		return fmt.Errorf("%w: allocation fraction must be in (0,1], got %v", ErrInvalidConfig, c.AllocationFraction)
	}
	if c.Risk.MaxGrossLeverage < 0 {
		return fmt.Errorf("%w: max gross leverage must not be negative, got %v", ErrInvalidConfig, c.Risk.MaxGrossLeverage)
	}
	return nil
}

// EquitySample is the portfolio value marked at the start of a bar.
type EquitySample struct {
	Ts     time.Time
	Equity float64
}

// Result is everything a run produced, in bar order.
type Result struct {
	RunID          string
	InitialCapital float64
	Equity         []EquitySample
	Trades         []paper.TradeRecord
	Signals        int
	FinalCash      float64
	PositionY      int64
	PositionX      int64
}

// Engine owns the ledger, the equity curve and the trade journal for one run.
type Engine struct {
	cfg      Config
	runID    string
	strat    strategy.Strategy
	account  *paper.Account
	journal  *paper.Journal
	exec     *execution.Executor
	recorder paper.TradeRecorder
	log      zerolog.Logger

	equity  []EquitySample
	signals int
	lastTs  time.Time
}

// Option configures Engine construction parameters.
type Option func(*Engine)

// WithRecorder streams every executed trade to r.
func WithRecorder(r paper.TradeRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.runID = id
		}
	}
}

// New validates cfg and builds an engine around strat.
func New(cfg Config, strat strategy.Strategy, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if strat == nil {
		return nil, fmt.Errorf("%w: nil strategy", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		runID:   uuid.NewString(),
		strat:   strat,
		account: paper.NewAccount(cfg.InitialCapital),
		journal: paper.NewJournal(16),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = log.With().Str("run_id", e.runID).Str("strategy", strat.Name()).Logger()
	e.exec = execution.NewExecutor(e.log)
	metrics.Equity.Set(cfg.InitialCapital)
	return e, nil
}

// RunID identifies this run in logs and artifacts.
func (e *Engine) RunID() string { return e.runID }

// Bars returns the number of observations processed so far.
func (e *Engine) Bars() int { return len(e.equity) }

// Run replays seq in order until it is exhausted. A sequence error, an invalid bar or a
// canceled context aborts the run; no bar is skipped or retried.
func (e *Engine) Run(ctx context.Context, seq iter.Seq2[signal.Observation, error]) (*Result, error) {
	e.log.Info().Float64("initial_capital", e.cfg.InitialCapital).Msg("backtest started")
	for obs, err := range seq {
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", e.Bars(), err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.Step(obs); err != nil {
			return nil, err
		}
	}
	if e.Bars() == 0 {
		return nil, fmt.Errorf("%w: no observations", marketdata.ErrInvalidData)
	}
	res := e.Result()
	e.log.Info().
		Int("bars", len(res.Equity)).
		Int("trades", len(res.Trades)).
		Float64("final_equity", res.Equity[len(res.Equity)-1].Equity).
		Msg("backtest finished")
	return res, nil
}

// Step processes one bar: mark to market, ask the strategy, execute any signal.
func (e *Engine) Step(obs signal.Observation) error {
	if err := e.check(obs); err != nil {
		return err
	}

	equity, err := e.account.Equity(obs.PriceY, obs.PriceX)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}
	e.equity = append(e.equity, EquitySample{Ts: obs.Ts, Equity: equity})
	e.lastTs = obs.Ts
	metrics.BarsTotal.Inc()
	metrics.Equity.Set(equity)

	sig, ok := e.strat.OnObservation(obs)
	if d, isDiag := e.strat.(interface{ Metrics() kalman.Metrics }); isDiag {
		m := d.Metrics()
		metrics.ZScore.Set(m.ZScore)
		metrics.HedgeRatio.Set(m.Beta)
	}
	if !ok {
		return nil
	}
	e.signals++
	metrics.SignalsTotal.WithLabelValues(sig.Kind.String()).Inc()
	return e.execute(sig, obs, equity)
}

func (e *Engine) check(obs signal.Observation) error {
	if err := marketdata.ValidatePrices(obs); err != nil {
		return fmt.Errorf("%w at %s: %v", ErrInvalidObservation, obs.Ts, err)
	}
	if obs.Ts.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidObservation)
	}
	if len(e.equity) > 0 && !obs.Ts.After(e.lastTs) {
		return fmt.Errorf("%w: %s does not follow %s", ErrInvalidObservation, obs.Ts, e.lastTs)
	}
	return nil
}

func (e *Engine) execute(sig signal.Signal, obs signal.Observation, equity float64) error {
	targetY, targetX, err := TargetLegs(sig, e.account.Cash(), e.cfg.AllocationFraction, obs.PriceY, obs.PriceX)
	if err != nil {
		return err
	}

	if sig.Kind != signal.Exit {
		gross := math.Abs(float64(targetY))*obs.PriceY + math.Abs(float64(targetX))*obs.PriceX
		if !e.cfg.Risk.Allow(gross, equity) {
			metrics.RiskRejectionsTotal.Inc()
			e.log.Warn().
				Str("kind", sig.Kind.String()).
				Float64("gross_notional", gross).
				Float64("equity", equity).
				Msg("entry rejected by leverage limit")
			return nil
		}
	}

	r, err := e.account.Rebalance(targetY, targetX, obs.PriceY, obs.PriceX)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}
	if r.DeltaY == 0 && r.DeltaX == 0 {
		e.log.Debug().Str("kind", sig.Kind.String()).Msg("signal left the book unchanged")
		return nil
	}
	for _, order := range execution.LegOrders(obs.Ts, e.cfg.SymbolY, e.cfg.SymbolX, r.DeltaY, r.DeltaX, obs.PriceY, obs.PriceX) {
		if err := e.exec.Submit(order); err != nil {
			return err
		}
	}

	trade := paper.TradeRecord{
		RunID:          e.runID,
		Ts:             obs.Ts,
		Kind:           sig.Kind,
		ReferencePrice: obs.PriceY,
		PriceX:         obs.PriceX,
		ZScore:         sig.ZScore,
		EstimatedBeta:  sig.EstimatedBeta,
		TargetY:        targetY,
		TargetX:        targetX,
		DeltaY:         r.DeltaY,
		DeltaX:         r.DeltaX,
		CashAfter:      r.CashAfter,
	}
	e.journal.Record(trade)
	metrics.TradesTotal.WithLabelValues(sig.Kind.String()).Inc()
	if e.recorder != nil {
		if err := e.recorder.Record(trade); err != nil {
			return fmt.Errorf("record trade: %w", err)
		}
	}
	e.log.Info().
		Time("bar", obs.Ts).
		Str("kind", sig.Kind.String()).
		Float64("z", sig.ZScore).
		Float64("beta", sig.EstimatedBeta).
		Int64("pos_y", targetY).
		Int64("pos_x", targetX).
		Float64("cash", r.CashAfter).
		Msg("signal executed")
	return nil
}

// TargetLegs sizes both legs for a signal: each leg commits cash*fraction, the share counts
// are truncated toward zero, and the X leg is sized by the estimated beta with the opposite
// sign of the Y leg. Exit targets zero on both legs.
func TargetLegs(sig signal.Signal, cash, fraction, priceY, priceX float64) (int64, int64, error) {
	var sign float64
	switch sig.Kind {
	case signal.LongSpread:
		sign = 1
	case signal.ShortSpread:
		sign = -1
	case signal.Exit:
		return 0, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown signal kind %s", sig.Kind)
	}
	exposure := cash * fraction
	qtyY, err := shares(exposure / priceY)
	if err != nil {
		return 0, 0, fmt.Errorf("y leg: %w", err)
	}
	qtyX, err := shares(exposure * sig.EstimatedBeta / priceX)
	if err != nil {
		return 0, 0, fmt.Errorf("x leg: %w", err)
	}
	return int64(sign) * qtyY, -int64(sign) * qtyX, nil
}

// shares truncates q toward zero, rejecting values an int64 cannot hold.
func shares(q float64) (int64, error) {
	q = math.Trunc(q)
	if math.IsNaN(q) || math.IsInf(q, 0) || math.Abs(q) >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: share count %v out of range", ErrInvalidObservation, q)
	}
	return int64(q), nil
}

// Result snapshots the run so far.
func (e *Engine) Result() *Result {
	equity := make([]EquitySample, len(e.equity))
	copy(equity, e.equity)
	posY, posX := e.account.Positions()
	return &Result{
		RunID:          e.runID,
		InitialCapital: e.cfg.InitialCapital,
		Equity:         equity,
		Trades:         e.journal.Snapshot(),
		Signals:        e.signals,
		FinalCash:      e.account.Cash(),
		PositionY:      posY,
		PositionX:      posX,
	}
}
