// Package exchange hosts live pair feeds that turn trade streams into observations.
package exchange

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kalmanarb-go/internal/metrics"
	"kalmanarb-go/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic prices (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades from Binance public websockets.
	ProviderBinance = "binance"
)

const (
	defaultSampleInterval = time.Second
	defaultBinanceURL     = "wss://stream.binance.com:9443"
)

// Feed tracks the last traded price of both legs and samples them into observations.
type Feed struct {
	provider       string
	symbolY        string
	symbolX        string
	log            zerolog.Logger
	sampleInterval time.Duration
	binanceURL     string
	lastPrices     map[string]float64
	mu             sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithSampleInterval overrides how often an observation is emitted.
func WithSampleInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.sampleInterval = d
		}
	}
}

// WithBinanceURL points the Binance provider at another websocket endpoint.
func WithBinanceURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.binanceURL = strings.TrimSuffix(url, "/")
		}
	}
}

// NewFeed constructs a pair feed backed by the requested provider.
func NewFeed(provider, symbolY, symbolX string, log zerolog.Logger, opts ...Option) (*Feed, error) {
	if provider == "" {
		provider = ProviderStub
	}
	provider = strings.ToLower(provider)
	if provider != ProviderStub && provider != ProviderBinance {
		return nil, fmt.Errorf("unknown feed provider %q", provider)
	}
	symbolY = strings.ToUpper(strings.TrimSpace(symbolY))
	symbolX = strings.ToUpper(strings.TrimSpace(symbolX))
	if symbolY == "" || symbolX == "" || symbolY == symbolX {
		return nil, fmt.Errorf("feed needs two distinct symbols, got %q and %q", symbolY, symbolX)
	}
	f := &Feed{
		provider:       provider,
		symbolY:        symbolY,
		symbolX:        symbolX,
		log:            log,
		sampleInterval: defaultSampleInterval,
		binanceURL:     defaultBinanceURL,
		lastPrices:     make(map[string]float64, 2),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Symbols returns the Y and X leg symbols.
func (f *Feed) Symbols() (string, string) { return f.symbolY, f.symbolX }

// Run pushes one observation per sample interval onto out until the context is canceled.
// Nothing is emitted until both legs have traded.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Observation) error {
	srcCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		switch f.provider {
		case ProviderBinance:
			errCh <- f.runBinance(srcCtx)
		default:
			errCh <- f.runStub(srcCtx)
		}
	}()

	ticker := time.NewTicker(f.sampleInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err == nil {
				err = fmt.Errorf("%s feed stopped", f.provider)
			}
			return err
		case ts := <-ticker.C:
			py, px, ok := f.prices()
			if !ok {
				continue
			}
			ts = ts.UTC()
			if !ts.After(last) {
				ts = last.Add(time.Nanosecond)
			}
			last = ts
			select {
			case out <- signal.Observation{Ts: ts, PriceY: py, PriceX: px}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *Feed) observe(symbol string, price float64) {
	if !(price > 0) || math.IsInf(price, 0) {
		return
	}
	f.mu.Lock()
	f.lastPrices[symbol] = price
	f.mu.Unlock()
	metrics.TicksTotal.WithLabelValues(symbol).Inc()
}

func (f *Feed) prices() (float64, float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	py, okY := f.lastPrices[f.symbolY]
	px, okX := f.lastPrices[f.symbolX]
	return py, px, okY && okX
}

// runStub drives a pair whose spread oscillates around a fixed hedge ratio.
func (f *Feed) runStub(ctx context.Context) error {
	interval := f.sampleInterval / 2
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for {
		x := 100 + 2*math.Sin(float64(n)/20)
		y := 5 + 0.9*x + 1.5*math.Sin(float64(n)/7)
		f.observe(f.symbolX, x)
		f.observe(f.symbolY, y)
		n++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
