// Package strategy contains trading signal generation logic wired into observations.
package strategy

import (
	"errors"
	"fmt"
	"math"

	"kalmanarb-go/internal/kalman"
	"kalmanarb-go/internal/signal"
)

// ErrInvalidConfig reports thresholds that cannot define an entry/exit band.
var ErrInvalidConfig = errors.New("invalid strategy config")

// Position is the strategy's view of the spread it currently holds.
type Position int8

const (
	// Flat holds nothing.
	Flat Position = iota
	// LongSpread is long Y, short beta*X.
	LongSpread
	// ShortSpread is short Y, long beta*X.
	ShortSpread
)

// String implements fmt.Stringer.
func (p Position) String() string {
	switch p {
	case Flat:
		return "FLAT"
	case LongSpread:
		return "LONG_SPREAD"
	case ShortSpread:
		return "SHORT_SPREAD"
	default:
		return fmt.Sprintf("Position(%d)", int8(p))
	}
}

// MeanReversion trades the Kalman innovation z-score: it opens when the spread leaves the
// entry band and closes once it crosses back through the exit threshold.
type MeanReversion struct {
	entryStd float64
	exitStd  float64
	filter   *kalman.Filter
	position Position
	last     kalman.Metrics
}

// Option configures MeanReversion construction parameters.
type Option func(*MeanReversion)

// WithFilter injects a pre-built filter, e.g. one seeded with a prior.
func WithFilter(f *kalman.Filter) Option {
	return func(m *MeanReversion) {
		if f != nil {
			m.filter = f
		}
	}
}

// WithInitialPosition starts the state machine somewhere other than Flat.
func WithInitialPosition(p Position) Option {
	return func(m *MeanReversion) { m.position = p }
}

// NewMeanReversion validates the thresholds and builds the strategy with its own filter.
func NewMeanReversion(entryStd, exitStd float64, filterCfg kalman.Config, opts ...Option) (*MeanReversion, error) {
	if !(entryStd > 0) || math.IsInf(entryStd, 0) {
		return nil, fmt.Errorf("%w: entry_std must be positive, got %v", ErrInvalidConfig, entryStd)
	}
	if !(exitStd < entryStd) {
		return nil, fmt.Errorf("%w: exit_std %v must be below entry_std %v", ErrInvalidConfig, exitStd, entryStd)
	}
	m := &MeanReversion{entryStd: entryStd, exitStd: exitStd}
	for _, opt := range opts {
		opt(m)
	}
	if m.filter == nil {
		f, err := kalman.New(filterCfg)
		if err != nil {
			return nil, err
		}
		m.filter = f
	}
	switch m.position {
	case Flat, LongSpread, ShortSpread:
	default:
		return nil, fmt.Errorf("%w: unknown initial position %d", ErrInvalidConfig, int8(m.position))
	}
	return m, nil
}

// Name returns the identifier for logging.
func (m *MeanReversion) Name() string { return "KalmanMeanReversion" }

// Position returns the current state of the decision machine.
func (m *MeanReversion) Position() Position { return m.position }

// Metrics returns the filter output of the most recent observation.
func (m *MeanReversion) Metrics() kalman.Metrics { return m.last }

// OnObservation updates the filter with the bar and returns at most one signal.
// The filter is updated on every call, including while flat.
func (m *MeanReversion) OnObservation(obs signal.Observation) (signal.Signal, bool) {
	metrics := m.filter.Update(obs.PriceY, obs.PriceX)
	m.last = metrics
	z := metrics.ZScore

	next, kind, emit := m.transition(z)
	m.position = next
	if !emit {
		return signal.Signal{}, false
	}
	return signal.Signal{
		Ts:            obs.Ts,
		Kind:          kind,
		ZScore:        z,
		EstimatedBeta: metrics.Beta,
	}, true
}

func (m *MeanReversion) transition(z float64) (Position, signal.Kind, bool) {
	switch m.position {
	case Flat:
		if z < -m.entryStd {
			return LongSpread, signal.LongSpread, true
		}
		if z > m.entryStd {
			return ShortSpread, signal.ShortSpread, true
		}
	case LongSpread:
		if z > -m.exitStd {
			return Flat, signal.Exit, true
		}
	case ShortSpread:
		if z < m.exitStd {
			return Flat, signal.Exit, true
		}
	}
	return m.position, 0, false
}
