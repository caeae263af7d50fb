// Package marketdata loads, validates and synthesizes the paired price series replayed by backtests.
package marketdata

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"kalmanarb-go/internal/signal"
)

// ErrInvalidData reports empty, malformed or out-of-order input.
var ErrInvalidData = errors.New("invalid market data")

// Series is an ordered run of observations, optionally with the ground-truth hedge ratio
// used to validate synthetic datasets.
type Series struct {
	Observations []signal.Observation
	BetaTrue     []float64 // nil when the source carries no ground truth
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Observations) }

// HasBetaTrue reports whether ground truth accompanies every bar.
func (s Series) HasBetaTrue() bool {
	return len(s.BetaTrue) > 0 && len(s.BetaTrue) == len(s.Observations)
}

// All yields every observation in order. Each range over the returned sequence starts again
// from the first bar.
func (s Series) All() iter.Seq2[signal.Observation, error] {
	return func(yield func(signal.Observation, error) bool) {
		for _, obs := range s.Observations {
			if !yield(obs, nil) {
				return
			}
		}
	}
}

// Ys returns the dependent leg prices.
func (s Series) Ys() []float64 {
	out := make([]float64, len(s.Observations))
	for i, obs := range s.Observations {
		out[i] = obs.PriceY
	}
	return out
}

// Xs returns the hedge leg prices.
func (s Series) Xs() []float64 {
	out := make([]float64, len(s.Observations))
	for i, obs := range s.Observations {
		out[i] = obs.PriceX
	}
	return out
}

// Validate checks the series is non-empty, strictly increasing in time, and priced.
func (s Series) Validate() error {
	if len(s.Observations) == 0 {
		return fmt.Errorf("%w: no observations", ErrInvalidData)
	}
	if s.BetaTrue != nil && len(s.BetaTrue) != len(s.Observations) {
		return fmt.Errorf("%w: %d ground-truth values for %d bars", ErrInvalidData, len(s.BetaTrue), len(s.Observations))
	}
	for i, obs := range s.Observations {
		if err := ValidatePrices(obs); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !obs.Ts.After(s.Observations[i-1].Ts) {
			return fmt.Errorf("%w: bar %d at %s does not follow %s", ErrInvalidData, i,
				obs.Ts.Format("2006-01-02T15:04:05.999999999Z07:00"),
				s.Observations[i-1].Ts.Format("2006-01-02T15:04:05.999999999Z07:00"))
		}
	}
	return nil
}

// ValidatePrices rejects missing, non-finite and non-positive prices.
func ValidatePrices(obs signal.Observation) error {
	if !validPrice(obs.PriceY) {
		return fmt.Errorf("%w: price_y %v", ErrInvalidData, obs.PriceY)
	}
	if !validPrice(obs.PriceX) {
		return fmt.Errorf("%w: price_x %v", ErrInvalidData, obs.PriceX)
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
