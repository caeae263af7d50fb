package strategy

import (
	"fmt"
	"strings"

	"kalmanarb-go/internal/kalman"
	"kalmanarb-go/internal/signal"
)

// ModeKalmanMeanReversion is the canonical name of the Kalman z-score strategy.
const ModeKalmanMeanReversion = "kalman_mean_reversion"

// Strategy defines behaviour shared by strategy implementations used by the engine.
type Strategy interface {
	OnObservation(obs signal.Observation) (signal.Signal, bool)
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	EntryStd float64
	ExitStd  float64
	Filter   kalman.Config
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params, opts ...Option) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "kalman", "mean_reversion", ModeKalmanMeanReversion:
		strat, err := NewMeanReversion(params.EntryStd, params.ExitStd, params.Filter, opts...)
		if err != nil {
			return nil, err
		}
		return strat, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy mode %q", ErrInvalidConfig, mode)
	}
}
