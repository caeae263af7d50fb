package marketdata

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"kalmanarb-go/internal/signal"
)

// Synthetic parameterizes a cointegrated pair with a drifting hedge ratio:
// X follows a geometric Brownian motion, beta ramps linearly from BetaStart to BetaEnd with
// Gaussian jitter, and Y = Alpha + beta*X + N(0, Noise^2).
type Synthetic struct {
	Points    int
	Seed      int64
	Start     time.Time
	Step      time.Duration
	X0        float64
	Mu        float64
	Sigma     float64
	Alpha     float64
	BetaStart float64
	BetaEnd   float64
	BetaNoise float64
	Noise     float64
}

// DefaultSynthetic mirrors the dataset the filter is validated against.
func DefaultSynthetic() Synthetic {
	return Synthetic{
		Points:    2000,
		Seed:      42,
		Start:     time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC),
		Step:      24 * time.Hour,
		X0:        100,
		Mu:        0.05,
		Sigma:     0.2,
		Alpha:     5,
		BetaStart: 0.8,
		BetaEnd:   1.2,
		BetaNoise: 0.02,
		Noise:     0.5,
	}
}

// Generate draws a deterministic series for the given seed.
func Generate(p Synthetic) (Series, error) {
	if p.Points < 2 {
		return Series{}, fmt.Errorf("synthetic: need at least 2 points, got %d", p.Points)
	}
	if p.X0 <= 0 {
		return Series{}, fmt.Errorf("synthetic: x0 must be positive, got %v", p.X0)
	}
	if p.Step <= 0 {
		p.Step = 24 * time.Hour
	}
	rng := rand.New(rand.NewSource(p.Seed))
	const dt = 1.0 / 252

	n := p.Points
	beta := make([]float64, n)
	for i := range beta {
		ramp := p.BetaStart + (p.BetaEnd-p.BetaStart)*float64(i)/float64(n-1)
		beta[i] = ramp + rng.NormFloat64()*p.BetaNoise
	}

	obs := make([]signal.Observation, n)
	x := p.X0
	drift := (p.Mu - 0.5*p.Sigma*p.Sigma) * dt
	for t := 0; t < n; t++ {
		if t > 0 {
			x *= math.Exp(drift + p.Sigma*math.Sqrt(dt)*rng.NormFloat64())
		}
		y := p.Alpha + beta[t]*x + rng.NormFloat64()*p.Noise
		obs[t] = signal.Observation{
			Ts:     p.Start.Add(time.Duration(t) * p.Step),
			PriceY: y,
			PriceX: x,
		}
	}
	return Series{Observations: obs, BetaTrue: beta}, nil
}
