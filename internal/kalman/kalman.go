// Package kalman estimates a time-varying intercept and hedge ratio between two price series.
//
// The state theta = [alpha, beta] follows a random walk with process noise Q = delta/(1-delta) * I,
// and each observation is y = alpha + beta*x + v with v ~ N(0, R). Updates are strictly sequential:
// every call depends on the full history through theta and P.
package kalman

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig reports filter parameters outside their valid ranges.
var ErrInvalidConfig = errors.New("invalid filter config")

// Config holds the filter's noise parameters.
type Config struct {
	R          float64 // measurement noise variance
	Delta      float64 // process-noise shaping factor, strictly in (0,1)
	JosephForm bool    // use the Joseph-stabilized covariance update
}

// DefaultConfig returns the parameters the mean-reversion strategy trades with.
func DefaultConfig() Config {
	return Config{R: 0.01, Delta: 1e-5}
}

// Validate checks R and Delta.
func (c Config) Validate() error {
	if !(c.R > 0) || math.IsInf(c.R, 0) {
		return fmt.Errorf("%w: R must be positive and finite, got %v", ErrInvalidConfig, c.R)
	}
	if !(c.Delta > 0 && c.Delta < 1) {
		return fmt.Errorf("%w: delta must be in (0,1), got %v", ErrInvalidConfig, c.Delta)
	}
	return nil
}

// State is the filter estimate: theta = [alpha, beta] and its 2x2 covariance P.
type State struct {
	Theta [2]float64
	P     [2][2]float64
}

// DiffusePrior is the uninformative starting state: theta = 0, P = I.
func DiffusePrior() State {
	return State{P: [2][2]float64{{1, 0}, {0, 1}}}
}

// Alpha returns the intercept estimate.
func (s State) Alpha() float64 { return s.Theta[0] }

// Beta returns the hedge ratio estimate.
func (s State) Beta() float64 { return s.Theta[1] }

// Metrics is the output of one update.
type Metrics struct {
	Alpha    float64
	Beta     float64
	Error    float64 // innovation y - yhat
	Variance float64 // innovation variance S
	ZScore   float64 // Error / sqrt(S), 0 when S <= 0
}

// Filter is the recursive estimator. It is not safe for concurrent use.
type Filter struct {
	r      float64
	q      float64 // diagonal of Q
	joseph bool
	state  State
}

// Option customizes filter construction.
type Option func(*Filter)

// WithPrior replaces the diffuse prior.
func WithPrior(s State) Option {
	return func(f *Filter) { f.state = s }
}

// New builds a filter from cfg, starting at the diffuse prior unless WithPrior is given.
func New(cfg Config, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{
		r:      cfg.R,
		q:      cfg.Delta / (1 - cfg.Delta),
		joseph: cfg.JosephForm,
		state:  DiffusePrior(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// State returns a copy of the current estimate.
func (f *Filter) State() State { return f.state }

// Update runs one predict/correct cycle for the pair (y, x) and replaces the state.
func (f *Filter) Update(y, x float64) Metrics {
	prev := f.state

	// predict: identity transition, so theta carries over and P gains Q on the diagonal
	theta := prev.Theta
	p := prev.P
	p[0][0] += f.q
	p[1][1] += f.q

	// H = [1, x]
	yHat := theta[0] + x*theta[1]
	innovation := y - yHat

	// P H^T
	ph := [2]float64{
		p[0][0] + p[0][1]*x,
		p[1][0] + p[1][1]*x,
	}
	s := ph[0] + x*ph[1] + f.r

	var next State
	if s != 0 {
		k := [2]float64{ph[0] / s, ph[1] / s}
		next.Theta = [2]float64{
			theta[0] + k[0]*innovation,
			theta[1] + k[1]*innovation,
		}
		next.P = f.posterior(p, k, x)
	} else {
		next = State{Theta: theta, P: p}
	}
	f.state = next

	z := 0.0
	if s > 0 {
		z = innovation / math.Sqrt(s)
	}
	return Metrics{
		Alpha:    next.Theta[0],
		Beta:     next.Theta[1],
		Error:    innovation,
		Variance: s,
		ZScore:   z,
	}
}

func (f *Filter) posterior(p [2][2]float64, k [2]float64, x float64) [2][2]float64 {
	// I - K H
	a := [2][2]float64{
		{1 - k[0], -k[0] * x},
		{-k[1], 1 - k[1]*x},
	}
	ap := mul(a, p)
	if !f.joseph {
		return ap
	}
	out := mul(ap, transpose(a))
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] += k[i] * f.r * k[j]
		}
	}
	return out
}

func mul(a, b [2][2]float64) [2][2]float64 {
	var out [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j]
		}
	}
	return out
}

func transpose(a [2][2]float64) [2][2]float64 {
	return [2][2]float64{{a[0][0], a[1][0]}, {a[0][1], a[1][1]}}
}

// Series holds the per-step output of Batch.
type Series struct {
	Alpha    []float64
	Beta     []float64
	ZScore   []float64
	Error    []float64
	Variance []float64
}

// Len returns the number of steps.
func (s Series) Len() int { return len(s.Beta) }

// Batch applies Update to each (ys[i], xs[i]) in order.
func (f *Filter) Batch(ys, xs []float64) (Series, error) {
	if len(ys) != len(xs) {
		return Series{}, fmt.Errorf("batch: %d y values but %d x values", len(ys), len(xs))
	}
	n := len(ys)
	out := Series{
		Alpha:    make([]float64, n),
		Beta:     make([]float64, n),
		ZScore:   make([]float64, n),
		Error:    make([]float64, n),
		Variance: make([]float64, n),
	}
	for i := range ys {
		m := f.Update(ys[i], xs[i])
		out.Alpha[i] = m.Alpha
		out.Beta[i] = m.Beta
		out.ZScore[i] = m.ZScore
		out.Error[i] = m.Error
		out.Variance[i] = m.Variance
	}
	return out, nil
}

// RMSE compares estimates to a reference series, skipping the first warmup samples.
func RMSE(estimate, truth []float64, warmup int) (float64, error) {
	if len(estimate) != len(truth) {
		return 0, fmt.Errorf("rmse: %d estimates but %d reference values", len(estimate), len(truth))
	}
	if warmup < 0 {
		warmup = 0
	}
	if warmup >= len(estimate) {
		return 0, fmt.Errorf("rmse: warmup %d leaves no samples out of %d", warmup, len(estimate))
	}
	var sum float64
	for i := warmup; i < len(estimate); i++ {
		d := estimate[i] - truth[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(estimate)-warmup)), nil
}
