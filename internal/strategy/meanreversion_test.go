package strategy

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"kalmanarb-go/internal/kalman"
	"kalmanarb-go/internal/signal"
)

var t0 = time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)

func bar(i int, y, x float64) signal.Observation {
	return signal.Observation{Ts: t0.Add(time.Duration(i) * 24 * time.Hour), PriceY: y, PriceX: x}
}

func mustStrategy(t *testing.T, entry, exit float64, opts ...Option) *MeanReversion {
	t.Helper()
	strat, err := NewMeanReversion(entry, exit, kalman.DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("NewMeanReversion returned error: %v", err)
	}
	return strat
}

func TestNeutralBarsEmitNothing(t *testing.T) {
	strat := mustStrategy(t, 1.0, 0.0)
	for i := 0; i < 20; i++ {
		if sig, ok := strat.OnObservation(bar(i, 100, 100)); ok {
			t.Fatalf("bar %d: unexpected %s signal (z=%.4f)", i, sig.Kind, sig.ZScore)
		}
	}
	if strat.Position() != Flat {
		t.Fatalf("expected flat, got %s", strat.Position())
	}
}

func TestLongEntryAfterDownShock(t *testing.T) {
	strat := mustStrategy(t, 1.0, 0.0)
	for i := 0; i < 10; i++ {
		if _, ok := strat.OnObservation(bar(i, 100, 100)); ok {
			t.Fatalf("warm-up bar %d emitted a signal", i)
		}
	}

	shock := bar(10, 90, 100)
	sig, ok := strat.OnObservation(shock)
	if !ok {
		t.Fatalf("expected a signal on the shock bar (z=%.4f)", strat.Metrics().ZScore)
	}
	if sig.Kind != signal.LongSpread {
		t.Fatalf("expected LONG_SPREAD, got %s", sig.Kind)
	}
	if sig.EstimatedBeta <= 0 {
		t.Fatalf("expected positive beta, got %.4f", sig.EstimatedBeta)
	}
	if sig.ZScore >= -1.0 {
		t.Fatalf("expected z below -1, got %.4f", sig.ZScore)
	}
	if !sig.Ts.Equal(shock.Ts) {
		t.Fatalf("signal timestamp %s does not match bar %s", sig.Ts, shock.Ts)
	}
	if strat.Position() != LongSpread {
		t.Fatalf("expected LONG_SPREAD position, got %s", strat.Position())
	}
}

func TestShortEntryAfterUpShock(t *testing.T) {
	strat := mustStrategy(t, 1.0, 0.0)
	for i := 0; i < 10; i++ {
		strat.OnObservation(bar(i, 100, 100))
	}
	sig, ok := strat.OnObservation(bar(10, 110, 100))
	if !ok || sig.Kind != signal.ShortSpread {
		t.Fatalf("expected SHORT_SPREAD, got ok=%v kind=%s", ok, sig.Kind)
	}
	if strat.Position() != ShortSpread {
		t.Fatalf("expected SHORT_SPREAD position, got %s", strat.Position())
	}
}

func TestForcedLongExitsWhenScoreRecovers(t *testing.T) {
	strat := mustStrategy(t, 1.0, 0.0, WithInitialPosition(LongSpread))

	sig, ok := strat.OnObservation(bar(0, 100, 100))
	if strat.Metrics().ZScore < 0 {
		t.Fatalf("fixture expected a non-negative z-score, got %.4f", strat.Metrics().ZScore)
	}
	if !ok || sig.Kind != signal.Exit {
		t.Fatalf("expected EXIT, got ok=%v kind=%s", ok, sig.Kind)
	}
	if strat.Position() != Flat {
		t.Fatalf("expected flat after exit, got %s", strat.Position())
	}
}

func TestNoDoubleEntryWhileLong(t *testing.T) {
	strat := mustStrategy(t, 2.0, 0.0, WithInitialPosition(LongSpread))
	for i := 0; i < 10; i++ {
		strat.filter.Update(100, 100)
	}

	sig, ok := strat.OnObservation(bar(10, 80, 100))
	if ok {
		t.Fatalf("expected no signal while already long, got %s", sig.Kind)
	}
	if strat.Position() != LongSpread {
		t.Fatalf("expected to remain LONG_SPREAD, got %s", strat.Position())
	}
}

func TestShortExitThreshold(t *testing.T) {
	strat := mustStrategy(t, 1.0, 0.5, WithInitialPosition(ShortSpread))
	if next, _, emit := strat.transition(0.6); emit || next != ShortSpread {
		t.Fatalf("z=0.6 should hold the short with exit_std=0.5")
	}
	next, kind, emit := strat.transition(0.4)
	if !emit || kind != signal.Exit || next != Flat {
		t.Fatalf("z=0.4 should exit the short, got emit=%v kind=%s next=%s", emit, kind, next)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from Position
		z    float64
		next Position
		kind signal.Kind
		emit bool
	}{
		{Flat, -1.5, LongSpread, signal.LongSpread, true},
		{Flat, 1.5, ShortSpread, signal.ShortSpread, true},
		{Flat, -1.0, Flat, 0, false},
		{Flat, 1.0, Flat, 0, false},
		{Flat, 0, Flat, 0, false},
		{LongSpread, 0.1, Flat, signal.Exit, true},
		{LongSpread, -0.1, LongSpread, 0, false},
		{LongSpread, 5, Flat, signal.Exit, true},
		{ShortSpread, -0.1, Flat, signal.Exit, true},
		{ShortSpread, 0.1, ShortSpread, 0, false},
		{ShortSpread, -5, Flat, signal.Exit, true},
	}
	for _, tc := range cases {
		strat := mustStrategy(t, 1.0, 0.0, WithInitialPosition(tc.from))
		next, kind, emit := strat.transition(tc.z)
		if next != tc.next || kind != tc.kind || emit != tc.emit {
			t.Fatalf("%s z=%.2f: got (%s, %s, %v) want (%s, %s, %v)", tc.from, tc.z, next, kind, emit, tc.next, tc.kind, tc.emit)
		}
	}
}

func TestStateMachineLegality(t *testing.T) {
	strat := mustStrategy(t, 1.0, 0.0)
	rng := rand.New(rand.NewSource(7))

	y, x := 100.0, 100.0
	for i := 0; i < 5000; i++ {
		x *= 1 + rng.NormFloat64()*0.01
		y = 0.9*x + 10 + rng.NormFloat64()*2
		before := strat.Position()
		sig, ok := strat.OnObservation(bar(i, y, x))
		after := strat.Position()

		if !ok {
			if before != after {
				t.Fatalf("bar %d: state changed %s -> %s without a signal", i, before, after)
			}
			continue
		}
		switch sig.Kind {
		case signal.LongSpread:
			if before != Flat || after != LongSpread {
				t.Fatalf("bar %d: LONG_SPREAD from %s to %s", i, before, after)
			}
		case signal.ShortSpread:
			if before != Flat || after != ShortSpread {
				t.Fatalf("bar %d: SHORT_SPREAD from %s to %s", i, before, after)
			}
		case signal.Exit:
			if before == Flat || after != Flat {
				t.Fatalf("bar %d: EXIT from %s to %s", i, before, after)
			}
		default:
			t.Fatalf("bar %d: unknown kind %s", i, sig.Kind)
		}
	}
}

func TestNewMeanReversionValidation(t *testing.T) {
	cases := []struct {
		name        string
		entry, exit float64
		filter      kalman.Config
		wantErr     error
	}{
		{"zero entry", 0, -1, kalman.DefaultConfig(), ErrInvalidConfig},
		{"exit equals entry", 1, 1, kalman.DefaultConfig(), ErrInvalidConfig},
		{"exit above entry", 1, 2, kalman.DefaultConfig(), ErrInvalidConfig},
		{"bad delta", 1, 0, kalman.Config{R: 0.01, Delta: 1}, kalman.ErrInvalidConfig},
	}
	for _, tc := range cases {
		_, err := NewMeanReversion(tc.entry, tc.exit, tc.filter)
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}

	if _, err := NewMeanReversion(1, 0, kalman.DefaultConfig(), WithInitialPosition(Position(9))); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid initial position error, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	params := Params{EntryStd: 1, ExitStd: 0, Filter: kalman.DefaultConfig()}
	for _, mode := range []string{"", "kalman", " Kalman_Mean_Reversion "} {
		strat, err := Build(mode, params)
		if err != nil {
			t.Fatalf("Build(%q) returned error: %v", mode, err)
		}
		if strat.Name() != "KalmanMeanReversion" {
			t.Fatalf("unexpected strategy %s", strat.Name())
		}
	}

	strat, err := Build("obi", params)
	if err == nil || strat != nil {
		t.Fatalf("expected unknown mode error, got %v / %v", strat, err)
	}
	if _, err := Build("kalman", Params{EntryStd: -1}); err == nil {
		t.Fatalf("expected invalid params error")
	}
}
