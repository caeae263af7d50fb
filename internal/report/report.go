// Package report turns a backtest result into summary statistics and flat artifacts.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"kalmanarb-go/internal/backtest"
	"kalmanarb-go/internal/kalman"
)

// TradingDaysPerYear annualizes the per-bar Sharpe ratio.
const TradingDaysPerYear = 252

// Summary is the scalar outcome of one run.
type Summary struct {
	RunID          string          `json:"run_id"`
	Bars           int             `json:"bars"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital"`
	FinalCash      decimal.Decimal `json:"final_cash"`
	PositionY      int64           `json:"position_y"`
	PositionX      int64           `json:"position_x"`
	TotalReturn    float64         `json:"total_return"`
	Sharpe         float64         `json:"sharpe"`
	MaxDrawdown    float64         `json:"max_drawdown"`
	Trades         int             `json:"trades"`
	Signals        int             `json:"signals"`
}

// Summarize computes the summary of res. Final capital is the last equity sample,
// marked before that bar's signal executed.
func Summarize(res *backtest.Result) (Summary, error) {
	if res == nil || len(res.Equity) == 0 {
		return Summary{}, fmt.Errorf("report: empty equity curve")
	}
	if !(res.InitialCapital > 0) {
		return Summary{}, fmt.Errorf("report: initial capital must be positive, got %v", res.InitialCapital)
	}
	curve := make([]float64, len(res.Equity))
	for i, s := range res.Equity {
		curve[i] = s.Equity
	}
	final := curve[len(curve)-1]
	return Summary{
		RunID:          res.RunID,
		Bars:           len(curve),
		Start:          res.Equity[0].Ts,
		End:            res.Equity[len(res.Equity)-1].Ts,
		InitialCapital: money(res.InitialCapital),
		FinalCapital:   money(final),
		FinalCash:      money(res.FinalCash),
		PositionY:      res.PositionY,
		PositionX:      res.PositionX,
		TotalReturn:    final/res.InitialCapital - 1,
		Sharpe:         Sharpe(Returns(curve)),
		MaxDrawdown:    MaxDrawdown(curve),
		Trades:         len(res.Trades),
		Signals:        res.Signals,
	}, nil
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Returns computes simple bar-over-bar returns. A bar following a non-positive value
// contributes no return.
func Returns(curve []float64) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1]
		if prev <= 0 {
			continue
		}
		out = append(out, curve[i]/prev-1)
	}
	return out
}

// Sharpe annualizes mean/std of returns by sqrt(252), using the sample standard deviation.
// It is zero for fewer than two returns or zero variance.
func Sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(n-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
func MaxDrawdown(curve []float64) float64 {
	var peak, worst float64
	for i, v := range curve {
		if i == 0 || v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// WriteEquityCSV writes ts,equity rows.
func WriteEquityCSV(w io.Writer, samples []backtest.EquitySample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "equity"}); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write([]string{s.Ts.Format(time.RFC3339Nano), formatFloat(s.Equity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV writes one row per executed trade.
func WriteTradesCSV(w io.Writer, res *backtest.Result) error {
	cw := csv.NewWriter(w)
	header := []string{"timestamp", "kind", "reference_price", "price_x", "z_score", "estimated_beta",
		"target_y", "target_x", "delta_y", "delta_x", "cash_after"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range res.Trades {
		row := []string{
			t.Ts.Format(time.RFC3339Nano),
			t.Kind.String(),
			formatFloat(t.ReferencePrice),
			formatFloat(t.PriceX),
			formatFloat(t.ZScore),
			formatFloat(t.EstimatedBeta),
			strconv.FormatInt(t.TargetY, 10),
			strconv.FormatInt(t.TargetX, 10),
			strconv.FormatInt(t.DeltaY, 10),
			strconv.FormatInt(t.DeltaX, 10),
			formatFloat(t.CashAfter),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFilterCSV writes the per-step filter output next to the bar timestamps.
func WriteFilterCSV(w io.Writer, ts []time.Time, s kalman.Series) error {
	if len(ts) != s.Len() {
		return fmt.Errorf("report: %d timestamps for %d filter steps", len(ts), s.Len())
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "alpha", "beta", "z_score", "error", "variance"}); err != nil {
		return err
	}
	for i := range ts {
		row := []string{
			ts[i].Format(time.RFC3339Nano),
			formatFloat(s.Alpha[i]),
			formatFloat(s.Beta[i]),
			formatFloat(s.ZScore[i]),
			formatFloat(s.Error[i]),
			formatFloat(s.Variance[i]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryJSON writes s as indented JSON.
func WriteSummaryJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteAll stores equity.csv, trades.csv and summary.json under dir.
func WriteAll(dir string, res *backtest.Result, s Summary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"equity.csv", func(w io.Writer) error { return WriteEquityCSV(w, res.Equity) }},
		{"trades.csv", func(w io.Writer) error { return WriteTradesCSV(w, res) }},
		{"summary.json", func(w io.Writer) error { return WriteSummaryJSON(w, s) }},
	}
	for _, out := range writers {
		if err := writeFile(filepath.Join(dir, out.name), out.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
