// Package risk guards how much gross exposure a new spread may take on.
package risk

// Limits caps gross notional as a multiple of equity. Zero disables the check.
type Limits struct {
	MaxGrossLeverage float64
}

// Allow reports whether a position with the given gross notional fits under the cap.
func (l Limits) Allow(grossNotional, equity float64) bool {
	if l.MaxGrossLeverage <= 0 {
		return true
	}
	if equity <= 0 {
		return false
	}
	return grossNotional <= l.MaxGrossLeverage*equity
}
