package paper

import (
	"time"

	"kalmanarb-go/internal/signal"
)

// TradeRecord is one executed signal.
type TradeRecord struct {
	RunID          string      `json:"run_id,omitempty"`
	Ts             time.Time   `json:"ts"`
	Kind           signal.Kind `json:"kind"`
	ReferencePrice float64     `json:"reference_price"` // Y leg price at execution
	PriceX         float64     `json:"price_x"`
	ZScore         float64     `json:"z_score"`
	EstimatedBeta  float64     `json:"estimated_beta"`
	TargetY        int64       `json:"target_y"`
	TargetX        int64       `json:"target_x"`
	DeltaY         int64       `json:"delta_y"`
	DeltaX         int64       `json:"delta_x"`
	CashAfter      float64     `json:"cash_after"`
}

// Journal stores trade records in memory in execution order.
type Journal struct {
	trades []TradeRecord
}

// NewJournal creates an empty journal optionally pre-sizing storage.
func NewJournal(capacity int) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	return &Journal{trades: make([]TradeRecord, 0, capacity)}
}

// Record appends a trade to the journal.
func (j *Journal) Record(trade TradeRecord) {
	j.trades = append(j.trades, trade)
}

// Len returns the number of recorded trades.
func (j *Journal) Len() int { return len(j.trades) }

// Snapshot returns a copy of the recorded trades.
func (j *Journal) Snapshot() []TradeRecord {
	out := make([]TradeRecord, len(j.trades))
	copy(out, j.trades)
	return out
}
