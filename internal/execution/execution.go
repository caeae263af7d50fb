// Package execution turns ledger rebalances into per-leg orders and reports them.
package execution

import (
	"fmt"
	"time"

	"kalmanarb-go/internal/metrics"

	"github.com/rs/zerolog"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// Order represents one leg of a rebalance.
type Order struct {
	Symbol string
	Side   Side
	Qty    int64
	Price  float64
	Ts     time.Time
}

// LegOrders converts signed share deltas of the Y and X legs into orders, skipping
// legs that do not move.
func LegOrders(ts time.Time, symbolY, symbolX string, deltaY, deltaX int64, priceY, priceX float64) []Order {
	orders := make([]Order, 0, 2)
	for _, leg := range [...]struct {
		symbol string
		delta  int64
		price  float64
	}{{symbolY, deltaY, priceY}, {symbolX, deltaX, priceX}} {
		switch {
		case leg.delta > 0:
			orders = append(orders, Order{Symbol: leg.symbol, Side: Buy, Qty: leg.delta, Price: leg.price, Ts: ts})
		case leg.delta < 0:
			orders = append(orders, Order{Symbol: leg.symbol, Side: Sell, Qty: -leg.delta, Price: leg.price, Ts: ts})
		}
	}
	return orders
}

// Executor implements a logger-backed submitter for simulated orders.
type Executor struct{ log zerolog.Logger }

// NewExecutor wraps a zerolog logger for order submissions.
func NewExecutor(log zerolog.Logger) *Executor { return &Executor{log: log} }

// Submit validates and logs the order. Nothing leaves the process.
func (executor *Executor) Submit(order Order) error {
	if order.Qty <= 0 {
		return fmt.Errorf("order %s: quantity must be positive, got %d", order.Symbol, order.Qty)
	}
	if order.Price <= 0 {
		return fmt.Errorf("order %s: price must be positive, got %v", order.Symbol, order.Price)
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	executor.log.Debug().
		Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Int64("qty", order.Qty).
		Float64("px", order.Price).
		Time("bar", order.Ts).
		Msg("submit order (simulated)")
	return nil
}
