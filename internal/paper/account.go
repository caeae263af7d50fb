// Package paper simulates the cash and two-leg share positions of a spread portfolio.
package paper

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPrice rejects marks and fills at missing, non-finite or non-positive prices.
var ErrInvalidPrice = errors.New("invalid price")

// Account tracks virtual cash and integer share positions in the Y and X legs.
// It is owned by a single engine and is not safe for concurrent use.
type Account struct {
	startingCash float64
	cash         float64
	posY         int64
	posX         int64
}

// Snapshot is a read-only view of the account, marked to market at the given prices.
type Snapshot struct {
	Cash      float64
	PositionY int64
	PositionX int64
	Equity    float64
}

// Rebalance describes one move of both legs to target sizes.
type Rebalance struct {
	DeltaY     int64
	DeltaX     int64
	Cost       float64 // cash spent; negative when the rebalance raised cash
	CashBefore float64
	CashAfter  float64
}

// NewAccount constructs an account populated with starting cash.
func NewAccount(startingCash float64) *Account {
	return &Account{startingCash: startingCash, cash: startingCash}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash }

// Cash returns uninvested cash, which goes up when legs are sold short.
func (a *Account) Cash() float64 { return a.cash }

// Positions returns the share counts of the Y and X legs.
func (a *Account) Positions() (y, x int64) { return a.posY, a.posX }

// Equity marks both legs at the given prices.
func (a *Account) Equity(priceY, priceX float64) (float64, error) {
	if err := checkPrices(priceY, priceX); err != nil {
		return 0, err
	}
	return a.cash + float64(a.posY)*priceY + float64(a.posX)*priceX, nil
}

// Snapshot returns balances marked at the given prices.
func (a *Account) Snapshot(priceY, priceX float64) (Snapshot, error) {
	equity, err := a.Equity(priceY, priceX)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Cash: a.cash, PositionY: a.posY, PositionX: a.posX, Equity: equity}, nil
}

// Rebalance moves both legs to the target share counts, paying for buys and collecting
// the proceeds of sells at the given prices.
func (a *Account) Rebalance(targetY, targetX int64, priceY, priceX float64) (Rebalance, error) {
	if err := checkPrices(priceY, priceX); err != nil {
		return Rebalance{}, err
	}
	dy := targetY - a.posY
	dx := targetX - a.posX
	cost := float64(dy)*priceY + float64(dx)*priceX

	r := Rebalance{DeltaY: dy, DeltaX: dx, Cost: cost, CashBefore: a.cash}
	a.cash -= cost
	a.posY = targetY
	a.posX = targetX
	r.CashAfter = a.cash
	return r, nil
}

func checkPrices(priceY, priceX float64) error {
	for _, p := range [...]float64{priceY, priceX} {
		if !(p > 0) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidPrice, p)
		}
	}
	return nil
}
