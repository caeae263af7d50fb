// Package signal standardizes payloads shared between data ingestion, strategy, and execution layers.
package signal

import (
	"fmt"
	"time"
)

// Observation is one bar of the two co-moving price series.
type Observation struct {
	Ts     time.Time
	PriceY float64 // dependent leg
	PriceX float64 // hedge leg
}

// Kind enumerates the trading decisions a strategy can emit.
type Kind uint8

const (
	// LongSpread buys Y and sells beta*X.
	LongSpread Kind = iota + 1
	// ShortSpread sells Y and buys beta*X.
	ShortSpread
	// Exit flattens both legs.
	Exit
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case LongSpread:
		return "LONG_SPREAD"
	case ShortSpread:
		return "SHORT_SPREAD"
	case Exit:
		return "EXIT"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k >= LongSpread && k <= Exit }

// MarshalText lets kinds appear by name in JSON and CSV output.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid signal kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "LONG_SPREAD":
		*k = LongSpread
	case "SHORT_SPREAD":
		*k = ShortSpread
	case "EXIT":
		*k = Exit
	default:
		return fmt.Errorf("unknown signal kind %q", text)
	}
	return nil
}

// Signal expresses a trading decision produced by a strategy implementation.
type Signal struct {
	Ts            time.Time
	Kind          Kind
	ZScore        float64
	EstimatedBeta float64 // hedge ratio to size the X leg with
}
