package strategy

import (
	"fmt"
	"time"
)

// Direction is the side of a signal or position.
type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// ParseDirection maps the spellings String produces back to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return 0, fmt.Errorf("strategy: unknown direction %q", s)
	}
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	return -d
}

// Kind distinguishes entry signals from exit signals.
type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

// Signal is one discrete instruction emitted by a generator. Index is
// the candle the signal fired on; fills happen at that candle's close.
type Signal struct {
	Index        int       `json:"index"`
	Time         time.Time `json:"time"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Kind         Kind      `json:"kind"`
	Reason       string    `json:"reason"`
	TriggerPrice float64   `json:"trigger_price"`
	Strategy     string    `json:"strategy_name"`
}
