package domain

import (
	"math/big"
	"time"
)

// Outcome is the resolution state of a binary market, encoded on-chain as a
// small integer.
type Outcome uint8

const (
	OutcomeUnresolved Outcome = iota
	OutcomeOptionA
	OutcomeOptionB
)

// String returns a human-readable label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeOptionA:
		return "option_a"
	case OutcomeOptionB:
		return "option_b"
	default:
		return "unknown"
	}
}

// MarketRecord is an immutable projection of one market's on-chain state.
// Share counts are wei-scale integers and stay arbitrary precision; callers
// that need ratios convert at the presentation boundary.
type MarketRecord struct {
	ID                 int64
	Question           string
	OptionA            string
	OptionB            string
	EndTime            time.Time
	Outcome            Outcome
	TotalOptionAShares *big.Int
	TotalOptionBShares *big.Int
	TotalPool          *big.Int // always TotalOptionAShares + TotalOptionBShares
	Resolved           bool
}

// SnapshotStatus is the aggregate state of one fetch cycle.
type SnapshotStatus string

const (
	SnapshotLoading SnapshotStatus = "loading"
	SnapshotReady   SnapshotStatus = "ready"
	SnapshotError   SnapshotStatus = "error"
)

// Snapshot is a point-in-time aggregation of market records, sorted ascending
// by market ID. Status is SnapshotError only when no populated market
// survived the fetch; individual read failures are tolerated and the
// offending IDs recorded in FailedIDs.
type Snapshot struct {
	Status    SnapshotStatus
	Markets   []MarketRecord
	FailedIDs []int64
	TakenAt   time.Time
}
