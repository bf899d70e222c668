package domain

import (
	"math/big"
	"time"
)

// BetSide is the option a bettor backs in a binary market.
type BetSide string

const (
	SideOptionA BetSide = "option_a"
	SideOptionB BetSide = "option_b"
)

// Valid reports whether the side is one of the two known values.
func (s BetSide) Valid() bool {
	return s == SideOptionA || s == SideOptionB
}

// BettingIntent is the ephemeral selection that starts one betting workflow
// run: which market, which side, and the fixed stake. It is never persisted;
// the BetRecord produced by the workflow is.
type BettingIntent struct {
	MarketID int64
	Side     BetSide
	Stake    *big.Int // wei
}

// BetState enumerates the betting workflow's states. The only transitions
// are Idle -> AwaitingApproval -> ApprovalConfirmed -> AwaitingPurchase ->
// PurchaseConfirmed, with Failed reachable from either awaiting state.
type BetState string

const (
	BetStateIdle              BetState = "idle"
	BetStateAwaitingApproval  BetState = "awaiting_approval"
	BetStateApprovalConfirmed BetState = "approval_confirmed"
	BetStateAwaitingPurchase  BetState = "awaiting_purchase"
	BetStatePurchaseConfirmed BetState = "purchase_confirmed"
	BetStateFailed            BetState = "failed"
)

// Terminal reports whether the state ends a workflow run.
func (s BetState) Terminal() bool {
	return s == BetStatePurchaseConfirmed || s == BetStateFailed
}

// BetRecord is the persisted history of one betting workflow run.
type BetRecord struct {
	ID         string // uuid
	Account    string // hex address of the bettor
	MarketID   int64
	Side       BetSide
	Stake      *big.Int
	State      BetState
	ApprovalTx string // tx hash, empty until approval submitted
	PurchaseTx string // tx hash, empty until purchase submitted
	FailReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateState enumerates the market-creation workflow's states.
type CreateState string

const (
	CreateStateIdle     CreateState = "idle"
	CreateStateAwaiting CreateState = "awaiting_create"
	CreateStateCreated  CreateState = "created"
	CreateStateFailed   CreateState = "failed"
)

// CreationRecord is the persisted history of one market-creation run.
type CreationRecord struct {
	ID         string // uuid
	Account    string
	Question   string
	OptionA    string
	OptionB    string
	EndTime    time.Time
	State      CreateState
	CreateTx   string
	FailReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
