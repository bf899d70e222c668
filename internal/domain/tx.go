package domain

import "time"

// TxHandle identifies a submitted ledger transaction. It is opaque to the
// workflows: only the gateway knows how to turn it into a Confirmation.
type TxHandle struct {
	Hash        string
	SubmittedAt time.Time
}

// Zero reports whether the handle refers to no transaction.
func (h TxHandle) Zero() bool {
	return h.Hash == ""
}

// Confirmation is the terminal result of a mined transaction.
type Confirmation struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	ConfirmedAt time.Time
}
