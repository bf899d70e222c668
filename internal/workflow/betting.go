// Package workflow implements the transaction workflows: the two-phase
// approve-then-buy betting sequence and the single-phase market creation.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/predictswipe/predictd/internal/crypto"
	"github.com/predictswipe/predictd/internal/domain"
)

// Confirmer waits for a submitted transaction to reach a terminal state.
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, handle domain.TxHandle) (domain.Confirmation, error)
}

// SharesBuyer submits the share-purchase write call.
type SharesBuyer interface {
	BuyShares(ctx context.Context, signer *crypto.Signer, marketID int64, isOptionA bool, amount *big.Int) (domain.TxHandle, error)
}

// StakeToken covers the ERC-20 calls the betting workflow makes.
type StakeToken interface {
	Approve(ctx context.Context, signer *crypto.Signer, spender common.Address, amount *big.Int) (domain.TxHandle, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Notifier delivers user-visible terminal-state messages.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// accountLockTTL bounds how long a crashed workflow can starve the shared
// signer before its lock expires.
const accountLockTTL = 5 * time.Minute

// BetResult reports a successful betting run.
type BetResult struct {
	BetID      string
	ApprovalTx domain.TxHandle
	PurchaseTx domain.TxHandle
	Confirmed  domain.Confirmation
}

// Betting runs the two-phase betting sequence:
//
//	Idle -> AwaitingApproval -> ApprovalConfirmed -> AwaitingPurchase ->
//	PurchaseConfirmed, with Failed reachable from either awaiting state.
//
// The purchase is submitted only after the approval's confirmation has been
// observed; the contract's token transfer inside buyShares depends on the
// allowance being visible on-chain. At most one approval and one purchase
// are in flight per instance, and Submit is rejected unless the instance is
// in Idle or Failed. Failures never auto-retry.
type Betting struct {
	confirmer Confirmer
	market    SharesBuyer
	token     StakeToken
	signer    *crypto.Signer
	spender   common.Address // prediction contract, the approval's spender
	stake     *big.Int

	locks    domain.LockManager // optional, serializes per account
	bets     domain.BetStore    // optional
	audit    domain.AuditStore  // optional
	notifier Notifier           // optional
	logger   *slog.Logger

	mu    sync.Mutex
	state domain.BetState
}

// BettingDeps bundles the optional collaborators.
type BettingDeps struct {
	Locks    domain.LockManager
	Bets     domain.BetStore
	Audit    domain.AuditStore
	Notifier Notifier
}

// NewBetting creates a betting workflow instance in Idle. stake is the fixed
// per-bet amount in wei; it is not user-editable.
func NewBetting(confirmer Confirmer, market SharesBuyer, token StakeToken, signer *crypto.Signer, spender common.Address, stake *big.Int, deps BettingDeps, logger *slog.Logger) *Betting {
	return &Betting{
		confirmer: confirmer,
		market:    market,
		token:     token,
		signer:    signer,
		spender:   spender,
		stake:     new(big.Int).Set(stake),
		locks:     deps.Locks,
		bets:      deps.Bets,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		logger:    logger.With(slog.String("component", "betting_workflow")),
		state:     domain.BetStateIdle,
	}
}

// State returns the workflow's current state.
func (b *Betting) State() domain.BetState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Submit runs one betting sequence to completion. It returns
// *domain.ValidationError without any state change when the intent is
// malformed, domain.ErrWorkflowBusy when a run is already in flight, and the
// gateway's submission/confirmation error after moving to Failed.
func (b *Betting) Submit(ctx context.Context, intent domain.BettingIntent) (BetResult, error) {
	if err := validateIntent(intent); err != nil {
		return BetResult{}, err
	}

	if err := b.begin(); err != nil {
		return BetResult{}, err
	}

	account := b.signer.Address()
	if b.locks != nil {
		unlock, err := b.locks.Acquire(ctx, "account:"+account.Hex(), accountLockTTL)
		if err != nil {
			b.setState(domain.BetStateIdle)
			return BetResult{}, fmt.Errorf("workflow: acquire account lock: %w", err)
		}
		defer unlock()
	}

	stake := intent.Stake
	if stake == nil || stake.Sign() == 0 {
		stake = b.stake
	}

	rec := domain.BetRecord{
		ID:        uuid.New().String(),
		Account:   account.Hex(),
		MarketID:  intent.MarketID,
		Side:      intent.Side,
		Stake:     new(big.Int).Set(stake),
		State:     domain.BetStateAwaitingApproval,
		CreatedAt: time.Now().UTC(),
	}

	// Preflight: an empty wallet would only be caught by a reverted
	// transfer deep in phase two; surface it before spending gas.
	if bal, err := b.token.BalanceOf(ctx, account); err == nil && bal.Cmp(stake) < 0 {
		subErr := &domain.SubmissionError{
			Op:  "approve",
			Err: fmt.Errorf("insufficient balance: have %s, need %s", bal, stake),
		}
		return BetResult{}, b.fail(ctx, &rec, subErr)
	}

	// Phase one: token approval. begin already moved the instance to
	// AwaitingApproval when it claimed it.
	b.record(ctx, &rec, true)

	approvalTx, err := b.token.Approve(ctx, b.signer, b.spender, stake)
	if err != nil {
		return BetResult{}, b.fail(ctx, &rec, err)
	}
	rec.ApprovalTx = approvalTx.Hash
	b.record(ctx, &rec, false)

	if _, err := b.confirmer.AwaitConfirmation(ctx, approvalTx); err != nil {
		return BetResult{}, b.fail(ctx, &rec, err)
	}

	// Approval is on-chain; the purchase follows automatically, no new
	// user action.
	b.setState(domain.BetStateApprovalConfirmed)
	b.auditEvent(ctx, "bet_approval_confirmed", rec)

	b.setState(domain.BetStateAwaitingPurchase)
	rec.State = domain.BetStateAwaitingPurchase
	b.record(ctx, &rec, false)

	purchaseTx, err := b.market.BuyShares(ctx, b.signer, intent.MarketID, intent.Side == domain.SideOptionA, stake)
	if err != nil {
		return BetResult{}, b.fail(ctx, &rec, err)
	}
	rec.PurchaseTx = purchaseTx.Hash
	b.record(ctx, &rec, false)

	conf, err := b.confirmer.AwaitConfirmation(ctx, purchaseTx)
	if err != nil {
		return BetResult{}, b.fail(ctx, &rec, err)
	}

	b.setState(domain.BetStatePurchaseConfirmed)
	rec.State = domain.BetStatePurchaseConfirmed
	b.record(ctx, &rec, false)
	b.auditEvent(ctx, "bet_purchase_confirmed", rec)

	if b.notifier != nil {
		msg := fmt.Sprintf("Bought %s shares on market %d (tx %s)", intent.Side, intent.MarketID, purchaseTx.Hash)
		if nerr := b.notifier.Notify(ctx, "bet_confirmed", "Shares purchased", msg); nerr != nil {
			b.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
		}
	}

	b.logger.InfoContext(ctx, "bet confirmed",
		slog.String("bet_id", rec.ID),
		slog.Int64("market_id", intent.MarketID),
		slog.String("side", string(intent.Side)),
		slog.String("purchase_tx", purchaseTx.Hash),
	)

	return BetResult{
		BetID:      rec.ID,
		ApprovalTx: approvalTx,
		PurchaseTx: purchaseTx,
		Confirmed:  conf,
	}, nil
}

// begin claims the instance for one run. A Failed instance may be restarted;
// anything else in flight is rejected. The claim moves the state to
// AwaitingApproval under the same lock as the check, so a second Submit
// arriving during the lock acquisition or the balance preflight is already
// rejected.
func (b *Betting) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != domain.BetStateIdle && b.state != domain.BetStateFailed {
		return domain.ErrWorkflowBusy
	}
	b.state = domain.BetStateAwaitingApproval
	return nil
}

func (b *Betting) setState(s domain.BetState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// fail moves the run to the terminal Failed state, persists it, and emits
// the user-visible failure message. The cause is returned unchanged for the
// caller.
func (b *Betting) fail(ctx context.Context, rec *domain.BetRecord, cause error) error {
	b.setState(domain.BetStateFailed)
	rec.State = domain.BetStateFailed
	rec.FailReason = cause.Error()
	b.record(ctx, rec, false)
	b.auditEvent(ctx, "bet_failed", *rec)

	if b.notifier != nil {
		msg := fmt.Sprintf("Bet on market %d failed: %v", rec.MarketID, cause)
		if nerr := b.notifier.Notify(ctx, "bet_failed", "Bet failed", msg); nerr != nil {
			b.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
		}
	}

	b.logger.ErrorContext(ctx, "bet failed",
		slog.String("bet_id", rec.ID),
		slog.Int64("market_id", rec.MarketID),
		slog.String("error", cause.Error()),
	)
	return cause
}

// record persists the bet record. Store errors are logged, not fatal: the
// on-chain workflow outcome must not depend on history bookkeeping.
func (b *Betting) record(ctx context.Context, rec *domain.BetRecord, insert bool) {
	if b.bets == nil {
		return
	}
	rec.UpdatedAt = time.Now().UTC()

	var err error
	if insert {
		err = b.bets.Insert(ctx, *rec)
	} else {
		err = b.bets.Update(ctx, *rec)
	}
	if err != nil {
		b.logger.WarnContext(ctx, "bet store write failed",
			slog.String("bet_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Betting) auditEvent(ctx context.Context, event string, rec domain.BetRecord) {
	if b.audit == nil {
		return
	}
	detail := map[string]any{
		"bet_id":      rec.ID,
		"market_id":   rec.MarketID,
		"side":        string(rec.Side),
		"state":       string(rec.State),
		"approval_tx": rec.ApprovalTx,
		"purchase_tx": rec.PurchaseTx,
	}
	if err := b.audit.Log(ctx, event, detail); err != nil {
		b.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

func validateIntent(intent domain.BettingIntent) error {
	if intent.MarketID <= 0 {
		return &domain.ValidationError{Field: "market_id", Reason: "required"}
	}
	if !intent.Side.Valid() {
		return &domain.ValidationError{Field: "side", Reason: "must be option_a or option_b"}
	}
	return nil
}
