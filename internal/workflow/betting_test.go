package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictswipe/predictd/internal/crypto"
	"github.com/predictswipe/predictd/internal/domain"
)

// Well-known throwaway key; never holds funds.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// recorder collects the cross-collaborator call sequence so tests can assert
// ordering, most importantly that the purchase never precedes the approval's
// confirmation.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeConfirmer struct {
	rec    *recorder
	errFor map[string]error // tx hash -> error
	gate   chan struct{}    // when set, AwaitConfirmation blocks until closed
}

func (f *fakeConfirmer) AwaitConfirmation(ctx context.Context, handle domain.TxHandle) (domain.Confirmation, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.Confirmation{}, ctx.Err()
		}
	}
	f.rec.add("confirm:" + handle.Hash)
	if err := f.errFor[handle.Hash]; err != nil {
		return domain.Confirmation{}, err
	}
	return domain.Confirmation{TxHash: handle.Hash, BlockNumber: 42, GasUsed: 21000, ConfirmedAt: time.Now().UTC()}, nil
}

type fakeToken struct {
	rec        *recorder
	balance    *big.Int
	approveErr error
	approved   chan struct{} // closed on first Approve, for concurrency tests

	balanceStarted chan struct{} // when set, closed on entering BalanceOf
	balanceGate    chan struct{} // when set, BalanceOf blocks until closed
}

func (f *fakeToken) Approve(_ context.Context, _ *crypto.Signer, _ common.Address, _ *big.Int) (domain.TxHandle, error) {
	f.rec.add("approve")
	if f.approved != nil {
		select {
		case <-f.approved:
		default:
			close(f.approved)
		}
	}
	if f.approveErr != nil {
		return domain.TxHandle{}, f.approveErr
	}
	return domain.TxHandle{Hash: "0xapproval", SubmittedAt: time.Now().UTC()}, nil
}

func (f *fakeToken) BalanceOf(ctx context.Context, _ common.Address) (*big.Int, error) {
	if f.balanceStarted != nil {
		select {
		case <-f.balanceStarted:
		default:
			close(f.balanceStarted)
		}
	}
	if f.balanceGate != nil {
		select {
		case <-f.balanceGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.balance == nil {
		return big.NewInt(1_000_000), nil
	}
	return new(big.Int).Set(f.balance), nil
}

type fakeBuyer struct {
	rec    *recorder
	buyErr error
}

func (f *fakeBuyer) BuyShares(_ context.Context, _ *crypto.Signer, _ int64, _ bool, _ *big.Int) (domain.TxHandle, error) {
	f.rec.add("buy")
	if f.buyErr != nil {
		return domain.TxHandle{}, f.buyErr
	}
	return domain.TxHandle{Hash: "0xpurchase", SubmittedAt: time.Now().UTC()}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	signer, err := crypto.NewSigner(testKeyHex, 839999)
	require.NoError(t, err)
	return signer
}

func newTestBetting(t *testing.T, rec *recorder, confirmer *fakeConfirmer, token *fakeToken, buyer *fakeBuyer) *Betting {
	t.Helper()
	return NewBetting(
		confirmer, buyer, token, testSigner(t),
		common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		big.NewInt(10_000), BettingDeps{}, testLogger(),
	)
}

func validIntent() domain.BettingIntent {
	return domain.BettingIntent{MarketID: 3, Side: domain.SideOptionA, Stake: big.NewInt(10_000)}
}

func TestSubmitRunsTwoPhasesInOrder(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{rec: rec}
	token := &fakeToken{rec: rec}
	buyer := &fakeBuyer{rec: rec}
	b := newTestBetting(t, rec, confirmer, token, buyer)

	result, err := b.Submit(context.Background(), validIntent())

	require.NoError(t, err)
	assert.Equal(t, domain.BetStatePurchaseConfirmed, b.State())
	assert.Equal(t, "0xapproval", result.ApprovalTx.Hash)
	assert.Equal(t, "0xpurchase", result.PurchaseTx.Hash)
	assert.Equal(t, uint64(42), result.Confirmed.BlockNumber)
	assert.NotEmpty(t, result.BetID)

	// The purchase must come after the approval's confirmation was observed.
	assert.Equal(t, []string{
		"approve",
		"confirm:0xapproval",
		"buy",
		"confirm:0xpurchase",
	}, rec.snapshot())
}

func TestSubmitNeverBuysWhenApprovalConfirmationFails(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{
		rec: rec,
		errFor: map[string]error{
			"0xapproval": &domain.ConfirmationError{TxHash: "0xapproval", Reason: "transaction reverted"},
		},
	}
	token := &fakeToken{rec: rec}
	buyer := &fakeBuyer{rec: rec}
	b := newTestBetting(t, rec, confirmer, token, buyer)

	_, err := b.Submit(context.Background(), validIntent())

	var confErr *domain.ConfirmationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, domain.BetStateFailed, b.State())
	assert.NotContains(t, rec.snapshot(), "buy")
}

func TestSubmitRejectsInvalidIntentWithoutStateChange(t *testing.T) {
	rec := &recorder{}
	b := newTestBetting(t, rec, &fakeConfirmer{rec: rec}, &fakeToken{rec: rec}, &fakeBuyer{rec: rec})

	_, err := b.Submit(context.Background(), domain.BettingIntent{MarketID: 0, Side: domain.SideOptionA})
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "market_id", valErr.Field)

	_, err = b.Submit(context.Background(), domain.BettingIntent{MarketID: 1, Side: "maybe"})
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "side", valErr.Field)

	assert.Equal(t, domain.BetStateIdle, b.State())
	assert.Empty(t, rec.snapshot())
}

func TestSubmitRejectsConcurrentRun(t *testing.T) {
	rec := &recorder{}
	gate := make(chan struct{})
	confirmer := &fakeConfirmer{rec: rec, gate: gate}
	token := &fakeToken{rec: rec, approved: make(chan struct{})}
	buyer := &fakeBuyer{rec: rec}
	b := newTestBetting(t, rec, confirmer, token, buyer)

	done := make(chan error, 1)
	go func() {
		_, err := b.Submit(context.Background(), validIntent())
		done <- err
	}()

	// Wait until the first run has submitted its approval and is parked in
	// the confirmation wait.
	<-token.approved

	_, err := b.Submit(context.Background(), validIntent())
	assert.ErrorIs(t, err, domain.ErrWorkflowBusy)

	close(gate)
	require.NoError(t, <-done)
}

func TestSubmitRejectsSecondRunDuringPreflight(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{rec: rec}
	token := &fakeToken{rec: rec, balanceStarted: make(chan struct{}), balanceGate: make(chan struct{})}
	buyer := &fakeBuyer{rec: rec}
	b := newTestBetting(t, rec, confirmer, token, buyer)

	done := make(chan error, 1)
	go func() {
		_, err := b.Submit(context.Background(), validIntent())
		done <- err
	}()

	// Park the first run inside the balance preflight, before it submits
	// anything. The instance must already be claimed here.
	<-token.balanceStarted

	_, err := b.Submit(context.Background(), validIntent())
	assert.ErrorIs(t, err, domain.ErrWorkflowBusy)

	close(token.balanceGate)
	require.NoError(t, <-done)

	// Exactly one approve and one buy ran across both Submit calls.
	assert.Equal(t, []string{
		"approve",
		"confirm:0xapproval",
		"buy",
		"confirm:0xpurchase",
	}, rec.snapshot())
}

func TestSubmitFailedRunDoesNotAutoRetryButAllowsRestart(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{rec: rec}
	token := &fakeToken{rec: rec, approveErr: &domain.SubmissionError{Op: "approve", Err: errors.New("nonce too low")}}
	buyer := &fakeBuyer{rec: rec}
	b := newTestBetting(t, rec, confirmer, token, buyer)

	_, err := b.Submit(context.Background(), validIntent())
	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, domain.BetStateFailed, b.State())
	// Exactly one approval attempt; the workflow never retries on its own.
	assert.Equal(t, []string{"approve"}, rec.snapshot())

	// A fresh Submit on the failed instance is a new deliberate run.
	token.approveErr = nil
	_, err = b.Submit(context.Background(), validIntent())
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatePurchaseConfirmed, b.State())
}

func TestSubmitPreflightsBalance(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{rec: rec}
	token := &fakeToken{rec: rec, balance: big.NewInt(1)}
	buyer := &fakeBuyer{rec: rec}
	b := newTestBetting(t, rec, confirmer, token, buyer)

	_, err := b.Submit(context.Background(), validIntent())

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, domain.BetStateFailed, b.State())
	// No write was submitted.
	assert.NotContains(t, rec.snapshot(), "approve")
	assert.NotContains(t, rec.snapshot(), "buy")
}

func TestSubmitFailsWhenPurchaseSubmissionFails(t *testing.T) {
	rec := &recorder{}
	confirmer := &fakeConfirmer{rec: rec}
	token := &fakeToken{rec: rec}
	buyer := &fakeBuyer{rec: rec, buyErr: &domain.SubmissionError{Op: "buyShares", Err: errors.New("rpc unreachable")}}
	b := newTestBetting(t, rec, confirmer, token, buyer)

	_, err := b.Submit(context.Background(), validIntent())

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "buyShares", subErr.Op)
	assert.Equal(t, domain.BetStateFailed, b.State())
	// The approval went through before the purchase attempt.
	assert.Equal(t, []string{"approve", "confirm:0xapproval", "buy"}, rec.snapshot())
}
