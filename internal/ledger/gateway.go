// Package ledger implements the contract gateway: stateless view calls,
// state-changing write submissions, and confirmation waits against an EVM
// chain over JSON-RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/predictswipe/predictd/internal/crypto"
	"github.com/predictswipe/predictd/internal/domain"
)

// gasHeadroomPct is added on top of the node's gas estimate so transient
// state drift between estimation and inclusion does not starve the call.
const gasHeadroomPct = 20

// Backend is the slice of the ethclient API the gateway uses. It is
// satisfied by *ethclient.Client and by test fakes.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds gateway timing parameters.
type Config struct {
	// ConfirmTimeout bounds how long AwaitConfirmation polls before giving
	// up on an unmined transaction.
	ConfirmTimeout time.Duration

	// ConfirmPollInterval is the receipt polling period.
	ConfirmPollInterval time.Duration
}

// Gateway wraps a JSON-RPC backend with the three capabilities the
// workflows need: ReadView, SubmitWrite, and AwaitConfirmation.
//
// Confirmation results are memoized per transaction hash once a terminal
// on-chain state (mined or reverted) is observed, so repeated waits on the
// same handle return the same result. A timeout is not terminal and is not
// memoized: the transaction may still be mined later.
type Gateway struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	// nonceMu serializes nonce assignment across concurrent submissions
	// from the same process; the wallet is a shared resource.
	nonceMu sync.Mutex

	terminal sync.Map // tx hash -> confirmResult
}

type confirmResult struct {
	conf domain.Confirmation
	err  error
}

// NewGateway creates a Gateway over the given backend. Zero timing values
// fall back to 2 minutes / 3 seconds.
func NewGateway(backend Backend, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = 3 * time.Second
	}
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ledger")),
	}
}

// ReadView executes a stateless view call against the contract at addr and
// returns the decoded output values. Independent calls have no ordering
// guarantee and may run concurrently.
func (g *Gateway) ReadView(ctx context.Context, addr common.Address, cabi *abi.ABI, method string, args ...any) ([]any, error) {
	data, err := cabi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}

	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: call %s: %w", method, err)
	}

	values, err := cabi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("ledger: unpack %s: %w", method, err)
	}
	return values, nil
}

// SubmitWrite builds, signs, and broadcasts a state-changing transaction
// calling method on the contract at addr. It returns as soon as the
// transaction is accepted by the node's mempool; confirmation is a separate
// step. Failures are reported as *domain.SubmissionError.
func (g *Gateway) SubmitWrite(ctx context.Context, signer *crypto.Signer, addr common.Address, cabi *abi.ABI, method string, value *big.Int, args ...any) (domain.TxHandle, error) {
	data, err := cabi.Pack(method, args...)
	if err != nil {
		return domain.TxHandle{}, &domain.SubmissionError{Op: method, Err: fmt.Errorf("pack args: %w", err)}
	}
	if value == nil {
		value = new(big.Int)
	}

	from := signer.Address()

	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()

	nonce, err := g.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return domain.TxHandle{}, &domain.SubmissionError{Op: method, Err: fmt.Errorf("pending nonce: %w", err)}
	}

	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return domain.TxHandle{}, &domain.SubmissionError{Op: method, Err: fmt.Errorf("gas price: %w", err)}
	}

	gasLimit, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &addr,
		Value: value,
		Data:  data,
	})
	if err != nil {
		// Estimation failure usually means the call would revert
		// (insufficient balance, missing allowance, bad arguments).
		return domain.TxHandle{}, &domain.SubmissionError{Op: method, Err: fmt.Errorf("estimate gas: %w", err)}
	}
	gasLimit += gasLimit * gasHeadroomPct / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &addr,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := signer.SignTx(tx)
	if err != nil {
		return domain.TxHandle{}, &domain.SubmissionError{Op: method, Err: err}
	}

	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return domain.TxHandle{}, &domain.SubmissionError{Op: method, Err: fmt.Errorf("send: %w", err)}
	}

	handle := domain.TxHandle{
		Hash:        signed.Hash().Hex(),
		SubmittedAt: time.Now().UTC(),
	}

	g.logger.InfoContext(ctx, "transaction submitted",
		slog.String("method", method),
		slog.String("tx", handle.Hash),
		slog.Uint64("nonce", nonce),
	)
	return handle, nil
}

// AwaitConfirmation polls for the transaction receipt until the transaction
// is mined or the configured timeout elapses. A reverted transaction and a
// timeout are both reported as *domain.ConfirmationError. Calling again with
// a handle whose terminal result was already observed returns that result
// without touching the backend.
func (g *Gateway) AwaitConfirmation(ctx context.Context, handle domain.TxHandle) (domain.Confirmation, error) {
	if handle.Zero() {
		return domain.Confirmation{}, &domain.ConfirmationError{Reason: "empty transaction handle"}
	}
	if cached, ok := g.terminal.Load(handle.Hash); ok {
		res := cached.(confirmResult)
		return res.conf, res.err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	hash := common.HexToHash(handle.Hash)
	ticker := time.NewTicker(g.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return g.finalize(handle, receipt)
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet; keep polling.
		case ctx.Err() != nil:
			return domain.Confirmation{}, &domain.ConfirmationError{
				TxHash: handle.Hash,
				Reason: "timed out waiting for confirmation",
				Err:    ctx.Err(),
			}
		default:
			return domain.Confirmation{}, &domain.ConfirmationError{
				TxHash: handle.Hash,
				Reason: "receipt query failed",
				Err:    err,
			}
		}

		select {
		case <-ctx.Done():
			return domain.Confirmation{}, &domain.ConfirmationError{
				TxHash: handle.Hash,
				Reason: "timed out waiting for confirmation",
				Err:    ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

// finalize converts a receipt into the memoized terminal result.
func (g *Gateway) finalize(handle domain.TxHandle, receipt *types.Receipt) (domain.Confirmation, error) {
	var res confirmResult
	if receipt.Status == types.ReceiptStatusFailed {
		res.err = &domain.ConfirmationError{TxHash: handle.Hash, Reason: "transaction reverted"}
	} else {
		res.conf = domain.Confirmation{
			TxHash:      handle.Hash,
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     receipt.GasUsed,
			ConfirmedAt: time.Now().UTC(),
		}
	}

	actual, _ := g.terminal.LoadOrStore(handle.Hash, res)
	stored := actual.(confirmResult)
	return stored.conf, stored.err
}
