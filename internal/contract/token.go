package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictswipe/predictd/internal/crypto"
	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/ledger"
)

// Token binds the ERC-20 stake token at a fixed address.
type Token struct {
	addr common.Address
	gw   *ledger.Gateway
}

// NewToken creates a binding for the token contract at addr.
func NewToken(addr common.Address, gw *ledger.Gateway) *Token {
	return &Token{addr: addr, gw: gw}
}

// Address returns the bound token address.
func (t *Token) Address() common.Address {
	return t.addr
}

// Approve submits an approval authorizing spender to move amount of the
// signer's tokens. The betting workflow waits for this to confirm before
// purchasing shares.
func (t *Token) Approve(ctx context.Context, signer *crypto.Signer, spender common.Address, amount *big.Int) (domain.TxHandle, error) {
	return t.gw.SubmitWrite(ctx, signer, t.addr, &tokenABI, "approve", nil, spender, amount)
}

// BalanceOf reads the token balance of owner.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := t.gw.ReadView(ctx, t.addr, &tokenABI, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("contract: balance of %s: %w", owner.Hex(), err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contract: balance of %s: unexpected type %T", owner.Hex(), values[0])
	}
	return bal, nil
}

// Allowance reads how much spender may move on owner's behalf.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	values, err := t.gw.ReadView(ctx, t.addr, &tokenABI, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("contract: allowance %s->%s: %w", owner.Hex(), spender.Hex(), err)
	}
	amt, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contract: allowance %s->%s: unexpected type %T", owner.Hex(), spender.Hex(), values[0])
	}
	return amt, nil
}
