package ledger

import (
	"math/big"

	"github.com/predictswipe/predictd/internal/crypto"
)

// Session bundles the gateway, the connected account's signer, and the chain
// id. Workflows receive a Session explicitly instead of reading ambient
// globals, so every write call carries its full ledger context.
type Session struct {
	Gateway *Gateway
	Signer  *crypto.Signer
	ChainID *big.Int
}

// NewSession creates a Session. The signer must be bound to the same chain
// as the gateway's backend.
func NewSession(gw *Gateway, signer *crypto.Signer) *Session {
	return &Session{
		Gateway: gw,
		Signer:  signer,
		ChainID: signer.ChainID(),
	}
}

// Account returns the connected account's hex address.
func (s *Session) Account() string {
	return s.Signer.Address().Hex()
}
